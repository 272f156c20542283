package topology

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromQuadMesh(t *testing.T) {
	var points []r3.Vector
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			points = append(points, r3.Vector{X: float64(i), Y: float64(j)})
		}
	}
	quads := [][4]int{{0, 1, 3, 4}, {1, 2, 4, 5}, {3, 4, 6, 7}, {4, 5, 7, 8}}
	topo, err := NewFromQuadMesh(points, quads)
	require.NoError(t, err)
	require.Len(t, topo.Surfaces, 4)
	require.Len(t, topo.Curves, 12)
	require.Len(t, topo.Vertices, 9)

	var boundaryEdges int
	for _, c := range topo.Curves {
		if c.Attribute() == BoundaryAttribute {
			boundaryEdges++
		}
	}
	assert.Equal(t, 8, boundaryEdges)
	for n, v := range topo.Vertices {
		if n == 4 {
			assert.Empty(t, v.Attribute(), "center node is interior")
		} else {
			assert.Equal(t, BoundaryAttribute, v.Attribute())
		}
		assert.Equal(t, points[n], v.EvalPoint())
	}

	// Block 3 spans [1,2]x[1,2]
	X := topo.Surfaces[3].EvalPoint(0.5, 0.25)
	assert.InDelta(t, 1.5, X.X, 1e-14)
	assert.InDelta(t, 1.25, X.Y, 1e-14)
}

func TestNewTopologyValidation(t *testing.T) {
	_, err := NewTopology(nil, nil, nil, nil)
	assert.Error(t, err)

	conn, err := NewConnectivity(4, 1, []int{0, 1, 2, 3})
	require.NoError(t, err)
	_, err = NewTopology(conn, []Surface{NewUnitPlane(), NewUnitPlane()}, nil, nil)
	assert.Error(t, err)
	topo, err := NewTopology(conn, []Surface{NewUnitPlane()}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, topo.NumEdges)
}

func TestBilinearInversion(t *testing.T) {
	s := &BilinearSurface{P: [4]r3.Vector{
		{X: 0, Y: 0}, {X: 2, Y: 0.2},
		{X: 0.3, Y: 1.5}, {X: 2.4, Y: 1.9},
	}}
	for _, uv := range [][2]float64{{0.3, 0.7}, {0, 0}, {1, 1}, {0.9, 0.1}} {
		p := s.EvalPoint(uv[0], uv[1])
		u, v, err := s.InvEvalPoint(p)
		require.NoError(t, err)
		assert.InDelta(t, uv[0], u, 1e-9)
		assert.InDelta(t, uv[1], v, 1e-9)
	}

	_, Xu, Xv := s.EvalDeriv(0.5, 0.5)
	const eps = 1e-6
	fdU := s.EvalPoint(0.5+eps, 0.5).Sub(s.EvalPoint(0.5-eps, 0.5)).Mul(0.5 / eps)
	fdV := s.EvalPoint(0.5, 0.5+eps).Sub(s.EvalPoint(0.5, 0.5-eps)).Mul(0.5 / eps)
	assert.InDelta(t, 0, Xu.Sub(fdU).Norm(), 1e-8)
	assert.InDelta(t, 0, Xv.Sub(fdV).Norm(), 1e-8)
}
