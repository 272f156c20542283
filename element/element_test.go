package element

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	_ Element = (*QuadElement)(nil)
	_ Element = (*HexElement)(nil)
)

func TestGaussLobattoKnots(t *testing.T) {
	knots, err := GaussLobattoKnots(4)
	require.NoError(t, err)
	x1 := 0.5 * (1 - 1/math.Sqrt(5))
	assert.InDeltaSlice(t, []float64{0, x1, 1 - x1, 1}, knots, 1e-14)

	knots, err = GaussLobattoKnots(5)
	require.NoError(t, err)
	x1 = 0.5 * (1 - math.Sqrt(3.0/7.0))
	assert.InDeltaSlice(t, []float64{0, x1, 0.5, 1 - x1, 1}, knots, 1e-14)
	assert.Equal(t, 0.5, knots[2])

	for n := 2; n <= MaxOrder; n++ {
		knots, err := GaussLobattoKnots(n)
		require.NoError(t, err)
		for i := 1; i < n; i++ {
			if knots[i] <= knots[i-1] {
				t.Fatalf("n=%d: knots not increasing: %v", n, knots)
			}
		}
		for i := range knots {
			assert.InDelta(t, 1.0, knots[i]+knots[n-1-i], 1e-15, "n=%d symmetric pair %d", n, i)
		}
	}
	_, err = GaussLobattoKnots(1)
	assert.Error(t, err)
}

func TestLagrangeWeights(t *testing.T) {
	knots, err := GaussLobattoKnots(5)
	require.NoError(t, err)
	for i, k := range knots {
		w := LagrangeWeights(knots, k)
		for j := range w {
			if j == i {
				assert.Equal(t, 1.0, w[j])
			} else {
				assert.Equal(t, 0.0, w[j])
			}
		}
	}
	// Reproduces polynomials up to degree n-1
	for _, tval := range []float64{0.1, 0.37, 0.92} {
		w := LagrangeWeights(knots, tval)
		assert.InDelta(t, 1.0, floats.Sum(w), 1e-13)
		var cubic float64
		for i, k := range knots {
			cubic += w[i] * k * k * k
		}
		assert.InDelta(t, tval*tval*tval, cubic, 1e-13)
	}
}

func TestInterpWeightsMatchLagrange(t *testing.T) {
	h := int32(1) << 10
	for order := 2; order <= 6; order++ {
		knots := UniformKnots(order)
		for _, u := range []int32{0, 1, h / 3, h / 2, h - 7, h} {
			got := InterpWeights(order, u, h)
			want := LagrangeWeights(knots, float64(u)/float64(h))
			assert.InDeltaSlice(t, want, got, 1e-12, "order %d u=%d", order, u)
		}
	}
}

func TestQuadElementLayout(t *testing.T) {
	el, err := NewQuadElement(3, Uniform)
	require.NoError(t, err)
	assert.Equal(t, 9, el.Np())
	assert.Equal(t, 1, el.NIp())
	assert.Equal(t, []int{0, 2, 6, 8}, el.VertexPoints())
	assert.Equal(t, []int{0, 3, 6}, el.EdgeSlots(0))
	assert.Equal(t, []int{2, 5, 8}, el.EdgeSlots(1))
	assert.Equal(t, []int{0, 1, 2}, el.EdgeSlots(2))
	assert.Equal(t, []int{6, 7, 8}, el.EdgeSlots(3))
	assert.Equal(t, []int{4}, el.InteriorPoints())
	assert.Equal(t, 1.0, el.R()[el.CornerSlot(3)])
	assert.Equal(t, 0.5, el.S()[el.Slot(0, 1)])
	t.Logf("%s (%s)", el.Name(), el.ShortName())

	w := el.Weights(0.25, 0.75)
	assert.InDelta(t, 1.0, floats.Sum(w), 1e-14)
	var u, v float64
	for k := range w {
		u += w[k] * el.R()[k]
		v += w[k] * el.S()[k]
	}
	assert.InDelta(t, 0.25, u, 1e-14)
	assert.InDelta(t, 0.75, v, 1e-14)

	_, err = NewQuadElement(1, Uniform)
	assert.Error(t, err)
	_, err = NewQuadElement(3, KnotType(9))
	assert.Error(t, err)
}

func TestHexElementLayout(t *testing.T) {
	el, err := NewHexElement(3, Uniform)
	require.NoError(t, err)
	assert.Equal(t, 27, el.Np())
	assert.Equal(t, D3, el.Dimensions())
	assert.Equal(t, []int{0, 2, 6, 8, 18, 20, 24, 26}, el.VertexPoints())
	assert.Equal(t, []int{0, 1, 2}, el.EdgeSlots(0))
	assert.Equal(t, []int{2, 5, 8}, el.EdgeSlots(5))
	assert.Equal(t, []int{8, 17, 26}, el.EdgeSlots(11))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, el.FacePoints()[4])
	assert.Equal(t, []int{2, 5, 8, 11, 14, 17, 20, 23, 26}, el.FaceSlots(1))
	assert.Equal(t, []int{13}, el.InteriorPoints())
	assert.Equal(t, el.Node(1, 1, 1), 13)

	w := el.Weights(0.25, 0.5, 0.9)
	assert.InDelta(t, 1.0, floats.Sum(w), 1e-14)
	g := el.GetReferenceGeometry()
	var r, s, tt float64
	for k := range w {
		r += w[k] * g.R[k]
		s += w[k] * g.S[k]
		tt += w[k] * g.T[k]
	}
	assert.InDelta(t, 0.25, r, 1e-14)
	assert.InDelta(t, 0.5, s, 1e-14)
	assert.InDelta(t, 0.9, tt, 1e-14)
}

func TestNewElement(t *testing.T) {
	tests := []struct {
		geom      ElementGeometry
		dims      Dimensionality
		np, edges int
	}{
		{Rectangle, D2, 16, 4},
		{Hexahedron, D3, 64, 12},
	}
	for _, tt := range tests {
		t.Run(tt.geom.String(), func(t *testing.T) {
			el, err := NewElement(tt.geom, 4, GaussLobatto)
			require.NoError(t, err)
			assert.Equal(t, tt.geom, el.GeometryType())
			assert.Equal(t, tt.dims, el.Dimensions())
			assert.Equal(t, tt.np, el.Np())
			assert.Len(t, el.EdgePoints(), tt.edges)
			assert.Equal(t, GaussLobatto, el.KnotType())
			// The last knot of every axis is the far corner
			far := el.Node(3, 3, 3)
			assert.Equal(t, el.VertexPoints()[len(el.VertexPoints())-1], far)
		})
	}
	_, err := NewElement(ElementGeometry(7), 3, Uniform)
	assert.Error(t, err)
	_, err = NewElement(Hexahedron, MaxOrder+1, Uniform)
	assert.Error(t, err)
}

func TestDenseSolvers(t *testing.T) {
	A := mat.NewDense(3, 3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	x, err := Solve(A, []float64{5, 5, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1, 1}, x, 1e-12)

	// Fit y = 1 + 2t through exact samples
	ts := []float64{0, 1, 2, 3}
	B := mat.NewDense(4, 2, nil)
	b := make([]float64, 4)
	for i, tv := range ts {
		B.Set(i, 0, 1)
		B.Set(i, 1, tv)
		b[i] = 1 + 2*tv
	}
	c, err := LeastSquares(B, b)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2}, c, 1e-12)

	_, err = Solve(B, b)
	assert.Error(t, err)
	_, err = LeastSquares(B.T(), []float64{1, 2})
	assert.Error(t, err)
}
