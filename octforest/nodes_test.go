package octforest

import (
	"fmt"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/element"
	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/topology"
)

type numberedPoint struct {
	N int
	P r3.Vector
}

// slotPoint is the physical position of knot (i, j, k) of cell o
func slotPoint(mesh *topology.HexMesh, knots []float64, o Octant, i, j, k int) r3.Vector {
	h := float64(o.Side())
	return mesh.Position(int(o.Block),
		float64(o.X)+knots[i]*h, float64(o.Y)+knots[j]*h, float64(o.Z)+knots[k]*h,
		float64(quadrant.HMax))
}

func closeTo(a, b r3.Vector) bool {
	return a.Sub(b).Norm() < 1e-9
}

// checkNodes verifies that the numbering partitions [0, total), that
// co-located slots share a number and distinct numbers sit apart, and that
// hanging nodes are reproduced by their constraints
func checkNodes(t *testing.T, f *Forest, mesh *topology.HexMesh, order int, kt element.KnotType) int {
	elem, err := element.NewHexElement(order, kt)
	require.NoError(t, err)
	knots := elem.Knots()
	np := elem.Np()
	rank, size := f.Comm().Rank(), f.Comm().Size()
	rng := f.NodeRange()
	require.Len(t, rng, size+1)
	total := rng[size]

	var points []numberedPoint
	var deps []int
	var depPoints []r3.Vector
	conn := f.NodeConn()
	require.Len(t, conn, f.NumOctants()*np)
	for c, o := range f.Octants().Items() {
		for k := 0; k < order; k++ {
			for j := 0; j < order; j++ {
				for i := 0; i < order; i++ {
					n := conn[c*np+elem.Node(i, j, k)]
					p := slotPoint(mesh, knots, o, i, j, k)
					if n < 0 {
						assert.Less(t, -n-1, f.NumDepNodes())
						deps = append(deps, -n-1)
						depPoints = append(depPoints, p)
						continue
					}
					assert.Less(t, n, total)
					points = append(points, numberedPoint{N: n, P: p})
				}
			}
		}
	}

	global := make(map[int]r3.Vector)
	for _, part := range comm.Allgatherv(f.Comm(), points) {
		for _, np := range part {
			if p, ok := global[np.N]; ok {
				assert.True(t, closeTo(p, np.P), "node %d at %v and %v", np.N, p, np.P)
				continue
			}
			global[np.N] = np.P
		}
	}
	assert.Len(t, global, total, "every number is used")
	seen := make(map[[3]int64]int)
	for n, p := range global {
		key := [3]int64{int64(math.Round(p.X * 1e6)), int64(math.Round(p.Y * 1e6)), int64(math.Round(p.Z * 1e6))}
		if other, ok := seen[key]; ok {
			t.Errorf("nodes %d and %d share the point %v", n, other, p)
		}
		seen[key] = n
	}

	ptr, dconn, weights := f.DepNodeConn()
	require.Len(t, ptr, f.NumDepNodes()+1)
	for d := 0; d < f.NumDepNodes(); d++ {
		assert.LessOrEqual(t, ptr[d+1]-ptr[d], order*order)
		assert.InDelta(t, 1.0, floats.Sum(weights[ptr[d]:ptr[d+1]]), 1e-12, "dependent node %d", d)
	}
	for m, d := range deps {
		var p r3.Vector
		for i := ptr[d]; i < ptr[d+1]; i++ {
			assert.GreaterOrEqual(t, dconn[i], 0)
			p = p.Add(global[dconn[i]].Mul(weights[i]))
		}
		assert.True(t, closeTo(p, depPoints[m]), "dependent node %d at %v, constraint gives %v", d, depPoints[m], p)
	}

	lo, hi := rng[rank], rng[rank+1]
	for _, n := range f.ExtNodeNums() {
		assert.True(t, n < lo || n >= hi)
	}
	locs := f.NodeLocations(mesh)
	for i, key := range f.Nodes() {
		assert.True(t, closeTo(global[int(key.Tag)], locs[i]), "location of node %d", key.Tag)
	}
	return total
}

// refineFirstOctant splits the first level one cell of block 0
func refineFirstOctant(f *Forest) error {
	if err := f.CreateTrees(1); err != nil {
		return err
	}
	return refineAround(f, 0, [3]int32{0, 0, 0}, 1)
}

func TestCreateNodesRefinedOctant(t *testing.T) {
	mesh := brickMesh(t, 1, 1, 1)
	cases := []struct {
		order int
		kt    element.KnotType
		total int
		deps  int
	}{
		// A 3x3x3 lattice plus the 7 new knots off the coarse faces; 12
		// hang on the three faces shared with coarse cells
		{2, element.Uniform, 34, 12},
		{3, element.Uniform, 181, 42},
		{3, element.GaussLobatto, 181, 42},
		{4, element.GaussLobatto, 0, 0},
	}
	for _, tc := range cases {
		for size := 1; size <= 3; size++ {
			t.Run(fmt.Sprintf("order=%d/%v/ranks=%d", tc.order, tc.kt, size), func(t *testing.T) {
				runForests(t, size, mesh, func(f *Forest) error {
					if err := refineFirstOctant(f); err != nil {
						return err
					}
					if err := f.Balance(false); err != nil {
						return err
					}
					assert.Equal(t, 15, f.GlobalNumOctants())
					if err := f.CreateNodes(tc.order, tc.kt); err != nil {
						return err
					}
					assert.Equal(t, tc.order, f.MeshOrder())
					total := checkNodes(t, f, mesh, tc.order, tc.kt)
					if tc.total > 0 {
						assert.Equal(t, tc.total, total)
					}
					if size == 1 && tc.deps > 0 {
						assert.Equal(t, tc.deps, f.NumDepNodes())
					}
					return nil
				})
			})
		}
	}
}

func TestCreateNodesRandom(t *testing.T) {
	for name, mesh := range testMeshes(t) {
		for _, tc := range []struct {
			order int
			kt    element.KnotType
		}{{2, element.Uniform}, {3, element.GaussLobatto}} {
			for size := 1; size <= 3; size++ {
				t.Run(fmt.Sprintf("%s/order=%d/ranks=%d", name, tc.order, size), func(t *testing.T) {
					runForests(t, size, mesh, func(f *Forest) error {
						if err := f.CreateRandomTrees(3, 0, 3, 5); err != nil {
							return err
						}
						if err := f.Balance(false); err != nil {
							return err
						}
						if err := f.CreateNodes(tc.order, tc.kt); err != nil {
							return err
						}
						checkNodes(t, f, mesh, tc.order, tc.kt)
						return nil
					})
				})
			}
		}
	}
}

func TestSharedNodesAcrossTurnedFace(t *testing.T) {
	mesh := testMeshes(t)["turned about x"]
	runForests(t, 2, mesh, func(f *Forest) error {
		if err := f.CreateTrees(0); err != nil {
			return err
		}
		if err := f.CreateNodes(3, element.Uniform); err != nil {
			return err
		}
		// 5x3x3 lattice over both cubes
		assert.Equal(t, 45, f.NodeRange()[2])
		assert.Zero(t, f.NumDepNodes())
		checkNodes(t, f, mesh, 3, element.Uniform)

		// The centre of the shared face is one key from either side
		lat := 2 * quadrant.HMax
		fromLow := f.Connectivity().TransformNode(Octant{Block: 0, X: lat, Y: lat / 2, Z: lat / 2, Level: quadrant.MaxLevel}, lat)
		fromHigh := f.Connectivity().TransformNode(Octant{Block: 1, X: 0, Y: lat / 2, Z: lat / 2, Level: quadrant.MaxLevel}, lat)
		assert.Equal(t, fromLow, fromHigh)
		n, ok := f.NodeNumber(fromLow)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, n, 0)
		return nil
	})
}
