package forest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/element"
	"github.com/notargets/QuadForest/quadrant"
)

type nodeValue struct {
	N int
	V float64
}

// nodeValues evaluates field at every owned node and gathers the values
func nodeValues(f *Forest, field func(x, y float64) float64) map[int]float64 {
	rank := f.Comm().Rank()
	lo, hi := f.NodeRange()[rank], f.NodeRange()[rank+1]
	var mine []nodeValue
	locs := f.NodeLocations()
	for i, key := range f.Nodes() {
		if n := int(key.Tag); n >= lo && n < hi {
			mine = append(mine, nodeValue{N: n, V: field(locs[i].X, locs[i].Y)})
		}
	}
	out := make(map[int]float64)
	for _, part := range comm.Allgatherv(f.Comm(), mine) {
		for _, nv := range part {
			out[nv.N] = nv.V
		}
	}
	return out
}

func TestInterpolationReproducesLinearFields(t *testing.T) {
	topo := gridTopology(t, 2, 2)
	field := func(x, y float64) float64 { return 0.5 + x - 2*y }
	cases := []struct {
		coarseOrder, fineOrder int
		kt                     element.KnotType
	}{
		{2, 2, element.Uniform},
		{3, 2, element.Uniform},
		{2, 3, element.GaussLobatto},
		{3, 3, element.GaussLobatto},
	}
	for _, tc := range cases {
		for size := 1; size <= 3; size++ {
			name := fmt.Sprintf("%d->%d/%v/ranks=%d", tc.coarseOrder, tc.fineOrder, tc.kt, size)
			t.Run(name, func(t *testing.T) {
				runForests(t, size, topo, func(coarse *Forest) error {
					if err := refineCornerBlock(coarse); err != nil {
						return err
					}
					if err := coarse.Balance(false); err != nil {
						return err
					}
					fine := coarse.Duplicate()
					if err := fine.Refine(nil, 0, quadrant.MaxLevel); err != nil {
						return err
					}
					if err := coarse.CreateNodes(tc.coarseOrder, tc.kt); err != nil {
						return err
					}
					if err := fine.CreateNodes(tc.fineOrder, tc.kt); err != nil {
						return err
					}
					ip, err := fine.CreateInterpolation(coarse)
					if err != nil {
						return err
					}

					fineTotal := fine.NodeRange()[size]
					assert.Equal(t, fineTotal, comm.AllreduceSum(fine.Comm(), len(ip.Rows)), "one row per fine node")

					cv := nodeValues(coarse, field)
					fv := nodeValues(fine, field)
					got := ip.Apply(func(col int) float64 { return cv[col] })
					for _, r := range ip.Rows {
						assert.InDelta(t, 1.0, floats.Sum(r.Weights), 1e-12, "row %d", r.Row)
						assert.InDelta(t, fv[r.Row], got[r.Row], 1e-10, "row %d", r.Row)
						for k, c := range r.Cols {
							assert.Equal(t, r.Weights[k], ip.Operator.Get(r.Row, c))
						}
					}
					return nil
				})
			})
		}
	}
}

func TestInterpolationNeedsNodes(t *testing.T) {
	runForests(t, 1, gridTopology(t, 1, 1), func(f *Forest) error {
		if err := f.CreateTrees(1); err != nil {
			return err
		}
		_, err := f.CreateInterpolation(f.Duplicate())
		assert.Error(t, err)
		return nil
	})
}

func TestFindEnclosing(t *testing.T) {
	runForests(t, 1, gridTopology(t, 2, 1), func(f *Forest) error {
		if err := f.CreateTrees(1); err != nil {
			return err
		}
		h := float64(quadrant.Side(1))
		c, ok := f.FindEnclosing(1, 1.5*h, 0.25*h)
		assert.True(t, ok)
		assert.Equal(t, Quadrant{Block: 1, X: quadrant.Side(1), Y: 0, Level: 1, Tag: 5}, c)

		// The far corner of the block belongs to the last cell
		c, ok = f.FindEnclosing(0, 2*h, 2*h)
		assert.True(t, ok)
		assert.Equal(t, int32(3), c.Tag)
		return nil
	})
}
