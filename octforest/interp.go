package octforest

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/ctessum/sparse"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/element"
	"github.com/notargets/QuadForest/forest"
	"github.com/notargets/QuadForest/quadrant"
)

type (
	InterpRow     = forest.InterpRow
	Interpolation = forest.Interpolation
)

func anchorCoord(x float64) int32 {
	a := int32(math.Floor(x))
	return max(0, min(quadrant.HMax-1, a))
}

// FindEnclosing returns the local cell of block whose closed footprint
// holds the point (x, y, z), given in block units
func (f *Forest) FindEnclosing(block int32, x, y, z float64) (Octant, bool) {
	if f.octants == nil {
		return Octant{}, false
	}
	anchor := Octant{Block: block, X: anchorCoord(x), Y: anchorCoord(y), Z: anchorCoord(z), Level: quadrant.MaxLevel}
	items := f.octants.Items()
	n := sort.Search(len(items), func(i int) bool {
		return items[i].CompareNode(anchor) > 0
	})
	if n == 0 {
		return Octant{}, false
	}
	c := items[n-1]
	if c.Block != block {
		return Octant{}, false
	}
	h := float64(c.Side())
	for i, v := range [3]float64{x, y, z} {
		lo := float64(coords(c)[i])
		if v < lo || v > lo+h {
			return Octant{}, false
		}
	}
	return c, true
}

// axisWeights returns the weights of the coarse knots along one axis for a
// fine lattice coordinate
func axisWeights(fine, coarse *nodeData, x, level, cx, hc int32) []float64 {
	if coarse.uni && level == quadrant.MaxLevel {
		nf := int32(fine.order - 1)
		if x == fine.lattice()-1 {
			x = fine.lattice()
		}
		return element.InterpWeights(coarse.order, x-nf*cx, nf*hc)
	}
	u := (fine.coord(x, level) - float64(cx)) / float64(hc)
	return element.LagrangeWeights(coarse.knots, max(0, min(1, u)))
}

// CreateInterpolation builds the operator carrying a field on the nodes of
// coarse onto the nodes of f. Both forests must share the connectivity and
// have nodes, and every cell of f must lie inside a cell of coarse. Owned
// fine nodes travel to the rank holding their enclosing coarse cell, which
// forms the tensor product weights and expands dependent coarse nodes.
func (f *Forest) CreateInterpolation(coarse *Forest) (*Interpolation, error) {
	if f.conn == nil || coarse.conn != f.conn {
		return nil, fmt.Errorf("interpolation: forests must share a connectivity")
	}
	if f.nodes == nil || coarse.nodes == nil {
		return nil, fmt.Errorf("interpolation: nodes not created")
	}
	fn, cn := f.nodes, coarse.nodes
	rank := f.comm.Rank()
	lo, hi := fn.nodeRange[rank], fn.nodeRange[rank+1]

	var owned []Octant
	var dest []int
	for _, key := range fn.keys {
		if int(key.Tag) < lo || int(key.Tag) >= hi {
			continue
		}
		x, y, z := fn.coord(key.X, key.Level), fn.coord(key.Y, key.Level), fn.coord(key.Z, key.Level)
		owned = append(owned, key)
		dest = append(dest, coarse.OwnerOf(Octant{
			Block: key.Block, X: anchorCoord(x), Y: anchorCoord(y), Z: anchorCoord(z), Level: quadrant.MaxLevel,
		}))
	}
	recv, _, err := comm.Exchange(f.comm, owned, dest, tagExchange)
	if err != nil {
		return nil, fmt.Errorf("interpolation: %w", err)
	}

	ptr, depConn, depWeights := coarse.DepNodeConn()
	np := cn.elem.Np()
	fineTotal := fn.nodeRange[len(fn.nodeRange)-1]
	coarseTotal := cn.nodeRange[len(cn.nodeRange)-1]
	ip := &Interpolation{Operator: sparse.ZerosSparse(fineTotal, coarseTotal)}

	for _, key := range recv {
		x, y, z := fn.coord(key.X, key.Level), fn.coord(key.Y, key.Level), fn.coord(key.Z, key.Level)
		c, ok := coarse.FindEnclosing(key.Block, x, y, z)
		if !ok {
			f.log.WithField("node", key).Error("no enclosing coarse cell")
			continue
		}
		hc := c.Side()
		wx := axisWeights(fn, cn, key.X, key.Level, c.X, hc)
		wy := axisWeights(fn, cn, key.Y, key.Level, c.Y, hc)
		wz := axisWeights(fn, cn, key.Z, key.Level, c.Z, hc)

		acc := make(map[int]float64)
		for k := 0; k < cn.order; k++ {
			for j := 0; j < cn.order; j++ {
				for i := 0; i < cn.order; i++ {
					w := wx[i] * wy[j] * wz[k]
					if w == 0 {
						continue
					}
					num := cn.conn[int(c.Tag)*np+cn.elem.Node(i, j, k)]
					if num >= 0 {
						acc[num] += w
						continue
					}
					d := -num - 1
					for m := ptr[d]; m < ptr[d+1]; m++ {
						acc[depConn[m]] += w * depWeights[m]
					}
				}
			}
		}

		row := InterpRow{Row: int(key.Tag)}
		for col, w := range acc {
			if w != 0 {
				row.Cols = append(row.Cols, col)
			}
		}
		slices.Sort(row.Cols)
		for _, col := range row.Cols {
			w := acc[col]
			row.Weights = append(row.Weights, w)
			ip.Operator.AddVal(w, row.Row, col)
		}
		ip.Rows = append(ip.Rows, row)
	}
	slices.SortFunc(ip.Rows, func(a, b InterpRow) int { return a.Row - b.Row })
	f.log.Debugf("interpolation: %d rows", len(ip.Rows))
	return ip, nil
}
