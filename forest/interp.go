package forest

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/ctessum/sparse"

	"github.com/notargets/QuadForest/element"
	"github.com/notargets/QuadForest/quadrant"
)

// InterpRow expresses one fine node as a combination of independent coarse
// nodes
type InterpRow struct {
	Row     int
	Cols    []int
	Weights []float64
}

// Interpolation is the coarse to fine transfer built on one rank. Rows are
// the fine nodes whose enclosing coarse cell is held here; Operator holds
// the same weights as a (fine total) x (coarse total) sparse array.
type Interpolation struct {
	Rows     []InterpRow
	Operator *sparse.SparseArray
}

// Apply evaluates the rows held here for a coarse field indexed by global
// coarse node number
func (ip *Interpolation) Apply(coarse func(col int) float64) map[int]float64 {
	out := make(map[int]float64, len(ip.Rows))
	for _, r := range ip.Rows {
		var sum float64
		for k, c := range r.Cols {
			sum += r.Weights[k] * coarse(c)
		}
		out[r.Row] = sum
	}
	return out
}

func anchorCoord(x float64) int32 {
	a := int32(math.Floor(x))
	return max(0, min(quadrant.HMax-1, a))
}

// FindEnclosing returns the local cell of block whose closed footprint
// holds the point (x, y), given in block units
func (f *Forest) FindEnclosing(block int32, x, y float64) (Quadrant, bool) {
	if f.quadrants == nil {
		return Quadrant{}, false
	}
	anchor := Quadrant{Block: block, X: anchorCoord(x), Y: anchorCoord(y), Level: quadrant.MaxLevel}
	items := f.quadrants.Items()
	n := sort.Search(len(items), func(i int) bool {
		return items[i].CompareNode(anchor) > 0
	})
	if n == 0 {
		return Quadrant{}, false
	}
	c := items[n-1]
	h := float64(c.Side())
	if c.Block != block || x < float64(c.X) || x > float64(c.X)+h || y < float64(c.Y) || y > float64(c.Y)+h {
		return Quadrant{}, false
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

// CreateInterpolation builds the operator that carries a field on the nodes
// of coarse onto the nodes of f. Both forests must share the topology and
// have nodes; every cell of f must lie inside a cell of coarse. Each owned
// fine node is sent to the rank holding its enclosing coarse cell, where
// the tensor product weights are formed and dependent coarse nodes are
// expanded into the independent nodes they hang from.
func (f *Forest) CreateInterpolation(coarse *Forest) (*Interpolation, error) {
	if f.topo == nil || coarse.topo != f.topo {
		return nil, fmt.Errorf("interpolation: forests must share a topology")
	}
	if f.nodes == nil || coarse.nodes == nil {
		return nil, fmt.Errorf("interpolation: nodes not created")
	}
	fn, cn := f.nodes, coarse.nodes
	rank := f.comm.Rank()
	lo, hi := fn.nodeRange[rank], fn.nodeRange[rank+1]

	var owned []Quadrant
	var dest []int
	for _, key := range fn.keys {
		if int(key.Tag) < lo || int(key.Tag) >= hi {
			continue
		}
		x, y := fn.coord(key.X, key.Level), fn.coord(key.Y, key.Level)
		owned = append(owned, key)
		dest = append(dest, coarse.OwnerOf(Quadrant{
			Block: key.Block, X: anchorCoord(x), Y: anchorCoord(y), Level: quadrant.MaxLevel,
		}))
	}
	recv, _, err := exchange(f.comm, owned, dest)
	if err != nil {
		return nil, fmt.Errorf("interpolation: %w", err)
	}

	ptr, depConn, depWeights := coarse.DepNodeConn()
	np := cn.elem.Np()
	fineTotal := fn.nodeRange[len(fn.nodeRange)-1]
	coarseTotal := cn.nodeRange[len(cn.nodeRange)-1]
	ip := &Interpolation{Operator: sparse.ZerosSparse(fineTotal, coarseTotal)}

	for _, key := range recv {
		x, y := fn.coord(key.X, key.Level), fn.coord(key.Y, key.Level)
		c, ok := coarse.FindEnclosing(key.Block, x, y)
		if !ok {
			f.log.WithField("node", key).Error("no enclosing coarse cell")
			continue
		}
		hc := c.Side()
		wx := axisWeights(fn, cn, key.X, key.Level, c.X, hc)
		wy := axisWeights(fn, cn, key.Y, key.Level, c.Y, hc)

		acc := make(map[int]float64)
		for j := 0; j < cn.order; j++ {
			for i := 0; i < cn.order; i++ {
				w := wx[i] * wy[j]
				if w == 0 {
					continue
				}
				num := cn.conn[int(c.Tag)*np+cn.elem.Node(i, j, 0)]
				if num >= 0 {
					acc[num] += w
					continue
				}
				d := -num - 1
				for k := ptr[d]; k < ptr[d+1]; k++ {
					acc[depConn[k]] += w * depWeights[k]
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
