package forest

import (
	"github.com/notargets/QuadForest/quadrant"
)

// Touch is a cell found next to a corner or edge of another cell. Index is
// the corner or edge of Cell that coincides with the queried one; Reversed
// reports that the shared edge runs the other way in Cell's frame.
type Touch struct {
	Cell     Quadrant
	Index    int
	Reversed bool
}

// TouchingCorners returns the cells of list, at the level of q, that share
// corner of q: q itself when present, then the neighbours in the same block
// or in the blocks across the block edge or corner
func (f *Forest) TouchingCorners(list *Array, q Quadrant, corner int) []Touch {
	var out []Touch
	if c, ok := list.Contains(q, false); ok {
		out = append(out, Touch{Cell: c, Index: corner})
	}
	h := q.Side()
	n := q.CornerNeighbor(corner)
	ex := n.X < 0 || n.X >= quadrant.HMax
	ey := n.Y < 0 || n.Y >= quadrant.HMax
	switch {
	case ex && ey:
		for _, m := range f.acrossCorner(corner, q) {
			if c, ok := list.Contains(m, false); ok {
				out = append(out, Touch{Cell: c, Index: int(m.Tag)})
			}
		}
	case ex || ey:
		edgeIndex := 3
		switch {
		case n.X < 0:
			edgeIndex = 0
		case n.X >= quadrant.HMax:
			edgeIndex = 1
		case n.Y < 0:
			edgeIndex = 2
		}
		// Position of the shared corner along the block edge
		ucorner := q.X + h*int32(corner%2)
		if edgeIndex < 2 {
			ucorner = q.Y + h*int32(corner/2)
		}
		conn := f.topo.Connectivity
		for _, m := range f.acrossEdge(edgeIndex, n) {
			adjIndex := int(m.Tag)
			unode := ucorner
			if conn.EdgeReversed(int(q.Block), edgeIndex, int(m.Block), adjIndex) {
				unode = quadrant.HMax - ucorner
			}
			c, ok := list.Contains(m, false)
			if !ok {
				continue
			}
			along := m.X
			if adjIndex < 2 {
				along = m.Y
			}
			var idx int
			switch {
			case adjIndex < 2 && along == unode:
				idx = adjIndex
			case adjIndex < 2:
				idx = adjIndex + 2
			case along == unode:
				idx = 2 * (adjIndex % 2)
			default:
				idx = 1 + 2*(adjIndex%2)
			}
			out = append(out, Touch{Cell: c, Index: idx})
		}
	default:
		if c, ok := list.Contains(n, false); ok {
			out = append(out, Touch{Cell: c, Index: 3 - corner})
		}
	}
	return out
}

// TouchingEdges returns the cells of list, at the level of q, that share
// edge of q: q itself when present, then the neighbour in the same block or
// in each block across the block edge
func (f *Forest) TouchingEdges(list *Array, q Quadrant, edge int) []Touch {
	var out []Touch
	if c, ok := list.Contains(q, false); ok {
		out = append(out, Touch{Cell: c, Index: edge})
	}
	n := q.EdgeNeighbor(edge)
	if n.InRange() {
		if c, ok := list.Contains(n, false); ok {
			out = append(out, Touch{Cell: c, Index: edge ^ 1})
		}
		return out
	}
	conn := f.topo.Connectivity
	for _, m := range f.acrossEdge(edge, n) {
		c, ok := list.Contains(m, false)
		if !ok {
			continue
		}
		adjIndex := int(m.Tag)
		out = append(out, Touch{
			Cell:     c,
			Index:    adjIndex,
			Reversed: conn.EdgeReversed(int(q.Block), edge, int(m.Block), adjIndex),
		})
	}
	return out
}
