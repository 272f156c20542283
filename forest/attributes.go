package forest

import (
	"github.com/golang/geo/r3"

	"github.com/notargets/QuadForest/quadrant"
)

// NodeLocations evaluates the block surfaces at every entry of Nodes. It
// returns nil when the topology carries no geometry.
func (f *Forest) NodeLocations() []r3.Vector {
	if f.topo == nil || f.topo.Surfaces == nil || f.nodes == nil {
		f.log.Debug("NodeLocations: no geometry or nodes")
		return nil
	}
	out := make([]r3.Vector, len(f.nodes.keys))
	for i, key := range f.nodes.keys {
		x, y := f.NodePosition(key)
		s := f.topo.Surfaces[key.Block]
		umin, vmin, umax, vmax := s.GetRange()
		u := umin + (umax-umin)*x/float64(quadrant.HMax)
		v := vmin + (vmax-vmin)*y/float64(quadrant.HMax)
		out[i] = s.EvalPoint(u, v)
	}
	return out
}

// QuadsWithAttribute returns the local cells lying on a block whose surface
// has attr, and otherwise the cells with an edge on a block curve that has
// attr. The tag of a cell found through a curve is the local edge index.
func (f *Forest) QuadsWithAttribute(attr string) []Quadrant {
	if f.topo == nil || f.quadrants == nil {
		return nil
	}
	var out []Quadrant
	for _, q := range f.quadrants.Items() {
		if f.topo.Surfaces != nil && f.topo.Surfaces[q.Block].Attribute() == attr {
			out = append(out, q)
			continue
		}
		if f.topo.Curves == nil {
			continue
		}
		h := q.Side()
		for edge := 0; edge < 4; edge++ {
			var onBoundary bool
			switch edge {
			case 0:
				onBoundary = q.X == 0
			case 1:
				onBoundary = q.X+h == quadrant.HMax
			case 2:
				onBoundary = q.Y == 0
			case 3:
				onBoundary = q.Y+h == quadrant.HMax
			}
			if !onBoundary {
				continue
			}
			c := f.topo.Curves[f.topo.BlockEdgeConn[4*int(q.Block)+edge]]
			if c != nil && c.Attribute() == attr {
				e := q
				e.Tag = int32(edge)
				out = append(out, e)
			}
		}
	}
	return out
}

// NodesWithAttribute returns the owned nodes on a block corner, block edge
// or block interior whose vertex, curve or surface carries attr. The tag is
// the global node number.
func (f *Forest) NodesWithAttribute(attr string) []Quadrant {
	if f.topo == nil || f.nodes == nil {
		return nil
	}
	rank := f.comm.Rank()
	lo, hi := f.nodes.nodeRange[rank], f.nodes.nodeRange[rank+1]
	last := f.nodes.lattice() - 1
	var out []Quadrant
	for _, key := range f.nodes.keys {
		if int(key.Tag) < lo || int(key.Tag) >= hi {
			continue
		}
		fx := key.X == 0 || key.X == last
		fy := key.Y == 0 || key.Y == last
		block := 4 * int(key.Block)
		var got string
		switch {
		case fx && fy:
			if f.topo.Vertices == nil {
				continue
			}
			corner := 0
			if key.X != 0 {
				corner |= 1
			}
			if key.Y != 0 {
				corner |= 2
			}
			if v := f.topo.Vertices[f.topo.BlockConn[block+corner]]; v != nil {
				got = v.Attribute()
			}
		case fx || fy:
			if f.topo.Curves == nil {
				continue
			}
			edge := 3
			switch {
			case key.X == 0:
				edge = 0
			case key.X == last:
				edge = 1
			case key.Y == 0:
				edge = 2
			}
			if c := f.topo.Curves[f.topo.BlockEdgeConn[block+edge]]; c != nil {
				got = c.Attribute()
			}
		default:
			if f.topo.Surfaces == nil {
				continue
			}
			got = f.topo.Surfaces[key.Block].Attribute()
		}
		if got == attr {
			out = append(out, key)
		}
	}
	return out
}
