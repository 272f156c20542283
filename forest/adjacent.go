package forest

import (
	"fmt"
	"slices"

	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/topology"
)

// edgeChildren lists the two children of a cell that touch each edge
var edgeChildren = [4][2]int{{0, 2}, {1, 3}, {0, 1}, {2, 3}}

// acrossEdge maps a cell that has left its block over local edge edgeIndex
// into every other block on that edge. The cell keeps its level and touches
// the shared edge from the inside of the other block.
func (f *Forest) acrossEdge(edgeIndex int, q Quadrant) []Quadrant {
	conn := f.topo.Connectivity
	block := int(q.Block)
	edge := conn.BlockEdgeConn[4*block+edgeIndex]
	h := q.Side()
	ucoord := q.X
	if edgeIndex < 2 {
		ucoord = q.Y
	}
	var out []Quadrant
	for ip := conn.EdgeBlockPtr[edge]; ip < conn.EdgeBlockPtr[edge+1]; ip++ {
		adj := conn.EdgeBlockConn[ip] / 4
		if adj == block {
			continue
		}
		adjIndex := conn.EdgeBlockConn[ip] % 4
		u := ucoord
		if conn.EdgeReversed(block, edgeIndex, adj, adjIndex) {
			u = quadrant.HMax - h - ucoord
		}
		n := onEdge(adj, adjIndex, u, quadrant.HMax-h, q.Level)
		n.Tag = int32(adjIndex)
		out = append(out, n)
	}
	return out
}

// acrossCorner maps a cell that has left its block over local corner into
// the corner of every other block sharing that node
func (f *Forest) acrossCorner(corner int, q Quadrant) []Quadrant {
	conn := f.topo.Connectivity
	block := int(q.Block)
	node := conn.BlockConn[4*block+corner]
	h := q.Side()
	var out []Quadrant
	for ip := conn.NodeBlockPtr[node]; ip < conn.NodeBlockPtr[node+1]; ip++ {
		adj := conn.NodeBlockConn[ip] / 4
		if adj == block {
			continue
		}
		n := inCorner(adj, conn.NodeBlockConn[ip]%4, quadrant.HMax-h, q.Level)
		n.Tag = int32(conn.NodeBlockConn[ip] % 4)
		out = append(out, n)
	}
	return out
}

// resolve returns the in-block images of a possibly out of range neighbour
func (f *Forest) resolve(n Quadrant) []Quadrant {
	if n.InRange() {
		return []Quadrant{n}
	}
	ex := n.X < 0 || n.X >= quadrant.HMax
	ey := n.Y < 0 || n.Y >= quadrant.HMax
	if ex && ey {
		corner := 0
		if n.X >= quadrant.HMax {
			corner |= 1
		}
		if n.Y >= quadrant.HMax {
			corner |= 2
		}
		return f.acrossCorner(corner, n)
	}
	return f.acrossEdge(topology.OutOfRangeEdge(n.X, n.Y, quadrant.HMax), n)
}

// ComputeAdjacentQuadrants builds the ghost layer: each rank receives the
// cells of other ranks that touch one of its cells through an edge or a
// corner
func (f *Forest) ComputeAdjacentQuadrants() error {
	if err := f.requireTopology(); err != nil {
		return err
	}
	rank := f.comm.Rank()
	var list []Quadrant
	send := func(orig Quadrant, cells []Quadrant) {
		for _, n := range cells {
			if owner := f.OwnerOf(n); owner != rank {
				orig.Tag = int32(owner)
				list = append(list, orig)
			}
		}
	}
	for _, q := range f.quadrants.Items() {
		p := q
		p.Level++
		for edge := 0; edge < 4; edge++ {
			for _, id := range edgeChildren[edge] {
				send(q, f.resolve(p.Sibling(id).EdgeNeighbor(edge)))
			}
		}
		for corner := 0; corner < 4; corner++ {
			send(q, f.resolve(p.Sibling(corner).CornerNeighbor(corner)))
		}
	}

	// Sending each cell once per destination is enough
	slices.SortFunc(list, func(a, b Quadrant) int {
		if a.Tag != b.Tag {
			return int(a.Tag - b.Tag)
		}
		return a.Compare(b)
	})
	list = slices.CompactFunc(list, func(a, b Quadrant) bool {
		return a.Tag == b.Tag && a.SameCell(b)
	})

	recv, _, err := f.distributeQuadrants(list, true)
	if err != nil {
		return fmt.Errorf("ghost layer: %w", err)
	}
	recv.Sort()
	recv.Unique()
	f.adjacent = recv
	f.log.Debugf("ghost layer holds %d cells", recv.Len())
	return nil
}

// findCell looks for the exact cell in the local cells and, when given, in
// a second sorted array
func (f *Forest) findCell(q Quadrant, extra *Array) bool {
	if f.quadrants.Index(q, false) >= 0 {
		return true
	}
	return extra != nil && extra.Index(q, false) >= 0
}

// ComputeDepEdges finds the edges of local and ghost cells whose neighbour
// across the edge is one level finer. Local cells are matched against local
// and ghost cells, ghost cells against local cells only. The tag of each
// entry is the dependent edge.
func (f *Forest) ComputeDepEdges() error {
	if err := f.requireTopology(); err != nil {
		return err
	}
	if f.adjacent == nil {
		if err := f.ComputeAdjacentQuadrants(); err != nil {
			return err
		}
	}
	var dep []Quadrant
	for pass := 0; pass < 2; pass++ {
		cells, extra := f.quadrants, f.adjacent
		if pass == 1 {
			cells, extra = f.adjacent, nil
		}
		for _, q := range cells.Items() {
			p := q
			p.Level++
			for edge := 0; edge < 4; edge++ {
				found := false
				for _, id := range edgeChildren[edge] {
					for _, n := range f.resolveEdge(edge, p.Sibling(id).EdgeNeighbor(edge)) {
						if f.findCell(n, extra) {
							found = true
							break
						}
					}
					if found {
						break
					}
				}
				if found {
					d := q
					d.Tag = int32(edge)
					dep = append(dep, d)
				}
			}
		}
	}
	arr := quadrant.NewArray(dep)
	arr.Sort()
	f.depEdges = arr
	return nil
}

// resolveEdge is resolve for a neighbour across a known edge
func (f *Forest) resolveEdge(edge int, n Quadrant) []Quadrant {
	if n.InRange() {
		return []Quadrant{n}
	}
	return f.acrossEdge(edge, n)
}
