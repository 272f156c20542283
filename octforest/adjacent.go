package octforest

import (
	"fmt"
	"slices"

	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/topology"
)

var (
	faceChildren [6][4]int  // Children touching each face
	edgeChildren [12][2]int // Children touching each edge
)

func init() {
	for face := range faceChildren {
		axis, side := face>>1, face&1
		k := 0
		for id := 0; id < 8; id++ {
			if (id>>axis)&1 == side {
				faceChildren[face][k] = id
				k++
			}
		}
	}
	for edge := range edgeChildren {
		b0, b1 := topology.TangentAxes(edge >> 2)
		k := 0
		for id := 0; id < 8; id++ {
			if (id>>b0)&1 == edge&1 && (id>>b1)&1 == (edge>>1)&1 {
				edgeChildren[edge][k] = id
				k++
			}
		}
	}
}

func coords(o Octant) [3]int32 { return [3]int32{o.X, o.Y, o.Z} }

func place(o Octant, block int, p [3]int32) Octant {
	o.Block = int32(block)
	o.X, o.Y, o.Z = p[0], p[1], p[2]
	return o
}

// outside reports, per axis, whether the anchor is below (-1) or above (+1)
// the block, and on how many axes it has left
func outside(o Octant) (d [3]int, n int) {
	for i, x := range coords(o) {
		switch {
		case x < 0:
			d[i] = -1
			n++
		case x >= quadrant.HMax:
			d[i] = 1
			n++
		}
	}
	return d, n
}

func bit(d int) int {
	if d > 0 {
		return 1
	}
	return 0
}

// images maps the box of side size anchored at o into every block it
// overlaps. A box inside its block is its own image. A box that has left
// over a face lands in the block across; over an edge or a corner it lands
// in every other block sharing that edge or corner node. Images keep the
// level and tag of o. Boxes leaving through the domain boundary have none.
func (f *Forest) images(o Octant, size int32) []Octant {
	d, n := outside(o)
	if n == 0 {
		return []Octant{o}
	}
	conn := f.conn
	block := int(o.Block)
	far := quadrant.HMax - size
	p := coords(o)
	var out []Octant
	switch n {
	case 1:
		axis := 0
		for i := range d {
			if d[i] != 0 {
				axis = i
			}
		}
		link := conn.FaceLinks[6*block+2*axis+bit(d[axis])]
		if link.Block < 0 {
			return nil
		}
		var hi [3]int32
		for i := range p {
			hi[i] = p[i] + size
		}
		a, b := link.T.Apply(p, quadrant.HMax), link.T.Apply(hi, quadrant.HMax)
		for i := range p {
			p[i] = min(a[i], b[i])
		}
		out = append(out, place(o, link.Block, p))
	case 2:
		axis := 0
		for i := range d {
			if d[i] == 0 {
				axis = i
			}
		}
		b0, b1 := topology.TangentAxes(axis)
		edge := topology.HexEdge(axis, bit(d[b0]), bit(d[b1]))
		id := conn.BlockEdgeConn[12*block+edge]
		for ip := conn.EdgeBlockPtr[id]; ip < conn.EdgeBlockPtr[id+1]; ip++ {
			adj, adjEdge := conn.EdgeBlockConn[ip]/12, conn.EdgeBlockConn[ip]%12
			if adj == block {
				continue
			}
			u := p[axis]
			if conn.EdgeReversed(block, edge, adj, adjEdge) {
				u = quadrant.HMax - size - u
			}
			out = append(out, place(o, adj, topology.EdgePoint(adjEdge, u, far)))
		}
	default:
		corner := bit(d[0]) | bit(d[1])<<1 | bit(d[2])<<2
		node := conn.BlockConn[8*block+corner]
		for ip := conn.NodeBlockPtr[node]; ip < conn.NodeBlockPtr[node+1]; ip++ {
			adj := conn.NodeBlockConn[ip] / 8
			if adj == block {
				continue
			}
			out = append(out, place(o, adj, topology.CornerPoint(conn.NodeBlockConn[ip]%8, far)))
		}
	}
	return out
}

// ComputeAdjacentOctants builds the ghost layer: each rank receives the
// cells of other ranks touching one of its cells through a face, an edge
// or a corner
func (f *Forest) ComputeAdjacentOctants() error {
	if err := f.requireConnectivity(); err != nil {
		return err
	}
	rank := f.comm.Rank()
	var list []Octant
	send := func(orig Octant, cells []Octant) {
		for _, n := range cells {
			if owner := f.OwnerOf(n); owner != rank {
				orig.Tag = int32(owner)
				list = append(list, orig)
			}
		}
	}
	for _, o := range f.octants.Items() {
		size := quadrant.Side(o.Level + 1)
		for face := 0; face < 6; face++ {
			for _, id := range faceChildren[face] {
				send(o, f.images(o.Child(id).FaceNeighbor(face), size))
			}
		}
		for edge := 0; edge < 12; edge++ {
			for _, id := range edgeChildren[edge] {
				send(o, f.images(o.Child(id).EdgeNeighbor(edge), size))
			}
		}
		for corner := 0; corner < 8; corner++ {
			send(o, f.images(o.Child(corner).CornerNeighbor(corner), size))
		}
	}

	slices.SortFunc(list, func(a, b Octant) int {
		if a.Tag != b.Tag {
			return int(a.Tag - b.Tag)
		}
		return a.Compare(b)
	})
	list = slices.CompactFunc(list, func(a, b Octant) bool {
		return a.Tag == b.Tag && a.SameCell(b)
	})

	recv, _, err := f.distributeOctants(list, true)
	if err != nil {
		return fmt.Errorf("ghost layer: %w", err)
	}
	recv.Sort()
	recv.Unique()
	f.adjacent = recv
	f.log.Debugf("ghost layer holds %d cells", recv.Len())
	return nil
}

// isLeaf reports whether o is a local or ghost cell
func (f *Forest) isLeaf(o Octant) bool {
	o.Tag = 0
	if f.octants.Index(o, false) >= 0 {
		return true
	}
	return f.adjacent.Index(o, false) >= 0
}

// leafAcross reports whether any image of the same-level neighbour n of a
// cell with side size is a leaf
func (f *Forest) leafAcross(n Octant, size int32) bool {
	for _, img := range f.images(n, size) {
		if f.isLeaf(img) {
			return true
		}
	}
	return false
}
