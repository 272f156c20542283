package topology

import (
	"fmt"
	"slices"

	"github.com/notargets/QuadForest/quadrant"
)

// HexFaceCorners lists the local corners of each hex face, the lower
// tangential axis running fastest. Faces 0/1 are x=0/x=hmax, 2/3 are y and
// 4/5 are z.
var HexFaceCorners [6][4]int

// HexEdgeCorners lists the two end corners of each hex edge in increasing
// running coordinate. Edges 0-3 run along x, 4-7 along y and 8-11 along z;
// the two low bits place the edge on the remaining axes in increasing axis
// order.
var HexEdgeCorners [12][2]int

func init() {
	for f := 0; f < 6; f++ {
		axis := f >> 1
		t0, t1 := TangentAxes(axis)
		for k := 0; k < 4; k++ {
			HexFaceCorners[f][k] = (f&1)<<axis | (k&1)<<t0 | (k>>1)<<t1
		}
	}
	for e := 0; e < 12; e++ {
		axis := e >> 2
		b0, b1 := TangentAxes(axis)
		c := (e&1)<<b0 | ((e>>1)&1)<<b1
		HexEdgeCorners[e] = [2]int{c, c | 1<<axis}
	}
}

// TangentAxes returns the two axes other than axis in increasing order
func TangentAxes(axis int) (int, int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}

// Transform maps coordinates of one block frame into another. Source axis
// i lands on axis Perm[i] as Sign[i]*x + Offset[i]*span.
type Transform struct {
	Perm   [3]int
	Sign   [3]int32
	Offset [3]int32
}

// Apply maps the point p on the lattice of the given span
func (t Transform) Apply(p [3]int32, span int32) [3]int32 {
	var q [3]int32
	for i := 0; i < 3; i++ {
		q[t.Perm[i]] = int32(int64(t.Sign[i])*int64(p[i]) + int64(t.Offset[i])*int64(span))
	}
	return q
}

// FaceLink is the block across one local face. Block is -1 on the domain
// boundary.
type FaceLink struct {
	Block, Face int
	T           Transform // From the frame of the near block into Block's frame
}

// HexConnectivity is the block-level adjacency of a 3D multi-block domain.
// Corners are numbered in tensor order, bit 0 along x, bit 1 along y and
// bit 2 along z. Incidence lists store nper*block+local, nper being 8 for
// corners, 12 for edges and 6 for faces.
type HexConnectivity struct {
	NumNodes  int
	NumBlocks int
	NumEdges  int
	NumFaces  int

	BlockConn     []int // [8*block+corner] -> node
	BlockEdgeConn []int // [12*block+edge]  -> edge
	BlockFaceConn []int // [6*block+face]   -> face

	NodeBlockPtr  []int
	NodeBlockConn []int // 8*block+corner
	EdgeBlockPtr  []int
	EdgeBlockConn []int // 12*block+edge
	FaceBlockPtr  []int
	FaceBlockConn []int // 6*block+face

	NodeOwners []int // Lowest incident block of each node
	EdgeOwners []int
	FaceOwners []int

	FaceLinks []FaceLink // [6*block+face]
}

// NewHexConnectivity builds the block adjacency from eight nodes per block
// in tensor order
func NewHexConnectivity(numNodes, numBlocks int, blockConn []int) (*HexConnectivity, error) {
	if numNodes <= 0 || numBlocks <= 0 {
		return nil, fmt.Errorf("invalid dimensions: numNodes=%d, numBlocks=%d", numNodes, numBlocks)
	}
	if len(blockConn) != 8*numBlocks {
		return nil, fmt.Errorf("blockConn length %d does not match expected %d", len(blockConn), 8*numBlocks)
	}
	for i, n := range blockConn {
		if n < 0 || n >= numNodes {
			return nil, fmt.Errorf("block %d corner %d: node %d out of range [0,%d)", i/8, i%8, n, numNodes)
		}
	}
	c := &HexConnectivity{
		NumNodes:  numNodes,
		NumBlocks: numBlocks,
		BlockConn: append([]int(nil), blockConn...),
	}
	c.NodeBlockPtr, c.NodeBlockConn = incidence(c.BlockConn, numNodes)
	c.ComputeEdgesFromNodes()
	c.EdgeBlockPtr, c.EdgeBlockConn = incidence(c.BlockEdgeConn, c.NumEdges)
	c.ComputeFacesFromNodes()
	c.FaceBlockPtr, c.FaceBlockConn = incidence(c.BlockFaceConn, c.NumFaces)
	c.NodeOwners = owners(c.NodeBlockPtr, c.NodeBlockConn, 8)
	c.EdgeOwners = owners(c.EdgeBlockPtr, c.EdgeBlockConn, 12)
	c.FaceOwners = owners(c.FaceBlockPtr, c.FaceBlockConn, 6)
	if err := c.computeFaceLinks(); err != nil {
		return nil, err
	}
	return c, nil
}

// incidence inverts an entity list indexed by nper*block+local into CSR
// form
func incidence(entityOf []int, count int) (ptr, conn []int) {
	ptr = make([]int, count+1)
	for _, e := range entityOf {
		ptr[e+1]++
	}
	for i := 0; i < count; i++ {
		ptr[i+1] += ptr[i]
	}
	conn = make([]int, len(entityOf))
	next := append([]int(nil), ptr[:count]...)
	for i, e := range entityOf {
		conn[next[e]] = i
		next[e]++
	}
	return ptr, conn
}

func owners(ptr, conn []int, nper int) []int {
	out := make([]int, len(ptr)-1)
	for e := range out {
		out[e] = -1
		for ip := ptr[e]; ip < ptr[e+1]; ip++ {
			if b := conn[ip] / nper; out[e] < 0 || b < out[e] {
				out[e] = b
			}
		}
	}
	return out
}

// numberByNodes gives every local entity the number of the first entity,
// in block order, with the same set of nodes
func (c *HexConnectivity) numberByNodes(nper int, corners func(local int) []int) ([]int, int) {
	conn := make([]int, nper*c.NumBlocks)
	seen := make(map[[4]int]int)
	for block := 0; block < c.NumBlocks; block++ {
		for local := 0; local < nper; local++ {
			key := [4]int{-1, -1, -1, -1}
			for k, corner := range corners(local) {
				key[k] = c.BlockConn[8*block+corner]
			}
			slices.Sort(key[:])
			n, ok := seen[key]
			if !ok {
				n = len(seen)
				seen[key] = n
			}
			conn[nper*block+local] = n
		}
	}
	return conn, len(seen)
}

// ComputeEdgesFromNodes numbers the unique edges in block order
func (c *HexConnectivity) ComputeEdgesFromNodes() {
	c.BlockEdgeConn, c.NumEdges = c.numberByNodes(12, func(e int) []int { return HexEdgeCorners[e][:] })
}

// ComputeFacesFromNodes numbers the unique faces in block order. Two local
// faces are the same face when they have the same four nodes.
func (c *HexConnectivity) ComputeFacesFromNodes() {
	c.BlockFaceConn, c.NumFaces = c.numberByNodes(6, func(f int) []int { return HexFaceCorners[f][:] })
}

// computeFaceLinks pairs the two sides of every interior face and derives
// the coordinate transform across it from the shared corner nodes
func (c *HexConnectivity) computeFaceLinks() error {
	c.FaceLinks = make([]FaceLink, 6*c.NumBlocks)
	for i := range c.FaceLinks {
		block, face := i/6, i%6
		link := FaceLink{Block: -1, Face: -1}
		id := c.BlockFaceConn[i]
		n := c.FaceBlockPtr[id+1] - c.FaceBlockPtr[id]
		if n > 2 {
			return fmt.Errorf("face %d is shared by %d block faces", id, n)
		}
		for ip := c.FaceBlockPtr[id]; ip < c.FaceBlockPtr[id+1]; ip++ {
			if entry := c.FaceBlockConn[ip]; entry != i {
				link.Block, link.Face = entry/6, entry%6
			}
		}
		if link.Block >= 0 {
			t, err := c.faceTransform(block, face, link.Block, link.Face)
			if err != nil {
				return err
			}
			link.T = t
		}
		c.FaceLinks[i] = link
	}
	return nil
}

func (c *HexConnectivity) faceTransform(block, face, adj, adjFace int) (Transform, error) {
	var t Transform
	a, s := face>>1, face&1
	b, u := adjFace>>1, adjFace&1

	// Leaving through the near face enters through the far one
	t.Perm[a] = b
	switch {
	case s == 1 && u == 0:
		t.Sign[a], t.Offset[a] = 1, -1
	case s == 1 && u == 1:
		t.Sign[a], t.Offset[a] = -1, 2
	case s == 0 && u == 0:
		t.Sign[a], t.Offset[a] = -1, 0
	default:
		t.Sign[a], t.Offset[a] = 1, 1
	}

	var far [4]int
	for k, corner := range HexFaceCorners[face] {
		node := c.BlockConn[8*block+corner]
		far[k] = -1
		for _, ac := range HexFaceCorners[adjFace] {
			if c.BlockConn[8*adj+ac] == node {
				far[k] = ac
			}
		}
		if far[k] < 0 {
			return t, fmt.Errorf("block %d face %d and block %d face %d do not share node %d",
				block, face, adj, adjFace, node)
		}
	}
	t0, t1 := TangentAxes(a)
	for _, step := range [2]struct{ axis, k int }{{t0, 1}, {t1, 2}} {
		diff := far[0] ^ far[step.k]
		axis := -1
		for bit := 0; bit < 3; bit++ {
			if diff == 1<<bit {
				axis = bit
			}
		}
		if axis < 0 || axis == b {
			return t, fmt.Errorf("block %d face %d is twisted against block %d face %d",
				block, face, adj, adjFace)
		}
		t.Perm[step.axis] = axis
		if far[step.k]&diff != 0 {
			t.Sign[step.axis], t.Offset[step.axis] = 1, 0
		} else {
			t.Sign[step.axis], t.Offset[step.axis] = -1, 1
		}
	}
	return t, nil
}

// EdgeReversed reports whether local edge adjEdge of adjBlock runs opposite
// to local edge edge of block
func (c *HexConnectivity) EdgeReversed(block, edge, adjBlock, adjEdge int) bool {
	n0 := c.BlockConn[8*block+HexEdgeCorners[edge][0]]
	m0 := c.BlockConn[8*adjBlock+HexEdgeCorners[adjEdge][0]]
	return n0 != m0
}

// MaxAdjacent returns the largest number of blocks incident to a node, an
// edge and a face
func (c *HexConnectivity) MaxAdjacent() (nodes, edges, faces int) {
	most := func(ptr []int) int {
		m := 0
		for i := 0; i+1 < len(ptr); i++ {
			m = max(m, ptr[i+1]-ptr[i])
		}
		return m
	}
	return most(c.NodeBlockPtr), most(c.EdgeBlockPtr), most(c.FaceBlockPtr)
}

// HexEdge returns the local edge along axis whose position on the two
// other axes is given by the bits lo and hi
func HexEdge(axis, lo, hi int) int {
	return 4*axis + lo + 2*hi
}

// classify3 reports, per axis, whether a lattice point sits on the low (0)
// or high (1) side of the block or inside (-1), with the count of boundary
// axes
func classify3(p [3]int32, span int32) (side [3]int, n int) {
	for i, x := range p {
		switch x {
		case 0:
			side[i] = 0
			n++
		case span:
			side[i] = 1
			n++
		default:
			side[i] = -1
		}
	}
	return side, n
}

// TransformNode maps a node on the boundary of its block into the frame of
// the block that owns the shared corner, edge or face, so every block
// touching the node produces the same key. Coordinates equal to span are
// folded to span-1 last.
func (c *HexConnectivity) TransformNode(o quadrant.Octant, span int32) quadrant.Octant {
	p := [3]int32{o.X, o.Y, o.Z}
	side, n := classify3(p, span)
	block := int(o.Block)
	switch n {
	case 1:
		axis := 0
		for i, s := range side {
			if s >= 0 {
				axis = i
			}
		}
		face := 2*axis + side[axis]
		if c.FaceOwners[c.BlockFaceConn[6*block+face]] != block {
			link := c.FaceLinks[6*block+face]
			p = link.T.Apply(p, span)
			o.Block = int32(link.Block)
		}
	case 2:
		axis := 0
		for i, s := range side {
			if s < 0 {
				axis = i
			}
		}
		b0, b1 := TangentAxes(axis)
		edge := HexEdge(axis, side[b0], side[b1])
		id := c.BlockEdgeConn[12*block+edge]
		owner := c.EdgeOwners[id]
		if owner == block {
			break
		}
		for ip := c.EdgeBlockPtr[id]; ip < c.EdgeBlockPtr[id+1]; ip++ {
			entry := c.EdgeBlockConn[ip]
			if entry/12 != owner {
				continue
			}
			adjEdge := entry % 12
			u := p[axis]
			if c.EdgeReversed(block, edge, owner, adjEdge) {
				u = span - u
			}
			p = EdgePoint(adjEdge, u, span)
			o.Block = int32(owner)
			break
		}
	case 3:
		corner := side[0] | side[1]<<1 | side[2]<<2
		node := c.BlockConn[8*block+corner]
		owner := c.NodeOwners[node]
		if owner == block {
			break
		}
		for ip := c.NodeBlockPtr[node]; ip < c.NodeBlockPtr[node+1]; ip++ {
			if entry := c.NodeBlockConn[ip]; entry/8 == owner {
				p = CornerPoint(entry%8, span)
				o.Block = int32(owner)
				break
			}
		}
	}
	for i := range p {
		if p[i] == span {
			p[i] = span - 1
		}
	}
	o.X, o.Y, o.Z = p[0], p[1], p[2]
	return o
}

// EdgePoint places a point at u along local edge, the fixed axes at far
// times their edge bits
func EdgePoint(edge int, u, far int32) [3]int32 {
	axis := edge >> 2
	b0, b1 := TangentAxes(axis)
	var p [3]int32
	p[axis] = u
	p[b0] = far * int32(edge&1)
	p[b1] = far * int32((edge>>1)&1)
	return p
}

// CornerPoint is the point far along every axis whose corner bit is set
func CornerPoint(corner int, far int32) [3]int32 {
	return [3]int32{far * int32(corner&1), far * int32((corner>>1)&1), far * int32((corner>>2)&1)}
}
