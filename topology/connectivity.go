package topology

import (
	"fmt"

	"github.com/notargets/QuadForest/quadrant"
)

// FaceToEdgeNodes lists the two local corners at the ends of each local
// edge. Edges 0/1 are x=0/x=hmax and run along y; edges 2/3 are y=0/y=hmax
// and run along x.
var FaceToEdgeNodes = [4][2]int{{0, 2}, {1, 3}, {0, 1}, {2, 3}}

// Connectivity is the block-level adjacency of a 2D multi-block domain.
// Corners are numbered in tensor order: 0:(0,0) 1:(1,0) 2:(0,1) 3:(1,1).
// Incidence lists store 4*block+local so the local corner or edge index
// can be recovered with %4.
type Connectivity struct {
	NumNodes  int
	NumBlocks int
	NumEdges  int

	BlockConn     []int // [4*block+corner] -> node
	BlockEdgeConn []int // [4*block+edge]   -> edge

	NodeBlockPtr  []int // CSR offsets into NodeBlockConn, length NumNodes+1
	NodeBlockConn []int // 4*block+corner for every block touching the node
	EdgeBlockPtr  []int // CSR offsets into EdgeBlockConn, length NumEdges+1
	EdgeBlockConn []int // 4*block+edge for every block touching the edge

	NodeOwners []int // Lowest incident block of each node
	EdgeOwners []int // Lowest incident block of each edge
}

// NewConnectivity builds the full block adjacency from the block-to-node
// list (four nodes per block in tensor order)
func NewConnectivity(numNodes, numBlocks int, blockConn []int) (*Connectivity, error) {
	if numNodes <= 0 || numBlocks <= 0 {
		return nil, fmt.Errorf("invalid dimensions: numNodes=%d, numBlocks=%d", numNodes, numBlocks)
	}
	if len(blockConn) != 4*numBlocks {
		return nil, fmt.Errorf("blockConn length %d does not match expected %d", len(blockConn), 4*numBlocks)
	}
	for i, n := range blockConn {
		if n < 0 || n >= numNodes {
			return nil, fmt.Errorf("block %d corner %d: node %d out of range [0,%d)", i/4, i%4, n, numNodes)
		}
	}

	c := &Connectivity{
		NumNodes:  numNodes,
		NumBlocks: numBlocks,
		BlockConn: append([]int(nil), blockConn...),
	}
	c.computeNodesToBlocks()
	c.ComputeEdgesFromNodes()
	c.computeEdgesToBlocks()
	c.computeOwners()
	return c, nil
}

func (c *Connectivity) computeNodesToBlocks() {
	c.NodeBlockPtr = make([]int, c.NumNodes+1)
	for _, n := range c.BlockConn {
		c.NodeBlockPtr[n+1]++
	}
	for i := 0; i < c.NumNodes; i++ {
		c.NodeBlockPtr[i+1] += c.NodeBlockPtr[i]
	}
	c.NodeBlockConn = make([]int, len(c.BlockConn))
	next := append([]int(nil), c.NodeBlockPtr[:c.NumNodes]...)
	for i, n := range c.BlockConn {
		c.NodeBlockConn[next[n]] = i
		next[n]++
	}
}

// ComputeEdgesFromNodes numbers the unique edges. Blocks are visited in
// ascending order; each unnumbered local edge starts a flood fill over the
// blocks touching its end nodes, and every local edge with the same end
// nodes (in either order) gets the same number. Calling it again yields the
// same numbering.
func (c *Connectivity) ComputeEdgesFromNodes() {
	c.BlockEdgeConn = make([]int, 4*c.NumBlocks)
	for i := range c.BlockEdgeConn {
		c.BlockEdgeConn[i] = -1
	}

	edge := 0
	queue := make([]int, 0, 8)
	for block := 0; block < c.NumBlocks; block++ {
		for e := 0; e < 4; e++ {
			if c.BlockEdgeConn[4*block+e] >= 0 {
				continue
			}
			c.BlockEdgeConn[4*block+e] = edge
			queue = append(queue[:0], 4*block+e)
			for len(queue) > 0 {
				entry := queue[0]
				queue = queue[1:]
				n1, n2 := c.edgeNodes(entry/4, entry%4)

				for _, n := range [2]int{n1, n2} {
					for ip := c.NodeBlockPtr[n]; ip < c.NodeBlockPtr[n+1]; ip++ {
						adj := c.NodeBlockConn[ip] / 4
						for ae := 0; ae < 4; ae++ {
							if c.BlockEdgeConn[4*adj+ae] >= 0 {
								continue
							}
							m1, m2 := c.edgeNodes(adj, ae)
							if (m1 == n1 && m2 == n2) || (m1 == n2 && m2 == n1) {
								c.BlockEdgeConn[4*adj+ae] = edge
								queue = append(queue, 4*adj+ae)
							}
						}
					}
				}
			}
			edge++
		}
	}
	c.NumEdges = edge
}

func (c *Connectivity) computeEdgesToBlocks() {
	c.EdgeBlockPtr = make([]int, c.NumEdges+1)
	for _, e := range c.BlockEdgeConn {
		c.EdgeBlockPtr[e+1]++
	}
	for i := 0; i < c.NumEdges; i++ {
		c.EdgeBlockPtr[i+1] += c.EdgeBlockPtr[i]
	}
	c.EdgeBlockConn = make([]int, len(c.BlockEdgeConn))
	next := append([]int(nil), c.EdgeBlockPtr[:c.NumEdges]...)
	for i, e := range c.BlockEdgeConn {
		c.EdgeBlockConn[next[e]] = i
		next[e]++
	}
}

func (c *Connectivity) computeOwners() {
	c.NodeOwners = make([]int, c.NumNodes)
	for n := 0; n < c.NumNodes; n++ {
		c.NodeOwners[n] = -1
		for ip := c.NodeBlockPtr[n]; ip < c.NodeBlockPtr[n+1]; ip++ {
			b := c.NodeBlockConn[ip] / 4
			if c.NodeOwners[n] < 0 || b < c.NodeOwners[n] {
				c.NodeOwners[n] = b
			}
		}
	}
	c.EdgeOwners = make([]int, c.NumEdges)
	for e := 0; e < c.NumEdges; e++ {
		c.EdgeOwners[e] = -1
		for ip := c.EdgeBlockPtr[e]; ip < c.EdgeBlockPtr[e+1]; ip++ {
			b := c.EdgeBlockConn[ip] / 4
			if c.EdgeOwners[e] < 0 || b < c.EdgeOwners[e] {
				c.EdgeOwners[e] = b
			}
		}
	}
}

func (c *Connectivity) edgeNodes(block, edge int) (n1, n2 int) {
	return c.BlockConn[4*block+FaceToEdgeNodes[edge][0]],
		c.BlockConn[4*block+FaceToEdgeNodes[edge][1]]
}

// EdgeReversed reports whether local edge adjEdge of adjBlock runs opposite
// to local edge edge of block
func (c *Connectivity) EdgeReversed(block, edge, adjBlock, adjEdge int) bool {
	n1, n2 := c.edgeNodes(block, edge)
	nn1, nn2 := c.edgeNodes(adjBlock, adjEdge)
	return n1 == nn2 && n2 == nn1
}

// MaxAdjacent returns the largest number of blocks incident to a node and
// to an edge
func (c *Connectivity) MaxAdjacent() (nodes, edges int) {
	for n := 0; n < c.NumNodes; n++ {
		nodes = max(nodes, c.NodeBlockPtr[n+1]-c.NodeBlockPtr[n])
	}
	for e := 0; e < c.NumEdges; e++ {
		edges = max(edges, c.EdgeBlockPtr[e+1]-c.EdgeBlockPtr[e])
	}
	return nodes, edges
}

// OutOfRangeEdge returns the local edge crossed by a neighbour whose anchor
// has left the block along exactly one axis
func OutOfRangeEdge(x, y, hmax int32) int {
	switch {
	case x < 0:
		return 0
	case x >= hmax:
		return 1
	case y < 0:
		return 2
	}
	return 3
}

// boundaryEntity classifies a node on the lattice of span hmax: corner
// (0..3), edge (0..3) or interior
func boundaryEntity(x, y, hmax int32) (corner, edge int) {
	fx0, fy0 := x == 0, y == 0
	fx := fx0 || x == hmax
	fy := fy0 || y == hmax
	corner, edge = -1, -1
	switch {
	case fx && fy:
		corner = 0
		if !fx0 {
			corner |= 1
		}
		if !fy0 {
			corner |= 2
		}
	case fx && fx0:
		edge = 0
	case fx:
		edge = 1
	case fy && fy0:
		edge = 2
	case fy:
		edge = 3
	}
	return corner, edge
}

// MapNode expresses a node on the boundary of q.Block in the frame of the
// target block, flipping the running coordinate when the shared edge is
// traversed in opposite directions. It reports false when target does not
// touch the node.
func (c *Connectivity) MapNode(q quadrant.Quadrant, hmax int32, target int) (quadrant.Quadrant, bool) {
	block := int(q.Block)
	if target == block {
		return q, true
	}
	corner, edgeIndex := boundaryEntity(q.X, q.Y, hmax)
	switch {
	case corner >= 0:
		node := c.BlockConn[4*block+corner]
		for ip := c.NodeBlockPtr[node]; ip < c.NodeBlockPtr[node+1]; ip++ {
			if c.NodeBlockConn[ip]/4 == target {
				adj := int32(c.NodeBlockConn[ip] % 4)
				q.Block = int32(target)
				q.X = hmax * (adj % 2)
				q.Y = hmax * (adj / 2)
				return q, true
			}
		}
	case edgeIndex >= 0:
		edge := c.BlockEdgeConn[4*block+edgeIndex]
		u := q.X
		if edgeIndex < 2 {
			u = q.Y
		}
		for ip := c.EdgeBlockPtr[edge]; ip < c.EdgeBlockPtr[edge+1]; ip++ {
			if c.EdgeBlockConn[ip]/4 != target {
				continue
			}
			adj := c.EdgeBlockConn[ip] % 4
			if c.EdgeReversed(block, edgeIndex, target, adj) {
				u = hmax - u
			}
			q.Block = int32(target)
			if adj < 2 {
				q.X = hmax * int32(adj%2)
				q.Y = u
			} else {
				q.X = u
				q.Y = hmax * int32(adj%2)
			}
			return q, true
		}
	}
	return q, false
}

// TransformNode maps a node on the boundary of its block into the frame of
// the block that owns the shared corner or edge, so every block touching
// the node produces the same key. hmax is the span of the lattice the node
// lives on. Coordinates equal to hmax are folded to hmax-1 last.
func (c *Connectivity) TransformNode(q quadrant.Quadrant, hmax int32) quadrant.Quadrant {
	corner, edgeIndex := boundaryEntity(q.X, q.Y, hmax)
	owner := int(q.Block)
	switch {
	case corner >= 0:
		owner = c.NodeOwners[c.BlockConn[4*owner+corner]]
	case edgeIndex >= 0:
		owner = c.EdgeOwners[c.BlockEdgeConn[4*owner+edgeIndex]]
	}
	q, _ = c.MapNode(q, hmax, owner)
	if q.X == hmax {
		q.X = hmax - 1
	}
	if q.Y == hmax {
		q.Y = hmax - 1
	}
	return q
}
