package forest

import (
	"fmt"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/topology"
)

// balancer holds the working sets of one balance pass. Every cell stands
// for its whole sibling family.
type balancer struct {
	f      *Forest
	corner bool

	hash    *quadrant.Hash[Quadrant] // Families owned here
	ext     *quadrant.Hash[Quadrant] // Families owned elsewhere, ever seen
	pending []Quadrant               // ext entries not yet shipped
	queue   *quadrant.Queue[Quadrant]
}

func (b *balancer) add(q Quadrant) {
	q.Tag = 0
	if b.f.OwnerOf(q) == b.f.comm.Rank() {
		if b.hash.Add(q) {
			b.queue.Push(q)
		}
	} else if b.ext.Add(q) {
		b.pending = append(b.pending, q)
		b.queue.Push(q)
	}
}

// addEdgeNeighbors adds the family equivalent to q in every other block on
// the block edge that q has crossed. q is a first child lying outside its
// block along one axis.
func (b *balancer) addEdgeNeighbors(edgeIndex int, q Quadrant) {
	conn := b.f.topo.Connectivity
	block := int(q.Block)
	edge := conn.BlockEdgeConn[4*block+edgeIndex]
	h := q.Side()

	ucoord := q.X
	if edgeIndex < 2 {
		ucoord = q.Y
	}
	for ip := conn.EdgeBlockPtr[edge]; ip < conn.EdgeBlockPtr[edge+1]; ip++ {
		adj := conn.EdgeBlockConn[ip] / 4
		if adj == block {
			continue
		}
		adjIndex := conn.EdgeBlockConn[ip] % 4
		u := ucoord
		if conn.EdgeReversed(block, edgeIndex, adj, adjIndex) {
			u = quadrant.HMax - 2*h - ucoord
		}
		b.add(onEdge(adj, adjIndex, u, quadrant.HMax-2*h, q.Level))
	}
}

// addCornerNeighbors adds the family in the corner of every other block
// that shares the block corner q has crossed
func (b *balancer) addCornerNeighbors(corner int, q Quadrant) {
	conn := b.f.topo.Connectivity
	block := int(q.Block)
	node := conn.BlockConn[4*block+corner]
	h := q.Side()
	for ip := conn.NodeBlockPtr[node]; ip < conn.NodeBlockPtr[node+1]; ip++ {
		adj := conn.NodeBlockConn[ip] / 4
		if adj == block {
			continue
		}
		b.add(inCorner(adj, conn.NodeBlockConn[ip]%4, quadrant.HMax-2*h, q.Level))
	}
}

// onEdge places a cell against local edge adjIndex of block adj, u along the
// edge and far from the origin by far on the fixed axis
func onEdge(adj, adjIndex int, u, far, level int32) Quadrant {
	n := Quadrant{Block: int32(adj), Level: level}
	if adjIndex < 2 {
		n.X = far * int32(adjIndex%2)
		n.Y = u
	} else {
		n.X = u
		n.Y = far * int32(adjIndex%2)
	}
	return n
}

func inCorner(adj, adjIndex int, far, level int32) Quadrant {
	return Quadrant{
		Block: int32(adj),
		X:     far * int32(adjIndex%2),
		Y:     far * int32(adjIndex/2),
		Level: level,
	}
}

// balanceQuadrant adds the families that the parent of q needs around it
// for the 2:1 condition, crossing block boundaries where needed
func (b *balancer) balanceQuadrant(q Quadrant) {
	if q.Level <= 1 {
		return
	}
	p := q.Parent()
	for edge := 0; edge < 4; edge++ {
		n := p.EdgeNeighbor(edge).Sibling(0)
		if n.InRange() {
			b.add(n)
		} else {
			b.addEdgeNeighbors(edge, n)
		}
	}
	if !b.corner {
		return
	}
	for corner := 0; corner < 4; corner++ {
		n := p.CornerNeighbor(corner).Sibling(0)
		if n.InRange() {
			b.add(n)
			continue
		}
		ex := n.X < 0 || n.X >= quadrant.HMax
		ey := n.Y < 0 || n.Y >= quadrant.HMax
		if ex && ey {
			b.addCornerNeighbors(corner, n)
		} else {
			b.addEdgeNeighbors(topology.OutOfRangeEdge(n.X, n.Y, quadrant.HMax), n)
		}
	}
}

func (b *balancer) drain() {
	for b.queue.Len() > 0 {
		b.balanceQuadrant(b.queue.Pop())
	}
}

// Balance enforces the 2:1 condition across cell edges, and across corners
// when balanceCorner is set, over all blocks and ranks. The balanced cells
// replace the current ones.
func (f *Forest) Balance(balanceCorner bool) error {
	if err := f.requireTopology(); err != nil {
		return err
	}
	b := &balancer{
		f:      f,
		corner: balanceCorner,
		hash:   quadrant.NewHash[Quadrant](),
		ext:    quadrant.NewHash[Quadrant](),
		queue:  quadrant.NewQueue[Quadrant](),
	}

	// Seed with the family of every local cell
	for _, q := range f.quadrants.Items() {
		s := q.Sibling(0)
		s.Tag = 0
		if f.OwnerOf(s) == f.comm.Rank() {
			b.hash.Add(s)
		} else if b.ext.Add(s) {
			b.pending = append(b.pending, s)
		}
		b.balanceQuadrant(s)
	}
	b.drain()

	// Ship external families to their owners until no rank produces more
	rounds := 0
	for comm.AllreduceSum(f.comm, len(b.pending)) > 0 {
		rounds++
		recv, _, err := f.distributeQuadrants(b.pending, false)
		if err != nil {
			return fmt.Errorf("balance round %d: %w", rounds, err)
		}
		b.pending = b.pending[:0]
		for _, q := range recv.Items() {
			q.Tag = 0
			if b.hash.Add(q) {
				b.queue.Push(q)
			}
		}
		b.drain()
	}

	// Expand each family into its four siblings
	rank := f.comm.Rank()
	leaves := quadrant.NewHash[Quadrant]()
	var external []Quadrant
	for _, q := range b.hash.ToArray().Items() {
		if q.Level == 0 {
			leaves.Add(q)
			continue
		}
		for id := 0; id < 4; id++ {
			s := q.Sibling(id)
			if f.OwnerOf(s) == rank {
				leaves.Add(s)
			} else {
				external = append(external, s)
			}
		}
	}
	recv, _, err := f.distributeQuadrants(external, false)
	if err != nil {
		return fmt.Errorf("balance sibling exchange: %w", err)
	}
	for _, q := range recv.Items() {
		q.Tag = 0
		leaves.Add(q)
	}

	arr := leaves.ToArray()
	arr.Sort()
	items := quadrant.LinearizeFine(arr.Items())
	items = f.dropCoveringHigher(items)

	before := f.quadrants.Len()
	f.setQuadrants(quadrant.NewArray(items))
	f.log.WithField("rounds", rounds).Debugf("balanced %d cells into %d", before, len(items))
	return nil
}
