package octforest

import (
	"fmt"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/quadrant"
)

// balancer holds the working sets of one balance pass. Every cell stands
// for its whole sibling family.
type balancer struct {
	f      *Forest
	corner bool

	hash    *quadrant.Hash[Octant] // Families owned here
	ext     *quadrant.Hash[Octant] // Families owned elsewhere, ever seen
	pending []Octant               // ext entries not yet shipped
	queue   *quadrant.Queue[Octant]
}

func (b *balancer) add(o Octant) {
	o.Tag = 0
	if b.f.OwnerOf(o) == b.f.comm.Rank() {
		if b.hash.Add(o) {
			b.queue.Push(o)
		}
	} else if b.ext.Add(o) {
		b.pending = append(b.pending, o)
		b.queue.Push(o)
	}
}

// addFamily adds the family whose first child is n in every block the
// family box reaches
func (b *balancer) addFamily(n Octant) {
	for _, img := range b.f.images(n, 2*n.Side()) {
		b.add(img)
	}
}

// balanceOctant adds the families the parent of o needs around it
func (b *balancer) balanceOctant(o Octant) {
	if o.Level <= 1 {
		return
	}
	p := o.Parent()
	for face := 0; face < 6; face++ {
		b.addFamily(p.FaceNeighbor(face).Sibling(0))
	}
	for edge := 0; edge < 12; edge++ {
		b.addFamily(p.EdgeNeighbor(edge).Sibling(0))
	}
	if !b.corner {
		return
	}
	for corner := 0; corner < 8; corner++ {
		b.addFamily(p.CornerNeighbor(corner).Sibling(0))
	}
}

func (b *balancer) drain() {
	for b.queue.Len() > 0 {
		b.balanceOctant(b.queue.Pop())
	}
}

// Balance enforces the 2:1 condition across cell faces and edges, and
// across corners when balanceCorner is set, over all blocks and ranks.
// Edge balance is always on: it keeps every hanging node one level deep.
func (f *Forest) Balance(balanceCorner bool) error {
	if err := f.requireConnectivity(); err != nil {
		return err
	}
	b := &balancer{
		f:      f,
		corner: balanceCorner,
		hash:   quadrant.NewHash[Octant](),
		ext:    quadrant.NewHash[Octant](),
		queue:  quadrant.NewQueue[Octant](),
	}

	for _, o := range f.octants.Items() {
		s := o.Sibling(0)
		s.Tag = 0
		if f.OwnerOf(s) == f.comm.Rank() {
			b.hash.Add(s)
		} else if b.ext.Add(s) {
			b.pending = append(b.pending, s)
		}
		b.balanceOctant(s)
	}
	b.drain()

	rounds := 0
	for comm.AllreduceSum(f.comm, len(b.pending)) > 0 {
		rounds++
		recv, _, err := f.distributeOctants(b.pending, false)
		if err != nil {
			return fmt.Errorf("balance round %d: %w", rounds, err)
		}
		b.pending = b.pending[:0]
		for _, o := range recv.Items() {
			o.Tag = 0
			if b.hash.Add(o) {
				b.queue.Push(o)
			}
		}
		b.drain()
	}

	// Expand each family into its eight siblings
	rank := f.comm.Rank()
	leaves := quadrant.NewHash[Octant]()
	var external []Octant
	for _, o := range b.hash.ToArray().Items() {
		if o.Level == 0 {
			leaves.Add(o)
			continue
		}
		for id := 0; id < 8; id++ {
			s := o.Sibling(id)
			if f.OwnerOf(s) == rank {
				leaves.Add(s)
			} else {
				external = append(external, s)
			}
		}
	}
	recv, _, err := f.distributeOctants(external, false)
	if err != nil {
		return fmt.Errorf("balance sibling exchange: %w", err)
	}
	for _, o := range recv.Items() {
		o.Tag = 0
		leaves.Add(o)
	}

	arr := leaves.ToArray()
	arr.Sort()
	items := quadrant.LinearizeFine(arr.Items())
	items = f.dropCoveringHigher(items)

	before := f.octants.Len()
	f.setOctants(quadrant.NewArray(items))
	f.log.WithField("rounds", rounds).Debugf("balanced %d cells into %d", before, len(items))
	return nil
}
