package octforest

import (
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/partitions"
	"github.com/notargets/QuadForest/quadrant"
)

func clampLevel(level int) int32 {
	return int32(min(max(level, 0), quadrant.MaxLevel-1))
}

func (f *Forest) localBlocks() (start, end int, err error) {
	layout, err := partitions.NewBlockLayout(f.numBlocks(), f.comm.Size())
	if err != nil {
		return 0, 0, fmt.Errorf("splitting %d blocks: %w", f.numBlocks(), err)
	}
	p := layout.Partitions[f.comm.Rank()]
	return p.Start, p.End(), nil
}

// CreateTrees fills every local block with a uniform grid at level
func (f *Forest) CreateTrees(level int) error {
	if err := f.requireConnectivity(); err != nil {
		return err
	}
	start, end, err := f.localBlocks()
	if err != nil {
		return err
	}
	lvl := clampLevel(level)
	h := quadrant.Side(lvl)
	n := int32(1) << lvl

	var items []Octant
	for b := start; b < end; b++ {
		for z := int32(0); z < n; z++ {
			for y := int32(0); y < n; y++ {
				for x := int32(0); x < n; x++ {
					items = append(items, Octant{Block: int32(b), X: x * h, Y: y * h, Z: z * h, Level: lvl})
				}
			}
		}
	}
	arr := quadrant.NewArray(items)
	arr.Sort()
	f.setOctants(arr)
	f.log.WithField("level", lvl).Debugf("created %d cells on blocks [%d,%d)", arr.Len(), start, end)
	return nil
}

// CreateRandomTrees scatters nrand cells per local block at levels in
// [minLevel, maxLevel] and completes each tree with the coarsest cells
// covering the rest. The draw depends on seed and the block only.
func (f *Forest) CreateRandomTrees(nrand, minLevel, maxLevel int, seed int64) error {
	if err := f.requireConnectivity(); err != nil {
		return err
	}
	if nrand < 0 {
		return fmt.Errorf("negative random cell count %d", nrand)
	}
	start, end, err := f.localBlocks()
	if err != nil {
		return err
	}
	lo, hi := clampLevel(minLevel), clampLevel(maxLevel)
	if lo > hi {
		lo = hi
	}

	var items []Octant
	for b := start; b < end; b++ {
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(b)))
		seeds := make([]Octant, 0, nrand)
		for i := 0; i < nrand; i++ {
			level := lo + rng.Int32N(hi-lo+1)
			h := quadrant.Side(level)
			n := int32(1) << level
			seeds = append(seeds, Octant{
				Block: int32(b),
				X:     h * rng.Int32N(n),
				Y:     h * rng.Int32N(n),
				Z:     h * rng.Int32N(n),
				Level: level,
			})
		}
		arr := quadrant.NewArray(seeds)
		arr.Sort()
		arr.Unique()
		items = completeTree(Octant{Block: int32(b)}, arr.Items(), items)
	}
	f.setOctants(quadrant.NewArray(items))
	f.log.Debugf("created %d random cells on blocks [%d,%d)", len(items), start, end)
	return nil
}

// completeTree appends, in order, the leaves of the smallest complete tree
// below root in which every seed is a leaf or covered by finer leaves
func completeTree(root Octant, seeds []Octant, out []Octant) []Octant {
	split := false
	for _, s := range seeds {
		if s.Level > root.Level {
			split = true
			break
		}
	}
	if !split {
		return append(out, root)
	}
	for id := 0; id < 8; id++ {
		child := root.Child(id)
		var inside []Octant
		for _, s := range seeds {
			if child.Contains(s) {
				inside = append(inside, s)
			}
		}
		out = completeTree(child, inside, out)
	}
	return out
}

// Repartition evens out the cell counts, keeping the global order
func (f *Forest) Repartition() error {
	rank := f.comm.Rank()
	counts := comm.Allgather(f.comm, f.octants.Len())
	current, err := partitions.NewCountLayout(counts)
	if err != nil {
		return fmt.Errorf("current layout: %w", err)
	}
	target, err := partitions.NewBlockLayout(current.TotalElements, f.comm.Size())
	if err != nil {
		return fmt.Errorf("target layout: %w", err)
	}

	items := f.octants.Items()
	recv := make([]Octant, target.Partitions[rank].NumElements)
	reqs := make([]*comm.Request, 0, f.comm.Size())
	for _, t := range current.SendTransfers(target, rank) {
		chunk := items[t.SrcOffset : t.SrcOffset+t.Count]
		if t.Peer == rank {
			copy(recv[t.DstOffset:], chunk)
			continue
		}
		reqs = append(reqs, comm.Isend(f.comm, t.Peer, tagRepartition, chunk))
	}
	for _, t := range current.RecvTransfers(target, rank) {
		if t.Peer == rank {
			continue
		}
		buf := comm.Recv[Octant](f.comm, t.Peer, tagRepartition)
		if len(buf) != t.Count {
			err = fmt.Errorf("received %d cells from rank %d, expected %d", len(buf), t.Peer, t.Count)
			continue
		}
		copy(recv[t.DstOffset:], buf)
	}
	comm.Waitall(reqs)
	if err != nil {
		return err
	}

	f.setOctants(quadrant.NewArray(recv))
	stats := target.PartitionStatistics()
	f.log.WithFields(logrus.Fields{
		"min": stats.MinElements,
		"max": stats.MaxElements,
	}).Debugf("repartitioned %d cells", current.TotalElements)
	return nil
}
