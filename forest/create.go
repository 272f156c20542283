package forest

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

// localBlocks is the contiguous range of blocks this rank starts with
func (f *Forest) localBlocks() (start, end int, err error) {
	layout, err := partitions.NewBlockLayout(f.numBlocks(), f.comm.Size())
	if err != nil {
		return 0, 0, fmt.Errorf("splitting %d blocks: %w", f.numBlocks(), err)
	}
	p := layout.Partitions[f.comm.Rank()]
	return p.Start, p.End(), nil
}

// CreateTrees fills every local block with a uniform grid of cells at level
func (f *Forest) CreateTrees(level int) error {
	if err := f.requireTopology(); err != nil {
		return err
	}
	start, end, err := f.localBlocks()
	if err != nil {
		return err
	}
	lvl := clampLevel(level)
	h := quadrant.Side(lvl)
	n := int32(1) << lvl

	items := make([]Quadrant, 0, (end-start)*int(n*n))
	for b := start; b < end; b++ {
		for y := int32(0); y < n; y++ {
			for x := int32(0); x < n; x++ {
				items = append(items, Quadrant{Block: int32(b), X: x * h, Y: y * h, Level: lvl})
			}
		}
	}
	arr := quadrant.NewArray(items)
	arr.Sort()
	f.setQuadrants(arr)
	f.log.WithField("level", lvl).Debugf("created %d cells on blocks [%d,%d)", arr.Len(), start, end)
	return nil
}

// CreateRandomTrees scatters nrand cells per local block at levels drawn from
// [minLevel, maxLevel], then completes each tree with the coarsest cells that
// cover the rest of the block. Where scattered cells overlap the finer one
// is kept. The draw depends on seed and the block only.
func (f *Forest) CreateRandomTrees(nrand, minLevel, maxLevel int, seed int64) error {
	if err := f.requireTopology(); err != nil {
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

	var items []Quadrant
	for b := start; b < end; b++ {
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(b)))
		seeds := make([]Quadrant, 0, nrand)
		for i := 0; i < nrand; i++ {
			level := lo + rng.Int32N(hi-lo+1)
			h := quadrant.Side(level)
			seeds = append(seeds, Quadrant{
				Block: int32(b),
				X:     h * rng.Int32N(int32(1)<<level),
				Y:     h * rng.Int32N(int32(1)<<level),
				Level: level,
			})
		}
		arr := quadrant.NewArray(seeds)
		arr.Sort()
		arr.Unique()
		items = completeTree(Quadrant{Block: int32(b)}, arr.Items(), items)
	}
	f.setQuadrants(quadrant.NewArray(items))
	f.log.Debugf("created %d random cells on blocks [%d,%d)", len(items), start, end)
	return nil
}

// completeTree appends the leaves of the smallest complete tree below root
// in which every seed is a leaf or is covered by finer leaves. seeds must be
// sorted and lie inside root. Leaves are appended in order.
func completeTree(root Quadrant, seeds []Quadrant, out []Quadrant) []Quadrant {
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
	for id := 0; id < 4; id++ {
		child := root.Child(id)
		var inside []Quadrant
		for _, s := range seeds {
			if child.Contains(s) {
				inside = append(inside, s)
			}
		}
		out = completeTree(child, inside, out)
	}
	return out
}

// Repartition moves cells so every rank holds total/size of them, the first
// total%size ranks one more, keeping the global order
func (f *Forest) Repartition() error {
	rank := f.comm.Rank()
	counts := comm.Allgather(f.comm, f.quadrants.Len())
	current, err := partitions.NewCountLayout(counts)
	if err != nil {
		return fmt.Errorf("current layout: %w", err)
	}
	target, err := partitions.NewBlockLayout(current.TotalElements, f.comm.Size())
	if err != nil {
		return fmt.Errorf("target layout: %w", err)
	}

	items := f.quadrants.Items()
	recv := make([]Quadrant, target.Partitions[rank].NumElements)
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
		buf := comm.Recv[Quadrant](f.comm, t.Peer, tagRepartition)
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

	f.setQuadrants(quadrant.NewArray(recv))
	stats := target.PartitionStatistics()
	f.log.WithFields(logrus.Fields{
		"min": stats.MinElements,
		"max": stats.MaxElements,
	}).Debugf("repartitioned %d cells", current.TotalElements)
	return nil
}
