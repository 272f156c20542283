package forest

import (
	"fmt"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/quadrant"
)

// dropCoveredByLower removes local cells that lie inside a strictly coarser
// cell held at the end of a lower rank
func (f *Forest) dropCoveredByLower(items []Quadrant) []Quadrant {
	var mine lastCell
	if len(items) > 0 {
		mine.Q = items[len(items)-1]
	} else {
		mine.Empty = true
	}
	all := comm.Allgather(f.comm, mine)
	out := items[:0]
	for _, q := range items {
		covered := false
		for r := 0; r < f.comm.Rank(); r++ {
			if !all[r].Empty && all[r].Q.Level < q.Level && all[r].Q.Contains(q) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, q)
		}
	}
	return out
}

// dropCoveringHigher removes local cells that strictly contain the first
// cell of a higher rank
func (f *Forest) dropCoveringHigher(items []Quadrant) []Quadrant {
	var mine firstCell
	if len(items) > 0 {
		mine.Q = items[0]
	} else {
		mine.Empty = true
	}
	all := comm.Allgather(f.comm, mine)
	out := items[:0]
	for _, q := range items {
		covering := false
		for r := f.comm.Rank() + 1; r < len(all); r++ {
			if !all[r].Empty && q.Level < all[r].Q.Level && q.Contains(all[r].Q) {
				covering = true
				break
			}
		}
		if !covering {
			out = append(out, q)
		}
	}
	return out
}

type lastCell = firstCell

// Refine changes the level of every local cell by delta[i], clamped to
// [minLevel, maxLevel]. A positive delta replaces the cell by all of its
// descendants at the new level; a negative delta replaces it by its
// ancestor, which absorbs every cell inside it. A nil delta refines every
// cell by one level.
func (f *Forest) Refine(delta []int, minLevel, maxLevel int) error {
	if err := f.requireTopology(); err != nil {
		return err
	}
	n := f.quadrants.Len()
	if delta != nil && len(delta) != n {
		return fmt.Errorf("refine: %d deltas for %d cells", len(delta), n)
	}
	lo, hi := clampLevel(minLevel), clampLevel(maxLevel)
	if lo > hi {
		lo = hi
	}

	rank := f.comm.Rank()
	var local, external []Quadrant
	for i, q := range f.quadrants.Items() {
		d := 1
		if delta != nil {
			d = delta[i]
		}
		q.Tag = 0
		switch {
		case d > 0:
			level := min(hi, q.Level+int32(d))
			if level < q.Level {
				level = q.Level
			}
			local = appendDescendants(local, q, level)
		case d < 0:
			level := max(lo, q.Level+int32(d))
			if level >= q.Level {
				local = append(local, q)
				continue
			}
			a := ancestor(q, level)
			if f.OwnerOf(a) == rank {
				local = append(local, a)
			} else {
				external = append(external, a)
			}
		default:
			local = append(local, q)
		}
	}

	recv, _, err := f.distributeQuadrants(external, false)
	if err != nil {
		return fmt.Errorf("refine: %w", err)
	}
	arr := quadrant.NewArray(append(local, recv.Items()...))
	arr.Sort()
	items := quadrant.LinearizeCoarse(arr.Items())
	items = f.dropCoveredByLower(items)

	f.setQuadrants(quadrant.NewArray(items))
	f.log.Debugf("refined %d cells into %d", n, len(items))
	return nil
}

// ancestor returns the cell at level that contains q
func ancestor(q Quadrant, level int32) Quadrant {
	h := quadrant.Side(level)
	q.X &^= h - 1
	q.Y &^= h - 1
	q.Level = level
	return q
}

// appendDescendants appends the cells at level that tile q, in order
func appendDescendants(out []Quadrant, q Quadrant, level int32) []Quadrant {
	if level == q.Level {
		return append(out, q)
	}
	for id := 0; id < 4; id++ {
		out = appendDescendants(out, q.Child(id), level)
	}
	return out
}

// Coarsen returns a new forest on the same topology in which every family
// whose first child is a leaf is replaced by its parent. Cells whose first
// sibling is refined further are kept, so the coarse cells tile the same
// blocks. The result is not necessarily balanced.
func (f *Forest) Coarsen() (*Forest, error) {
	if err := f.requireTopology(); err != nil {
		return nil, err
	}
	items := make([]Quadrant, 0, f.quadrants.Len())
	for _, q := range f.quadrants.Items() {
		q.Tag = 0
		if q.Level > 0 && q.ChildID() == 0 {
			items = append(items, q.Parent())
		} else {
			items = append(items, q)
		}
	}
	arr := quadrant.NewArray(items)
	arr.Sort()
	arr.Unique()
	items = quadrant.LinearizeCoarse(arr.Items())

	coarse := New(f.comm, f.log.Logger)
	coarse.topo = f.topo
	coarse.opts = f.opts
	coarse.setQuadrants(quadrant.NewArray(coarse.dropCoveredByLower(items)))
	return coarse, nil
}
