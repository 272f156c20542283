package octforest

import (
	"fmt"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/quadrant"
)

// dropCoveredByLower removes local cells inside a strictly coarser cell
// held at the end of a lower rank
func (f *Forest) dropCoveredByLower(items []Octant) []Octant {
	var mine firstCell
	if len(items) > 0 {
		mine.O = items[len(items)-1]
	} else {
		mine.Empty = true
	}
	all := comm.Allgather(f.comm, mine)
	out := items[:0]
	for _, o := range items {
		covered := false
		for r := 0; r < f.comm.Rank(); r++ {
			if !all[r].Empty && all[r].O.Level < o.Level && all[r].O.Contains(o) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, o)
		}
	}
	return out
}

// dropCoveringHigher removes local cells strictly containing the first cell
// of a higher rank
func (f *Forest) dropCoveringHigher(items []Octant) []Octant {
	var mine firstCell
	if len(items) > 0 {
		mine.O = items[0]
	} else {
		mine.Empty = true
	}
	all := comm.Allgather(f.comm, mine)
	out := items[:0]
	for _, o := range items {
		covering := false
		for r := f.comm.Rank() + 1; r < len(all); r++ {
			if !all[r].Empty && o.Level < all[r].O.Level && o.Contains(all[r].O) {
				covering = true
				break
			}
		}
		if !covering {
			out = append(out, o)
		}
	}
	return out
}

// Refine changes the level of every local cell by delta[i], clamped to
// [minLevel, maxLevel]. Refined cells are replaced by all their descendants
// at the new level, coarsened ones by the ancestor that absorbs every cell
// inside it. A nil delta refines everything by one level.
func (f *Forest) Refine(delta []int, minLevel, maxLevel int) error {
	if err := f.requireConnectivity(); err != nil {
		return err
	}
	n := f.octants.Len()
	if delta != nil && len(delta) != n {
		return fmt.Errorf("refine: %d deltas for %d cells", len(delta), n)
	}
	lo, hi := clampLevel(minLevel), clampLevel(maxLevel)
	if lo > hi {
		lo = hi
	}

	rank := f.comm.Rank()
	var local, external []Octant
	for i, o := range f.octants.Items() {
		d := 1
		if delta != nil {
			d = delta[i]
		}
		o.Tag = 0
		switch {
		case d > 0:
			level := max(o.Level, min(hi, o.Level+int32(d)))
			local = appendDescendants(local, o, level)
		case d < 0:
			level := max(lo, o.Level+int32(d))
			if level >= o.Level {
				local = append(local, o)
				continue
			}
			a := ancestor(o, level)
			if f.OwnerOf(a) == rank {
				local = append(local, a)
			} else {
				external = append(external, a)
			}
		default:
			local = append(local, o)
		}
	}

	recv, _, err := f.distributeOctants(external, false)
	if err != nil {
		return fmt.Errorf("refine: %w", err)
	}
	arr := quadrant.NewArray(append(local, recv.Items()...))
	arr.Sort()
	items := quadrant.LinearizeCoarse(arr.Items())
	items = f.dropCoveredByLower(items)

	f.setOctants(quadrant.NewArray(items))
	f.log.Debugf("refined %d cells into %d", n, len(items))
	return nil
}

func ancestor(o Octant, level int32) Octant {
	h := quadrant.Side(level)
	o.X &^= h - 1
	o.Y &^= h - 1
	o.Z &^= h - 1
	o.Level = level
	return o
}

func appendDescendants(out []Octant, o Octant, level int32) []Octant {
	if level == o.Level {
		return append(out, o)
	}
	for id := 0; id < 8; id++ {
		out = appendDescendants(out, o.Child(id), level)
	}
	return out
}

// Coarsen returns a forest on the same connectivity in which every family
// whose first child is a leaf is replaced by its parent
func (f *Forest) Coarsen() (*Forest, error) {
	if err := f.requireConnectivity(); err != nil {
		return nil, err
	}
	items := make([]Octant, 0, f.octants.Len())
	for _, o := range f.octants.Items() {
		o.Tag = 0
		if o.Level > 0 && o.ChildID() == 0 {
			items = append(items, o.Parent())
		} else {
			items = append(items, o)
		}
	}
	arr := quadrant.NewArray(items)
	arr.Sort()
	arr.Unique()
	items = quadrant.LinearizeCoarse(arr.Items())

	coarse := New(f.comm, f.log.Logger)
	coarse.conn = f.conn
	coarse.setOctants(quadrant.NewArray(coarse.dropCoveredByLower(items)))
	return coarse, nil
}
