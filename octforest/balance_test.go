package octforest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/QuadForest/quadrant"
)

func TestBalanceRefinedCorner(t *testing.T) {
	// Four blocks around a vertical block edge; the cells next to its
	// middle are refined deep inside block 0
	mesh := brickMesh(t, 2, 2, 1)
	h := quadrant.HMax
	var counts []int
	for size := 1; size <= 3; size++ {
		t.Run(fmt.Sprintf("ranks=%d", size), func(t *testing.T) {
			runForests(t, size, mesh, func(f *Forest) error {
				if err := f.CreateTrees(0); err != nil {
					return err
				}
				if err := refineAround(f, 0, [3]int32{h - 1, h - 1, h / 2}, 4); err != nil {
					return err
				}
				if err := f.Balance(false); err != nil {
					return err
				}
				all := gatherCells(f)
				if f.Comm().Rank() == 0 {
					checkTiling(t, mesh, all, true, false)
					counts = append(counts, len(all))
				}
				// Balancing again changes nothing
				if err := f.Balance(false); err != nil {
					return err
				}
				assert.Equal(t, len(all), f.GlobalNumOctants())
				return nil
			})
		})
	}
	for _, n := range counts {
		assert.Equal(t, counts[0], n, "same forest on any number of ranks")
	}
}

func TestBalanceReachesAcrossEdges(t *testing.T) {
	runForests(t, 1, brickMesh(t, 2, 2, 1), func(f *Forest) error {
		h := quadrant.HMax
		if err := f.CreateTrees(0); err != nil {
			return err
		}
		if err := refineAround(f, 0, [3]int32{h - 1, h - 1, 0}, 3); err != nil {
			return err
		}
		if err := f.Balance(false); err != nil {
			return err
		}
		// Block 3 only touches block 0 along the block edge, yet it must be
		// refined to within one level of the cells there
		var finest int32
		for _, o := range f.Octants().Items() {
			if o.Block == 3 {
				finest = max(finest, o.Level)
			}
		}
		assert.Equal(t, int32(2), finest)
		checkTiling(t, brickMesh(t, 2, 2, 1), gatherCells(f), true, false)
		return nil
	})
}

func TestBalanceRandom(t *testing.T) {
	for name, mesh := range testMeshes(t) {
		for _, corner := range []bool{false, true} {
			for size := 1; size <= 3; size++ {
				t.Run(fmt.Sprintf("%s/corner=%v/ranks=%d", name, corner, size), func(t *testing.T) {
					runForests(t, size, mesh, func(f *Forest) error {
						if err := f.CreateRandomTrees(3, 0, 4, 11); err != nil {
							return err
						}
						if err := f.Balance(corner); err != nil {
							return err
						}
						all := gatherCells(f)
						if f.Comm().Rank() == 0 {
							checkTiling(t, mesh, all, true, corner)
						}
						return nil
					})
				})
			}
		}
	}
}
