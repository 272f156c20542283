package partitions

import (
	"fmt"
	"math"
	"sort"
)

// Partition is the contiguous range of globally ordered items (blocks or
// cells) held by one rank
type Partition struct {
	// Rank holding the range
	ID int

	Start       int // Global index of the first item
	NumElements int // Number of items, may be zero
}

// End is one past the last global index of the partition
func (p Partition) End() int { return p.Start + p.NumElements }

// PartitionLayout is a decomposition of a globally ordered sequence into
// one contiguous range per rank, in rank order
type PartitionLayout struct {
	Partitions []Partition

	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all items across partitions
	NumPartitions int
}

// Transfer is a run of items moving between two ranks during a change of
// layout. Offsets are local to the sending and receiving rank.
type Transfer struct {
	Peer      int
	SrcOffset int // First item in the sender's current range
	DstOffset int // Position in the receiver's new range
	Count     int
}

// GetPartition returns the rank holding global item k, or -1
func (pl *PartitionLayout) GetPartition(k int) int {
	if k < 0 || k >= pl.TotalElements {
		return -1
	}
	// First partition whose end is past k; empty partitions are skipped
	return sort.Search(pl.NumPartitions, func(i int) bool {
		return pl.Partitions[i].End() > k
	})
}

// ValidateLayout checks that the partitions tile [0, TotalElements) in rank
// order
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions stored for NumPartitions=%d",
			len(pl.Partitions), pl.NumPartitions)
	}
	next, actualMax := 0, 0
	for i, p := range pl.Partitions {
		if p.ID != i {
			return fmt.Errorf("partition %d has ID %d", i, p.ID)
		}
		if p.NumElements < 0 {
			return fmt.Errorf("partition %d: negative size %d", i, p.NumElements)
		}
		if p.Start != next {
			return fmt.Errorf("partition %d starts at %d, expected %d", i, p.Start, next)
		}
		next = p.End()
		actualMax = max(actualMax, p.NumElements)
	}
	if next != pl.TotalElements {
		return fmt.Errorf("partitions cover %d items, TotalElements=%d", next, pl.TotalElements)
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d", actualMax, pl.KpartMax)
	}
	return nil
}

// SendTransfers lists the runs that rank must send to move from pl to
// target, one per destination with a non-empty overlap, self included
func (pl *PartitionLayout) SendTransfers(target *PartitionLayout, rank int) []Transfer {
	src := pl.Partitions[rank]
	var out []Transfer
	for _, dst := range target.Partitions {
		lo, hi := max(src.Start, dst.Start), min(src.End(), dst.End())
		if lo < hi {
			out = append(out, Transfer{
				Peer:      dst.ID,
				SrcOffset: lo - src.Start,
				DstOffset: lo - dst.Start,
				Count:     hi - lo,
			})
		}
	}
	return out
}

// RecvTransfers lists the runs that rank receives when moving from pl to
// target, in source rank order
func (pl *PartitionLayout) RecvTransfers(target *PartitionLayout, rank int) []Transfer {
	dst := target.Partitions[rank]
	var out []Transfer
	for _, src := range pl.Partitions {
		lo, hi := max(src.Start, dst.Start), min(src.End(), dst.End())
		if lo < hi {
			out = append(out, Transfer{
				Peer:      src.ID,
				SrcOffset: lo - src.Start,
				DstOffset: lo - dst.Start,
				Count:     hi - lo,
			})
		}
	}
	return out
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   math.MaxInt32,
		AvgElements:   float64(pl.TotalElements) / float64(pl.NumPartitions),
	}
	for _, p := range pl.Partitions {
		stats.MinElements = min(stats.MinElements, p.NumElements)
		stats.MaxElements = max(stats.MaxElements, p.NumElements)
	}
	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}
	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}
