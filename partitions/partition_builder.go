package partitions

import (
	"fmt"
)

// PartitionStrategy defines how items are grouped
type PartitionStrategy int

const (
	// Consecutive runs of total/P, the first total%P ranks taking one extra
	BlockPartition PartitionStrategy = iota
	// Layout given by the current per-rank counts
	CountPartition
)

// PartitionBuilder constructs a layout of a globally ordered sequence
type PartitionBuilder struct {
	NumPartitions int
	Strategy      PartitionStrategy

	TotalElements int   // Used by BlockPartition
	Counts        []int // Used by CountPartition, one per rank
}

// NewBlockLayout splits total items over numPartitions ranks
func NewBlockLayout(total, numPartitions int) (*PartitionLayout, error) {
	pb := &PartitionBuilder{
		NumPartitions: numPartitions,
		Strategy:      BlockPartition,
		TotalElements: total,
	}
	return pb.BuildPartitions()
}

// NewCountLayout describes the ranges implied by per-rank item counts
func NewCountLayout(counts []int) (*PartitionLayout, error) {
	pb := &PartitionBuilder{
		NumPartitions: len(counts),
		Strategy:      CountPartition,
		Counts:        counts,
	}
	return pb.BuildPartitions()
}

// BuildPartitions creates and validates the layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumPartitions <= 0 {
		return nil, fmt.Errorf("invalid partition count %d", pb.NumPartitions)
	}

	var counts []int
	switch pb.Strategy {
	case BlockPartition:
		if pb.TotalElements < 0 {
			return nil, fmt.Errorf("invalid item count %d", pb.TotalElements)
		}
		counts = blockCounts(pb.TotalElements, pb.NumPartitions)
	case CountPartition:
		if len(pb.Counts) != pb.NumPartitions {
			return nil, fmt.Errorf("counts length %d does not match NumPartitions=%d",
				len(pb.Counts), pb.NumPartitions)
		}
		counts = pb.Counts
	default:
		return nil, fmt.Errorf("unknown partition strategy %d", pb.Strategy)
	}

	layout := &PartitionLayout{
		Partitions:    pb.createPartitions(counts),
		NumPartitions: pb.NumPartitions,
	}
	for _, p := range layout.Partitions {
		layout.TotalElements += p.NumElements
		layout.KpartMax = max(layout.KpartMax, p.NumElements)
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

func blockCounts(total, numPartitions int) []int {
	counts := make([]int, numPartitions)
	base, extra := total/numPartitions, total%numPartitions
	for p := range counts {
		counts[p] = base
		if p < extra {
			counts[p]++
		}
	}
	return counts
}

// createPartitions lays the counts end to end in rank order
func (pb *PartitionBuilder) createPartitions(counts []int) []Partition {
	partitions := make([]Partition, len(counts))
	start := 0
	for p, n := range counts {
		partitions[p] = Partition{ID: p, Start: start, NumElements: n}
		start += n
	}
	return partitions
}
