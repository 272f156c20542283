package utils

import (
	"fmt"
)

// ExchangePlan holds the pick and place indices for one rank's side of an
// all-to-all exchange of items
type ExchangePlan struct {
	NumRanks int
	Rank     int
	NumItems int // Local items offered for sending

	// Dest[i] is the rank item i goes to
	Dest []int

	// Pick indices per destination, in local item order
	PickIndices [][]int // [targetRank] -> local item indices

	// Counts and offsets of the receive buffer, filled by SetRecvCounts
	SendCounts   []int
	RecvCounts   []int
	PlaceOffsets []int // [sourceRank] -> start in the receive buffer, length NumRanks+1
}

// NewExchangePlan builds the pick indices for sending each local item to
// dest[i]
func NewExchangePlan(rank, numRanks int, dest []int) (*ExchangePlan, error) {
	if numRanks <= 0 || rank < 0 || rank >= numRanks {
		return nil, fmt.Errorf("invalid dimensions: rank=%d, numRanks=%d", rank, numRanks)
	}
	ep := &ExchangePlan{
		NumRanks:    numRanks,
		Rank:        rank,
		NumItems:    len(dest),
		Dest:        dest,
		PickIndices: make([][]int, numRanks),
		SendCounts:  make([]int, numRanks),
	}
	for i, d := range dest {
		if d < 0 || d >= numRanks {
			return nil, fmt.Errorf("item %d: destination %d out of range [0,%d)", i, d, numRanks)
		}
		ep.PickIndices[d] = append(ep.PickIndices[d], i)
		ep.SendCounts[d]++
	}
	return ep, nil
}

// SetRecvCounts records how many items each source will send to this rank
// and lays the receive buffer out in source order
func (ep *ExchangePlan) SetRecvCounts(counts []int) error {
	if len(counts) != ep.NumRanks {
		return fmt.Errorf("recv counts length %d does not match NumRanks=%d", len(counts), ep.NumRanks)
	}
	ep.RecvCounts = counts
	ep.PlaceOffsets = make([]int, ep.NumRanks+1)
	for src, n := range counts {
		if n < 0 {
			return fmt.Errorf("negative recv count %d from rank %d", n, src)
		}
		ep.PlaceOffsets[src+1] = ep.PlaceOffsets[src] + n
	}
	return nil
}

// GetPickIndices returns the local items sent to target
func (ep *ExchangePlan) GetPickIndices(target int) []int {
	if target < 0 || target >= ep.NumRanks {
		return nil
	}
	return ep.PickIndices[target]
}

// TotalRecv is the size of the receive buffer
func (ep *ExchangePlan) TotalRecv() int {
	if ep.PlaceOffsets == nil {
		return 0
	}
	return ep.PlaceOffsets[ep.NumRanks]
}

// Pick gathers the items bound for target
func Pick[T any](ep *ExchangePlan, items []T, target int) []T {
	idx := ep.GetPickIndices(target)
	out := make([]T, len(idx))
	for k, i := range idx {
		out[k] = items[i]
	}
	return out
}

// Place copies the items received from source into their slot of buf
func Place[T any](ep *ExchangePlan, buf, recv []T, source int) error {
	start, end := ep.PlaceOffsets[source], ep.PlaceOffsets[source+1]
	if len(recv) != end-start {
		return fmt.Errorf("rank %d: received %d items from %d, expected %d",
			ep.Rank, len(recv), source, end-start)
	}
	copy(buf[start:end], recv)
	return nil
}

// Verify checks index validity and conservation properties
func (ep *ExchangePlan) Verify() error {
	// Local validity: every pick index is in range and items go out once
	seen := make([]bool, ep.NumItems)
	totalPicks := 0
	for q := 0; q < ep.NumRanks; q++ {
		if len(ep.PickIndices[q]) != ep.SendCounts[q] {
			return fmt.Errorf("length mismatch: pick[%d]=%d, send count %d",
				q, len(ep.PickIndices[q]), ep.SendCounts[q])
		}
		for _, idx := range ep.PickIndices[q] {
			if idx < 0 || idx >= ep.NumItems {
				return fmt.Errorf("invalid pick index %d for rank %d (max %d)", idx, q, ep.NumItems-1)
			}
			if seen[idx] {
				return fmt.Errorf("item %d picked twice", idx)
			}
			seen[idx] = true
			totalPicks++
		}
	}

	// Conservation: every item is sent somewhere
	if totalPicks != ep.NumItems {
		return fmt.Errorf("conservation error: total picks %d != items %d", totalPicks, ep.NumItems)
	}

	if ep.PlaceOffsets != nil {
		for src := 0; src < ep.NumRanks; src++ {
			if ep.PlaceOffsets[src+1]-ep.PlaceOffsets[src] != ep.RecvCounts[src] {
				return fmt.Errorf("place range for rank %d does not match count %d", src, ep.RecvCounts[src])
			}
		}
	}
	return nil
}
