package comm

import (
	"fmt"

	"github.com/notargets/QuadForest/utils"
)

// Exchange sends items[i] to rank dest[i] under tag. The items received are
// returned in source rank order together with the plan, which routes
// replies back.
func Exchange[T any](c *Comm, items []T, dest []int, tag int) ([]T, *utils.ExchangePlan, error) {
	plan, err := utils.NewExchangePlan(c.Rank(), c.Size(), dest)
	if err != nil {
		return nil, nil, err
	}
	if err = plan.SetRecvCounts(Alltoall(c, plan.SendCounts)); err != nil {
		return nil, nil, err
	}

	reqs := make([]*Request, 0, c.Size())
	for dst := 0; dst < c.Size(); dst++ {
		if plan.SendCounts[dst] > 0 {
			reqs = append(reqs, Isend(c, dst, tag, utils.Pick(plan, items, dst)))
		}
	}
	recv := make([]T, plan.TotalRecv())
	for src := 0; src < c.Size(); src++ {
		if plan.RecvCounts[src] == 0 {
			continue
		}
		if err = utils.Place(plan, recv, Recv[T](c, src, tag), src); err != nil {
			break
		}
	}
	Waitall(reqs)
	if err != nil {
		return nil, nil, err
	}
	return recv, plan, nil
}

// Reply returns one value per received item along the reverse path of plan.
// The result is aligned with the items originally offered to Exchange.
func Reply[T any](c *Comm, plan *utils.ExchangePlan, values []T, tag int) ([]T, error) {
	if len(values) != plan.TotalRecv() {
		return nil, fmt.Errorf("reply has %d values for %d received items", len(values), plan.TotalRecv())
	}
	reqs := make([]*Request, 0, c.Size())
	for src := 0; src < c.Size(); src++ {
		lo, hi := plan.PlaceOffsets[src], plan.PlaceOffsets[src+1]
		if hi > lo {
			reqs = append(reqs, Isend(c, src, tag, values[lo:hi]))
		}
	}
	out := make([]T, plan.NumItems)
	var err error
	for dst := 0; dst < c.Size(); dst++ {
		idx := plan.GetPickIndices(dst)
		if len(idx) == 0 {
			continue
		}
		buf := Recv[T](c, dst, tag)
		if len(buf) != len(idx) {
			err = fmt.Errorf("rank %d answered %d of %d items", dst, len(buf), len(idx))
			continue
		}
		for k, i := range idx {
			out[i] = buf[k]
		}
	}
	Waitall(reqs)
	if err != nil {
		return nil, err
	}
	return out, nil
}
