package forest

import (
	"fmt"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/utils"
)

// exchange routes forest traffic through comm.Exchange
func exchange[T any](c *comm.Comm, items []T, dest []int) ([]T, *utils.ExchangePlan, error) {
	return comm.Exchange(c, items, dest, tagExchange)
}

func reply[T any](c *comm.Comm, plan *utils.ExchangePlan, values []T) ([]T, error) {
	return comm.Reply(c, plan, values, tagReply)
}

// distributeQuadrants sends every cell to its owner, or to the rank in its
// tag when useTags is set, and returns the cells received here
func (f *Forest) distributeQuadrants(list []Quadrant, useTags bool) (*Array, *utils.ExchangePlan, error) {
	dest := make([]int, len(list))
	for i, q := range list {
		if useTags {
			dest[i] = int(q.Tag)
		} else {
			dest[i] = f.OwnerOf(q)
		}
	}
	recv, plan, err := exchange(f.comm, list, dest)
	if err != nil {
		return nil, nil, fmt.Errorf("distributing %d quadrants: %w", len(list), err)
	}
	return quadrant.NewArray(recv), plan, nil
}

// sendQuadrants returns cells to the ranks that sent the items behind plan
func (f *Forest) sendQuadrants(plan *utils.ExchangePlan, list []Quadrant) ([]Quadrant, error) {
	out, err := reply(f.comm, plan, list)
	if err != nil {
		return nil, fmt.Errorf("returning %d quadrants: %w", len(list), err)
	}
	return out, nil
}
