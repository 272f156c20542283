package octforest

import (
	"fmt"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/utils"
)

// distributeOctants sends every cell to its owner, or to the rank in its
// tag when useTags is set
func (f *Forest) distributeOctants(list []Octant, useTags bool) (*Array, *utils.ExchangePlan, error) {
	dest := make([]int, len(list))
	for i, o := range list {
		if useTags {
			dest[i] = int(o.Tag)
		} else {
			dest[i] = f.OwnerOf(o)
		}
	}
	recv, plan, err := comm.Exchange(f.comm, list, dest, tagExchange)
	if err != nil {
		return nil, nil, fmt.Errorf("distributing %d octants: %w", len(list), err)
	}
	return quadrant.NewArray(recv), plan, nil
}

func (f *Forest) sendOctants(plan *utils.ExchangePlan, list []Octant) ([]Octant, error) {
	out, err := comm.Reply(f.comm, plan, list, tagReply)
	if err != nil {
		return nil, fmt.Errorf("returning %d octants: %w", len(list), err)
	}
	return out, nil
}
