// Package octforest is the three dimensional forest: one octree per
// hexahedral block, distributed over the ranks of a comm.Comm in Morton
// order.
package octforest

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/topology"
)

type (
	Octant = quadrant.Octant
	Array  = quadrant.Array[quadrant.Octant]
)

// Message tags used by forest point-to-point traffic
const (
	tagExchange = iota + 1
	tagReply
	tagRepartition
)

// Forest is one rank's share of a distributed forest of octrees. The local
// cells form a contiguous run of the global cell order.
type Forest struct {
	comm *comm.Comm
	log  *logrus.Entry
	id   uuid.UUID

	conn *topology.HexConnectivity

	octants *Array
	owners  []Octant // First cell held by each rank

	adjacent *Array // Ghost layer from other ranks

	nodes *nodeData
}

// New returns an empty forest on the calling rank. log may be nil.
func New(c *comm.Comm, log *logrus.Logger) *Forest {
	if log == nil {
		log = logrus.StandardLogger()
	}
	id := uuid.New()
	return &Forest{
		comm: c,
		id:   id,
		log: log.WithFields(logrus.Fields{
			"rank":   c.Rank(),
			"size":   c.Size(),
			"forest": id.String(),
			"dim":    3,
		}),
	}
}

// SetConnectivity attaches the block adjacency and drops any cells
func (f *Forest) SetConnectivity(conn *topology.HexConnectivity) {
	f.conn = conn
	f.octants = nil
	f.owners = nil
	f.invalidate()
}

func (f *Forest) Connectivity() *topology.HexConnectivity { return f.conn }

func (f *Forest) Comm() *comm.Comm { return f.comm }

func (f *Forest) ID() uuid.UUID { return f.id }

// Octants returns the local cells in order, the tag of each being its local
// index
func (f *Forest) Octants() *Array { return f.octants }

// Owners returns the first cell of every rank
func (f *Forest) Owners() []Octant { return f.owners }

// Adjacent returns the ghost layer built by ComputeAdjacentOctants
func (f *Forest) Adjacent() *Array { return f.adjacent }

func (f *Forest) numBlocks() int {
	if f.conn == nil {
		return 0
	}
	return f.conn.NumBlocks
}

func (f *Forest) requireConnectivity() error {
	if f.conn == nil {
		return fmt.Errorf("forest %s: connectivity not set", f.id)
	}
	return nil
}

func (f *Forest) invalidate() {
	f.adjacent = nil
	f.nodes = nil
}

// setOctants installs a sorted, linear cell array, relabels the tags with
// the local index and gathers the new ownership partition
func (f *Forest) setOctants(arr *Array) {
	items := arr.Items()
	for i := range items {
		items[i].Tag = int32(i)
	}
	f.octants = arr
	f.invalidate()
	f.computeOwners()
}

type firstCell struct {
	O     Octant
	Empty bool
}

// computeOwners gathers the first cell of every rank. Empty ranks take the
// first cell of the next rank holding any, or a sentinel past the last
// block.
func (f *Forest) computeOwners() {
	var mine firstCell
	if f.octants.Len() > 0 {
		mine.O = f.octants.At(0)
		mine.O.Tag = 0
	} else {
		mine.Empty = true
	}
	all := comm.Allgather(f.comm, mine)

	owners := make([]Octant, len(all))
	next := Octant{Block: int32(f.numBlocks())}
	for r := len(all) - 1; r >= 0; r-- {
		if !all[r].Empty {
			next = all[r].O
		}
		owners[r] = next
	}
	f.owners = owners
}

// OwnerOf returns the rank holding the cell that contains the anchor of o,
// whatever o's level
func (f *Forest) OwnerOf(o Octant) int {
	if len(f.owners) == 0 {
		return f.comm.Rank()
	}
	n := sort.Search(len(f.owners), func(i int) bool {
		return f.owners[i].CompareNode(o) > 0
	})
	idx := n - 1
	if idx < 0 {
		idx = 0
		for idx+1 < len(f.owners) && f.owners[idx+1].CompareNode(f.owners[0]) == 0 {
			idx++
		}
	}
	return idx
}

// Duplicate returns a copy sharing the connectivity
func (f *Forest) Duplicate() *Forest {
	dup := New(f.comm, f.log.Logger)
	dup.conn = f.conn
	if f.octants != nil {
		dup.octants = f.octants.Duplicate()
	}
	dup.owners = append([]Octant(nil), f.owners...)
	return dup
}

func (f *Forest) NumOctants() int { return f.octants.Len() }

// GlobalNumOctants returns the cell count over all ranks
func (f *Forest) GlobalNumOctants() int {
	return comm.AllreduceSum(f.comm, f.octants.Len())
}
