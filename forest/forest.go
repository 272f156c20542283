package forest

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/config"
	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/topology"
)

type (
	Quadrant = quadrant.Quadrant
	Array    = quadrant.Array[quadrant.Quadrant]
)

// Message tags used by forest point-to-point traffic
const (
	tagExchange = iota + 1
	tagReply
	tagRepartition
)

// Forest is one rank's share of a distributed forest of quadtrees, one tree
// per block of the topology. The local cells form a contiguous run of the
// global cell order.
type Forest struct {
	comm *comm.Comm
	log  *logrus.Entry
	id   uuid.UUID
	opts config.ForestOptions

	topo *topology.Topology

	quadrants *Array
	owners    []Quadrant // First cell held by each rank

	adjacent *Array // Ghost layer from other ranks
	depEdges *Array // Tag holds the dependent edge index

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
		opts: config.Default().Forest,
		log: log.WithFields(logrus.Fields{
			"rank":   c.Rank(),
			"size":   c.Size(),
			"forest": id.String(),
		}),
	}
}

// SetTopology attaches the block topology and drops any cells
func (f *Forest) SetTopology(topo *topology.Topology) {
	f.topo = topo
	f.quadrants = nil
	f.owners = nil
	f.invalidate()
}

func (f *Forest) Topology() *topology.Topology { return f.topo }

func (f *Forest) Comm() *comm.Comm { return f.comm }

// Quadrants returns the local cells in order. The tag of each cell is its
// local index.
func (f *Forest) Quadrants() *Array { return f.quadrants }

// Owners returns the first cell of every rank
func (f *Forest) Owners() []Quadrant { return f.owners }

// Adjacent returns the ghost layer built by ComputeAdjacentQuadrants
func (f *Forest) Adjacent() *Array { return f.adjacent }

// DepEdges returns the dependent edges built by ComputeDepEdges
func (f *Forest) DepEdges() *Array { return f.depEdges }

func (f *Forest) numBlocks() int {
	if f.topo == nil {
		return 0
	}
	return f.topo.NumBlocks
}

func (f *Forest) requireTopology() error {
	if f.topo == nil {
		return fmt.Errorf("forest %s: topology not set", f.id)
	}
	return nil
}

// invalidate drops everything derived from the cells
func (f *Forest) invalidate() {
	f.adjacent = nil
	f.depEdges = nil
	f.nodes = nil
}

// setQuadrants installs a sorted, linear cell array, relabels the tags with
// the local index and gathers the new ownership partition
func (f *Forest) setQuadrants(arr *Array) {
	items := arr.Items()
	for i := range items {
		items[i].Tag = int32(i)
	}
	f.quadrants = arr
	f.invalidate()
	f.computeOwners()
}

type firstCell struct {
	Q     Quadrant
	Empty bool
}

// computeOwners gathers the first cell of every rank. Ranks without cells
// take the first cell of the next rank that has some, or a sentinel past
// the last block.
func (f *Forest) computeOwners() {
	var mine firstCell
	if f.quadrants.Len() > 0 {
		mine.Q = f.quadrants.At(0)
		mine.Q.Tag = 0
	} else {
		mine.Empty = true
	}
	all := comm.Allgather(f.comm, mine)

	owners := make([]Quadrant, len(all))
	next := Quadrant{Block: int32(f.numBlocks())}
	for r := len(all) - 1; r >= 0; r-- {
		if !all[r].Empty {
			next = all[r].Q
		}
		owners[r] = next
	}
	f.owners = owners
}

// OwnerOf returns the rank holding the cell that contains the anchor of q.
// The search ignores levels so any cell, leaf or not, can be located.
func (f *Forest) OwnerOf(q Quadrant) int {
	if len(f.owners) == 0 {
		return f.comm.Rank()
	}
	n := sort.Search(len(f.owners), func(i int) bool {
		return f.owners[i].CompareNode(q) > 0
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

// Duplicate returns a copy sharing the topology
func (f *Forest) Duplicate() *Forest {
	dup := New(f.comm, f.log.Logger)
	dup.topo = f.topo
	dup.opts = f.opts
	if f.quadrants != nil {
		dup.quadrants = f.quadrants.Duplicate()
	}
	dup.owners = append([]Quadrant(nil), f.owners...)
	return dup
}

// NumQuadrants returns the number of local cells
func (f *Forest) NumQuadrants() int { return f.quadrants.Len() }

// GlobalNumQuadrants returns the cell count over all ranks
func (f *Forest) GlobalNumQuadrants() int {
	return comm.AllreduceSum(f.comm, f.quadrants.Len())
}
