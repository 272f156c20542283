package forest

import (
	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/config"
	"github.com/notargets/QuadForest/topology"
	"github.com/notargets/QuadForest/utils"
)

// Run validates opts and starts opts.Forest.Ranks ranks. Each rank gets a
// forest on topo that logs at opts.Log.Level and carries opts.Forest for
// Mesh and CreateSeededRandomTrees.
func Run(opts config.Options, topo *topology.Topology, fn func(f *Forest) error) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	log := utils.NewLogger(opts.Log.Level)
	return comm.Run(opts.Forest.Ranks, func(c *comm.Comm) error {
		f := New(c, log)
		f.opts = opts.Forest
		f.SetTopology(topo)
		return fn(f)
	})
}

// Options returns the forest options, the defaults unless the forest was
// started by Run
func (f *Forest) Options() config.ForestOptions { return f.opts }

// CreateSeededRandomTrees is CreateRandomTrees with the configured seed
func (f *Forest) CreateSeededRandomTrees(nrand, minLevel, maxLevel int) error {
	return f.CreateRandomTrees(nrand, minLevel, maxLevel, f.opts.RandomSeed)
}

// Mesh balances the forest, corners included when the options ask for it,
// and creates the nodes of the configured order and knot placement
func (f *Forest) Mesh() error {
	knots, err := f.opts.Knots()
	if err != nil {
		return err
	}
	if err = f.Balance(f.opts.BalanceCorner); err != nil {
		return err
	}
	return f.CreateNodes(f.opts.MeshOrder, knots)
}
