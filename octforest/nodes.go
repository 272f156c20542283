package octforest

import (
	"fmt"
	"math"
	"slices"

	"github.com/golang/geo/r3"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/element"
	"github.com/notargets/QuadForest/quadrant"
	"github.com/notargets/QuadForest/topology"
)

const unlabeled = math.MinInt

// nodeData is the node numbering of one forest. Node keys are degenerate
// octants on the lattice of span (order-1)*HMax in the frame of the block
// owning the face, edge or corner they lie on.
type nodeData struct {
	order int
	elem  element.Element
	knots []float64
	uni   bool

	conn      []int // [cell*Np+slot] global number, or -(dep+1)
	nodeRange []int
	keys      []Octant
	numbers   map[Octant]int
	deps      []depNode

	depPtr     []int
	depConn    []int
	depWeights []float64
}

// depNode is a hanging node on a face or an edge of a coarse cell, with
// the coarse nodes it interpolates and their weights
type depNode struct {
	key     Octant
	coarse  []Octant
	weights []float64
}

func (nd *nodeData) lattice() int32 { return int32(nd.order-1) * quadrant.HMax }

func (nd *nodeData) generic(i int) bool {
	return nd.uni || i == 0 || i == nd.order-1 || 2*i == nd.order-1
}

func normalize(k Octant) Octant {
	k.Tag = 0
	return k
}

// nodeKey returns the canonical key of knot ijk of cell o
func (f *Forest) nodeKey(nd *nodeData, o Octant, ijk [3]int) Octant {
	n := int32(nd.order - 1)
	h := o.Side()
	key := Octant{
		Block: o.Block,
		X:     n*o.X + int32(ijk[0])*h,
		Y:     n*o.Y + int32(ijk[1])*h,
		Z:     n*o.Z + int32(ijk[2])*h,
		Level: quadrant.MaxLevel,
	}
	if !nd.generic(ijk[0]) || !nd.generic(ijk[1]) || !nd.generic(ijk[2]) {
		key.Level = o.Level
	}
	return f.conn.TransformNode(key, nd.lattice())
}

// coord converts one lattice coordinate of a key to block units
func (nd *nodeData) coord(x, level int32) float64 {
	n := int32(nd.order - 1)
	if x == nd.lattice()-1 {
		x = nd.lattice()
	}
	if level == quadrant.MaxLevel || nd.uni {
		return float64(x) / float64(n)
	}
	h := quadrant.Side(level)
	steps := x / h
	i := int(steps % n)
	if nd.generic(i) {
		return float64(x) / float64(n)
	}
	return float64((steps/n)*h) + nd.knots[i]*float64(h)
}

func (f *Forest) homeOf(nd *nodeData, key Octant) int {
	n := int32(nd.order - 1)
	return f.OwnerOf(Octant{Block: key.Block, X: key.X / n, Y: key.Y / n, Z: key.Z / n, Level: quadrant.MaxLevel})
}

// CreateNodes numbers the nodes of a balanced forest with order knots per
// direction. Shared nodes get one global number; nodes hanging on a face or
// an edge of a coarser cell appear as -(dep+1) in the connectivity.
func (f *Forest) CreateNodes(order int, knotType element.KnotType) error {
	if err := f.requireConnectivity(); err != nil {
		return err
	}
	elem, err := element.NewElement(element.Hexahedron, order, knotType)
	if err != nil {
		return err
	}
	if err = f.ComputeAdjacentOctants(); err != nil {
		return err
	}
	nd := &nodeData{
		order: order,
		elem:  elem,
		knots: elem.Knots(),
		uni:   knotType == element.Uniform,
	}

	np := elem.Np()
	nd.conn = make([]int, f.octants.Len()*np)
	for i := range nd.conn {
		nd.conn[i] = unlabeled
	}
	f.labelDependentNodes(nd)

	local := make(map[Octant]int)
	var keys []Octant
	for c, o := range f.octants.Items() {
		for k := 0; k < order; k++ {
			for j := 0; j < order; j++ {
				for i := 0; i < order; i++ {
					slot := elem.Node(i, j, k)
					if nd.conn[c*np+slot] != unlabeled {
						continue
					}
					key := f.nodeKey(nd, o, [3]int{i, j, k})
					idx, ok := local[key]
					if !ok {
						idx = len(keys)
						local[key] = idx
						keys = append(keys, key)
					}
					nd.conn[c*np+slot] = idx
				}
			}
		}
	}

	numbers, err := f.numberNodes(nd, keys)
	if err != nil {
		return fmt.Errorf("numbering %d nodes: %w", len(keys), err)
	}
	nd.numbers = numbers
	for k, v := range nd.conn {
		if v >= 0 {
			nd.conn[k] = numbers[keys[v]]
		}
	}
	nd.keys = make([]Octant, len(keys))
	for i, key := range keys {
		key.Tag = int32(numbers[key])
		nd.keys[i] = key
	}
	slices.SortFunc(nd.keys, func(a, b Octant) int { return a.Compare(b) })

	f.nodes = nd
	rank := f.comm.Rank()
	f.log.WithField("order", order).Debugf("%d local nodes, %d dependent, %d owned",
		len(keys), len(nd.deps), nd.nodeRange[rank+1]-nd.nodeRange[rank])
	return nil
}

// labelDependentNodes marks the slots of local cells hanging on a face or
// an edge of a leaf one level coarser. Face and edge balance keep the
// parent's nodes on that face or edge independent, so each constraint only
// refers to numbered nodes.
func (f *Forest) labelDependentNodes(nd *nodeData) {
	np := nd.elem.Np()
	last := nd.order - 1
	index := make(map[Octant]int)
	for c, o := range f.octants.Items() {
		if o.Level == 0 {
			continue
		}
		o.Tag = 0
		p := o.Parent()
		id := o.ChildID()
		for face := 0; face < 6; face++ {
			axis, side := face>>1, face&1
			if (id>>axis)&1 != side || !f.leafAcross(p.FaceNeighbor(face), p.Side()) {
				continue
			}
			var fixed [3]int
			fixed[axis] = side * last
			t0, t1 := topology.TangentAxes(axis)
			f.hang(nd, index, c*np, o, fixed, []int{t0, t1})
		}
		for edge := 0; edge < 12; edge++ {
			axis := edge >> 2
			b0, b1 := topology.TangentAxes(axis)
			s0, s1 := edge&1, (edge>>1)&1
			if (id>>b0)&1 != s0 || (id>>b1)&1 != s1 || !f.leafAcross(p.EdgeNeighbor(edge), p.Side()) {
				continue
			}
			var fixed [3]int
			fixed[b0], fixed[b1] = s0*last, s1*last
			f.hang(nd, index, c*np, o, fixed, []int{axis})
		}
	}
}

// hang labels the knots of cell o on the face or edge given by the fixed
// knot indices, the free axes running over it. Knots that are not also
// knots of the parent interpolate the parent's knots there.
func (f *Forest) hang(nd *nodeData, index map[Octant]int, base int, o Octant, fixed [3]int, free []int) {
	p := o.Parent()
	id := o.ChildID()

	var tuples [][3]int
	var walk func(k int, ijk [3]int)
	walk = func(k int, ijk [3]int) {
		if k < 0 {
			tuples = append(tuples, ijk)
			return
		}
		for m := 0; m < nd.order; m++ {
			ijk[free[k]] = m
			walk(k-1, ijk)
		}
	}
	walk(len(free)-1, fixed)

	coarse := make([]Octant, len(tuples))
	onCoarse := make(map[Octant]bool, len(tuples))
	for m, ijk := range tuples {
		coarse[m] = f.nodeKey(nd, p, ijk)
		onCoarse[coarse[m]] = true
	}

	for _, ijk := range tuples {
		key := f.nodeKey(nd, o, ijk)
		if onCoarse[key] {
			continue
		}
		dep, seen := index[key]
		if !seen {
			w := make([][]float64, len(free))
			for k, a := range free {
				t := 0.5*float64((id>>a)&1) + 0.5*nd.knots[ijk[a]]
				w[k] = element.LagrangeWeights(nd.knots, t)
			}
			d := depNode{key: key}
			for m, cijk := range tuples {
				wt := 1.0
				for k, a := range free {
					wt *= w[k][cijk[a]]
				}
				if wt != 0 {
					d.coarse = append(d.coarse, coarse[m])
					d.weights = append(d.weights, wt)
				}
			}
			dep = len(nd.deps)
			index[key] = dep
			nd.deps = append(nd.deps, d)
		}
		nd.conn[base+nd.elem.Node(ijk[0], ijk[1], ijk[2])] = -(dep + 1)
	}
}

// numberNodes gives every key a global number. Keys are registered at
// their home rank, which names the lowest registering rank as owner.
// Owners number their keys after the ranks below them and publish the
// numbers at home, where every other rank asks for them.
func (f *Forest) numberNodes(nd *nodeData, keys []Octant) (map[Octant]int, error) {
	rank, size := f.comm.Rank(), f.comm.Size()
	homes := func(list []Octant) []int {
		dest := make([]int, len(list))
		for i, k := range list {
			dest[i] = f.homeOf(nd, k)
		}
		return dest
	}

	recv, plan, err := comm.Exchange(f.comm, keys, homes(keys), tagExchange)
	if err != nil {
		return nil, err
	}
	owner := make(map[Octant]int32, len(recv))
	for src := 0; src < size; src++ {
		for _, k := range recv[plan.PlaceOffsets[src]:plan.PlaceOffsets[src+1]] {
			if o, ok := owner[k]; !ok || int32(src) < o {
				owner[k] = int32(src)
			}
		}
	}
	answers := make([]Octant, len(recv))
	for i, k := range recv {
		answers[i] = k
		answers[i].Tag = owner[k]
	}
	owners, err := f.sendOctants(plan, answers)
	if err != nil {
		return nil, err
	}

	var owned []Octant
	for i, k := range keys {
		if int(owners[i].Tag) == rank {
			owned = append(owned, k)
		}
	}
	slices.SortFunc(owned, func(a, b Octant) int { return a.Compare(b) })
	counts := comm.Allgather(f.comm, len(owned))
	nd.nodeRange = make([]int, size+1)
	for r, n := range counts {
		nd.nodeRange[r+1] = nd.nodeRange[r] + n
	}
	numbers := make(map[Octant]int, len(keys))
	published := make([]Octant, len(owned))
	for i, k := range owned {
		numbers[k] = nd.nodeRange[rank] + i
		published[i] = k
		published[i].Tag = int32(nd.nodeRange[rank] + i)
	}

	recv, _, err = comm.Exchange(f.comm, published, homes(published), tagExchange)
	if err != nil {
		return nil, err
	}
	atHome := make(map[Octant]int32, len(recv))
	for _, k := range recv {
		atHome[normalize(k)] = k.Tag
	}

	var query []Octant
	asked := make(map[Octant]bool)
	ask := func(k Octant) {
		if _, ok := numbers[k]; !ok && !asked[k] {
			asked[k] = true
			query = append(query, k)
		}
	}
	for _, k := range keys {
		ask(k)
	}
	for _, d := range nd.deps {
		for _, k := range d.coarse {
			ask(k)
		}
	}
	recv, plan, err = comm.Exchange(f.comm, query, homes(query), tagExchange)
	if err != nil {
		return nil, err
	}
	for i, k := range recv {
		if n, ok := atHome[k]; ok {
			recv[i].Tag = n
		} else {
			recv[i].Tag = -1
		}
	}
	answers, err = f.sendOctants(plan, recv)
	if err != nil {
		return nil, err
	}
	for i, k := range query {
		if answers[i].Tag < 0 {
			f.log.WithField("node", k).Error("node number not resolved")
			continue
		}
		numbers[k] = int(answers[i].Tag)
	}
	return numbers, nil
}

func (f *Forest) nodesReady(op string) bool {
	if f.nodes == nil {
		f.log.Debugf("%s: nodes not created", op)
		return false
	}
	return true
}

// NodeConn returns Np node numbers per local cell; hanging nodes appear as
// -(dep+1)
func (f *Forest) NodeConn() []int {
	if !f.nodesReady("NodeConn") {
		return nil
	}
	return f.nodes.conn
}

// NodeRange returns the first global node number of every rank and the
// total at the end
func (f *Forest) NodeRange() []int {
	if !f.nodesReady("NodeRange") {
		return nil
	}
	return f.nodes.nodeRange
}

func (f *Forest) MeshOrder() int {
	if f.nodes == nil {
		return 0
	}
	return f.nodes.order
}

// Nodes returns the independent nodes referenced by local cells, sorted,
// with the global number in the tag
func (f *Forest) Nodes() []Octant {
	if !f.nodesReady("Nodes") {
		return nil
	}
	return f.nodes.keys
}

func (f *Forest) NodeNumber(key Octant) (int, bool) {
	if !f.nodesReady("NodeNumber") {
		return 0, false
	}
	n, ok := f.nodes.numbers[normalize(key)]
	return n, ok
}

// NodePosition returns the location of a node key in block units
func (f *Forest) NodePosition(key Octant) (x, y, z float64) {
	if !f.nodesReady("NodePosition") {
		return 0, 0, 0
	}
	nd := f.nodes
	return nd.coord(key.X, key.Level), nd.coord(key.Y, key.Level), nd.coord(key.Z, key.Level)
}

// NodeLocations returns the physical position of every entry of Nodes
func (f *Forest) NodeLocations(mesh *topology.HexMesh) []r3.Vector {
	if !f.nodesReady("NodeLocations") {
		return nil
	}
	span := float64(quadrant.HMax)
	out := make([]r3.Vector, len(f.nodes.keys))
	for i, key := range f.nodes.keys {
		x, y, z := f.NodePosition(key)
		out[i] = mesh.Position(int(key.Block), x, y, z, span)
	}
	return out
}

func (f *Forest) NumDepNodes() int {
	if f.nodes == nil {
		return 0
	}
	return len(f.nodes.deps)
}

// DepNodeConn returns the hanging node constraints: dependent node d equals
// the sum of weights[k]*u[conn[k]] for k in [ptr[d], ptr[d+1]). The arrays
// are built on first use.
func (f *Forest) DepNodeConn() (ptr, conn []int, weights []float64) {
	if !f.nodesReady("DepNodeConn") {
		return nil, nil, nil
	}
	nd := f.nodes
	if nd.depPtr == nil {
		nd.depPtr = make([]int, len(nd.deps)+1)
		for d, dep := range nd.deps {
			for k, key := range dep.coarse {
				n, ok := nd.numbers[key]
				if !ok {
					f.log.WithField("node", key).Errorf("dependent node %d refers to an unnumbered node", d)
					n = -1
				}
				nd.depConn = append(nd.depConn, n)
				nd.depWeights = append(nd.depWeights, dep.weights[k])
			}
			nd.depPtr[d+1] = len(nd.depConn)
		}
	}
	return nd.depPtr, nd.depConn, nd.depWeights
}

// ExtNodeNums returns the sorted global numbers referenced here that other
// ranks own
func (f *Forest) ExtNodeNums() []int {
	if !f.nodesReady("ExtNodeNums") {
		return nil
	}
	lo, hi := f.nodes.nodeRange[f.comm.Rank()], f.nodes.nodeRange[f.comm.Rank()+1]
	var ext []int
	for _, n := range f.nodes.numbers {
		if n < lo || n >= hi {
			ext = append(ext, n)
		}
	}
	slices.Sort(ext)
	return slices.Compact(ext)
}
