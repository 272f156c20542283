package forest

import (
	"fmt"
	"math"
	"slices"

	"github.com/notargets/QuadForest/comm"
	"github.com/notargets/QuadForest/element"
	"github.com/notargets/QuadForest/quadrant"
)

const unlabeled = math.MinInt

// nodeData is the node numbering of one forest. Node keys are degenerate
// quadrants on the lattice of span (order-1)*HMax, expressed in the frame
// of the block that owns the corner or edge they lie on.
type nodeData struct {
	order int
	elem  element.Element
	knots []float64
	uni   bool

	conn      []int // [cell*Np+slot] global number, or -(dep+1)
	nodeRange []int // Global numbers owned by rank r are [nodeRange[r], nodeRange[r+1])
	keys      []Quadrant
	numbers   map[Quadrant]int // Every key referenced here, including dependent weights
	deps      []depNode

	depPtr     []int
	depConn    []int
	depWeights []float64
}

// depNode is a hanging node on the edge of a coarse cell. t is the
// position along the coarse edge in its running direction.
type depNode struct {
	key    Quadrant
	coarse []Quadrant
	t      float64
}

func (nd *nodeData) lattice() int32 { return int32(nd.order-1) * quadrant.HMax }

// generic reports whether knot i sits at the same place for every level:
// the ends, and the middle for an odd number of knots
func (nd *nodeData) generic(i int) bool {
	return nd.uni || i == 0 || i == nd.order-1 || 2*i == nd.order-1
}

func normalize(k Quadrant) Quadrant {
	k.Tag = 0
	return k
}

// nodeKey returns the canonical key of knot (i, j) of cell q. Keys of knots
// that move with the cell size keep the cell level so they never collide
// with knots of other levels.
func (f *Forest) nodeKey(nd *nodeData, q Quadrant, i, j int) Quadrant {
	n := int32(nd.order - 1)
	h := q.Side()
	key := Quadrant{
		Block: q.Block,
		X:     n*q.X + int32(i)*h,
		Y:     n*q.Y + int32(j)*h,
		Level: quadrant.MaxLevel,
	}
	if !nd.generic(i) || !nd.generic(j) {
		key.Level = q.Level
	}
	return f.topo.TransformNode(key, nd.lattice())
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

// homeOf is the rank that arbitrates the number of a key: the holder of the
// finest cell at the key's position
func (f *Forest) homeOf(nd *nodeData, key Quadrant) int {
	n := int32(nd.order - 1)
	return f.OwnerOf(Quadrant{Block: key.Block, X: key.X / n, Y: key.Y / n, Level: quadrant.MaxLevel})
}

// CreateNodes numbers the nodes of a balanced forest with order knots per
// direction. Nodes shared by several cells, blocks or ranks get one global
// number; hanging nodes on the edges of coarser cells are numbered
// -(dep+1) in the connectivity.
func (f *Forest) CreateNodes(order int, knotType element.KnotType) error {
	if err := f.requireTopology(); err != nil {
		return err
	}
	elem, err := element.NewElement(element.Rectangle, order, knotType)
	if err != nil {
		return err
	}
	if err = f.ComputeAdjacentQuadrants(); err != nil {
		return err
	}
	if err = f.ComputeDepEdges(); err != nil {
		return err
	}
	nd := &nodeData{
		order: order,
		elem:  elem,
		knots: elem.Knots(),
		uni:   knotType == element.Uniform,
	}

	np := elem.Np()
	nd.conn = make([]int, f.quadrants.Len()*np)
	for i := range nd.conn {
		nd.conn[i] = unlabeled
	}
	f.labelDependentNodes(nd)

	// Raster sweep: one local index per distinct key
	local := make(map[Quadrant]int)
	var keys []Quadrant
	for c, q := range f.quadrants.Items() {
		for j := 0; j < order; j++ {
			for i := 0; i < order; i++ {
				slot := elem.Node(i, j, 0)
				if nd.conn[c*np+slot] != unlabeled {
					continue
				}
				key := f.nodeKey(nd, q, i, j)
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
	nd.keys = make([]Quadrant, len(keys))
	for i, key := range keys {
		key.Tag = int32(numbers[key])
		nd.keys[i] = key
	}
	slices.SortFunc(nd.keys, func(a, b Quadrant) int { return a.Compare(b) })

	f.nodes = nd
	f.log.WithField("order", order).Debugf("%d local nodes, %d dependent, %d owned",
		len(keys), len(nd.deps), nd.nodeRange[f.comm.Rank()+1]-nd.nodeRange[f.comm.Rank()])
	return nil
}

// labelDependentNodes marks the slots of local cells that hang on the edge
// of a coarser neighbour. Each dependent edge is split into its two halves
// and the finer cells on each half are found through TouchingEdges.
func (f *Forest) labelDependentNodes(nd *nodeData) {
	np := nd.elem.Np()
	index := make(map[Quadrant]int)
	for _, d := range f.depEdges.Items() {
		edge := int(d.Tag)
		d.Tag = 0
		coarse := make([]Quadrant, nd.order)
		onCoarse := make(map[Quadrant]bool, nd.order)
		for k, slot := range nd.elem.EdgePoints()[edge] {
			coarse[k] = f.nodeKey(nd, d, slot%nd.order, slot/nd.order)
			onCoarse[coarse[k]] = true
		}

		h := quadrant.Side(d.Level + 1)
		for ii := 0; ii < 2; ii++ {
			half := Quadrant{Block: d.Block, Level: d.Level + 1}
			if edge < 2 {
				half.X = d.X + h*int32(edge%2)
				half.Y = d.Y + int32(ii)*h
			} else {
				half.X = d.X + int32(ii)*h
				half.Y = d.Y + h*int32(edge%2)
			}
			hanging := make(map[Quadrant]float64)
			for k, slot := range nd.elem.EdgePoints()[edge] {
				key := f.nodeKey(nd, half, slot%nd.order, slot/nd.order)
				if !onCoarse[key] {
					hanging[key] = 0.5*float64(ii) + 0.5*nd.knots[k]
				}
			}

			for _, t := range f.TouchingEdges(f.quadrants, half, edge) {
				cell := int(t.Cell.Tag)
				for _, slot := range nd.elem.EdgePoints()[t.Index] {
					key := f.nodeKey(nd, t.Cell, slot%nd.order, slot/nd.order)
					pos, ok := hanging[key]
					if !ok {
						continue
					}
					dep, seen := index[key]
					if !seen {
						dep = len(nd.deps)
						index[key] = dep
						nd.deps = append(nd.deps, depNode{key: key, coarse: coarse, t: pos})
					}
					nd.conn[cell*np+slot] = -(dep + 1)
				}
			}
		}
	}
}

// numberNodes gives every key a global number. Each key is registered with
// its home rank, which names the lowest registering rank as owner. Owners
// number their keys in order after the ranks below them, publish the
// numbers at home, and every rank then asks home for the rest.
func (f *Forest) numberNodes(nd *nodeData, keys []Quadrant) (map[Quadrant]int, error) {
	rank, size := f.comm.Rank(), f.comm.Size()
	homes := func(list []Quadrant) []int {
		dest := make([]int, len(list))
		for i, k := range list {
			dest[i] = f.homeOf(nd, k)
		}
		return dest
	}

	// Registration
	recv, plan, err := exchange(f.comm, keys, homes(keys))
	if err != nil {
		return nil, err
	}
	owner := make(map[Quadrant]int32, len(recv))
	for src := 0; src < size; src++ {
		for _, k := range recv[plan.PlaceOffsets[src]:plan.PlaceOffsets[src+1]] {
			if o, ok := owner[k]; !ok || int32(src) < o {
				owner[k] = int32(src)
			}
		}
	}
	answers := make([]Quadrant, len(recv))
	for i, k := range recv {
		answers[i] = k
		answers[i].Tag = owner[k]
	}
	owners, err := f.sendQuadrants(plan, answers)
	if err != nil {
		return nil, err
	}

	var owned []Quadrant
	for i, k := range keys {
		if int(owners[i].Tag) == rank {
			owned = append(owned, k)
		}
	}
	slices.SortFunc(owned, func(a, b Quadrant) int { return a.Compare(b) })
	counts := comm.Allgather(f.comm, len(owned))
	nd.nodeRange = make([]int, size+1)
	for r, n := range counts {
		nd.nodeRange[r+1] = nd.nodeRange[r] + n
	}
	numbers := make(map[Quadrant]int, len(keys))
	published := make([]Quadrant, len(owned))
	for i, k := range owned {
		numbers[k] = nd.nodeRange[rank] + i
		published[i] = k
		published[i].Tag = int32(nd.nodeRange[rank] + i)
	}

	// Publication
	recv, _, err = exchange(f.comm, published, homes(published))
	if err != nil {
		return nil, err
	}
	atHome := make(map[Quadrant]int32, len(recv))
	for _, k := range recv {
		atHome[normalize(k)] = k.Tag
	}

	// Queries for the keys owned elsewhere, including the coarse edge nodes
	// that dependent nodes interpolate from
	var query []Quadrant
	asked := make(map[Quadrant]bool)
	ask := func(k Quadrant) {
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
	recv, plan, err = exchange(f.comm, query, homes(query))
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
	answers, err = f.sendQuadrants(plan, recv)
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

// NodeConn returns the element to node connectivity, Np entries per local
// cell in cell order. Hanging nodes appear as -(dep+1).
func (f *Forest) NodeConn() []int {
	if !f.nodesReady("NodeConn") {
		return nil
	}
	return f.nodes.conn
}

// NodeRange returns the first global node number of every rank, plus the
// total at the end
func (f *Forest) NodeRange() []int {
	if !f.nodesReady("NodeRange") {
		return nil
	}
	return f.nodes.nodeRange
}

// MeshOrder returns the order nodes were created with, or zero
func (f *Forest) MeshOrder() int {
	if f.nodes == nil {
		return 0
	}
	return f.nodes.order
}

// Nodes returns the independent nodes referenced by local cells, sorted,
// with the global number in the tag
func (f *Forest) Nodes() []Quadrant {
	if !f.nodesReady("Nodes") {
		return nil
	}
	return f.nodes.keys
}

// NodeNumber returns the global number of a node key referenced on this
// rank
func (f *Forest) NodeNumber(key Quadrant) (int, bool) {
	if !f.nodesReady("NodeNumber") {
		return 0, false
	}
	n, ok := f.nodes.numbers[normalize(key)]
	return n, ok
}

// NodePosition returns the location of a node key in block units, each
// coordinate in [0, HMax]
func (f *Forest) NodePosition(key Quadrant) (x, y float64) {
	if !f.nodesReady("NodePosition") {
		return 0, 0
	}
	return f.nodes.coord(key.X, key.Level), f.nodes.coord(key.Y, key.Level)
}

// NumDepNodes returns the number of hanging nodes on local cells
func (f *Forest) NumDepNodes() int {
	if f.nodes == nil {
		return 0
	}
	return len(f.nodes.deps)
}

// DepNodeConn returns the constraints of the hanging nodes: dependent node
// d equals the sum of weights[k]*u[conn[k]] for k in [ptr[d], ptr[d+1]).
// The arrays are built on first use.
func (f *Forest) DepNodeConn() (ptr, conn []int, weights []float64) {
	if !f.nodesReady("DepNodeConn") {
		return nil, nil, nil
	}
	nd := f.nodes
	if nd.depPtr == nil {
		nd.depPtr = make([]int, len(nd.deps)+1)
		for d, dep := range nd.deps {
			w := element.LagrangeWeights(nd.knots, dep.t)
			for k, key := range dep.coarse {
				n, ok := nd.numbers[key]
				if !ok {
					f.log.WithField("node", key).Errorf("dependent node %d refers to an unnumbered node", d)
					n = -1
				}
				nd.depConn = append(nd.depConn, n)
				nd.depWeights = append(nd.depWeights, w[k])
			}
			nd.depPtr[d+1] = len(nd.depConn)
		}
	}
	return nd.depPtr, nd.depConn, nd.depWeights
}

// ExtNodeNums returns the sorted global numbers referenced on this rank,
// by cells or by hanging node constraints, that other ranks own
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
