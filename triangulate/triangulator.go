// Package triangulate builds constrained Delaunay triangulations of planar
// straight line graphs in the parameter space of a surface, optionally
// refined by a frontal point placement driven by a target feature size.
package triangulate

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"github.com/notargets/QuadForest/config"
	"github.com/notargets/QuadForest/topology"
)

// The corners of the enclosing rectangle occupy the first point slots
const fixedPoints = 4

type status uint8

const (
	noStatus status = iota
	waiting
	active
	accepted
)

// triangle is a counter-clockwise vertex triple living in one arena slot.
// gen changes whenever the slot is recycled.
type triangle struct {
	u, v, w int
	live    bool
	gen     uint32
	tag     uint32
	status  status
	quality float64
	R       float64 // Physical circumradius
}

// edge is directed; a triangle owns the three edges u->v, v->w and w->u
type edge struct {
	u, v int
}

func (t *triangle) edges() [3]edge {
	return [3]edge{{t.u, t.v}, {t.v, t.w}, {t.w, t.u}}
}

func (t *triangle) has(n int) bool {
	return t.u == n || t.v == n || t.w == n
}

// apex returns the vertex opposite the directed edge (a, b) of t
func (t *triangle) apex(a, b int) int {
	switch {
	case t.u == a && t.v == b:
		return t.w
	case t.v == a && t.w == b:
		return t.u
	default:
		return t.v
	}
}

// Triangulator holds a constrained Delaunay triangulation of parametric
// points. Point numbers given to and returned from the exported methods
// exclude the four corners of the enclosing rectangle.
type Triangulator struct {
	log  *logrus.Entry
	opts config.TriangulateOptions

	surf topology.Surface
	pts  []r2.Point  // Parametric locations
	X    []r3.Vector // Physical locations

	// Number of input points that are not hole markers
	initBoundary int

	tris      []triangle
	free      []int
	numTris   int
	edges     map[edge]int // Directed edge -> owning slot
	ptToTri   []int        // A slot touching each point, -1 if none
	pslg      map[edge]struct{}
	loc       *locator
	searchTag uint32

	// Slots created while tracking is on
	tracking bool
	created  []int
}

// New triangulates points subject to the segments segs, each a pair of
// indices into points. The last nholes points mark holes: every triangle
// reachable from one of them without crossing a segment is removed, as is
// everything outside the segments. surf supplies the metric and the physical
// locations; nil means the plane z = 0. log may be nil.
func New(points []r2.Point, nholes int, segs [][2]int, surf topology.Surface,
	opts config.TriangulateOptions, log *logrus.Logger) (*Triangulator, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("triangulate: need at least 3 points, got %d", len(points))
	}
	if nholes < 0 || len(points)-nholes < 3 {
		return nil, fmt.Errorf("triangulate: %d hole points leave fewer than 3 of %d points",
			nholes, len(points))
	}
	nbound := len(points) - nholes
	for i, s := range segs {
		if s[0] < 0 || s[0] >= nbound || s[1] < 0 || s[1] >= nbound || s[0] == s[1] {
			return nil, fmt.Errorf("triangulate: segment %d (%d, %d) is not an edge between %d points",
				i, s[0], s[1], nbound)
		}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	if surf == nil {
		surf = &topology.Plane{Umin: lo.X, Vmin: lo.Y, Umax: hi.X, Vmax: hi.Y}
	}
	dx, dy := 10*(hi.X-lo.X), 10*(hi.Y-lo.Y)
	lo.X, lo.Y = lo.X-dx, lo.Y-dy
	hi.X, hi.Y = hi.X+dx, hi.Y+dy

	tr := &Triangulator{
		log:          log.WithField("component", "triangulate"),
		opts:         opts,
		surf:         surf,
		initBoundary: nbound,
		edges:        make(map[edge]int),
		pslg:         make(map[edge]struct{}, 2*len(segs)),
		loc:          newLocator(math.Max(hi.X-lo.X, hi.Y-lo.Y)),
	}
	for _, s := range segs {
		u, v := s[0]+fixedPoints, s[1]+fixedPoints
		tr.pslg[edge{u, v}] = struct{}{}
		tr.pslg[edge{v, u}] = struct{}{}
	}

	for _, p := range []r2.Point{
		{X: lo.X, Y: lo.Y}, {X: hi.X, Y: lo.Y}, {X: lo.X, Y: hi.Y}, {X: hi.X, Y: hi.Y},
	} {
		tr.pts = append(tr.pts, p)
		tr.X = append(tr.X, r3.Vector{})
		tr.ptToTri = append(tr.ptToTri, -1)
		tr.loc.add(len(tr.pts)-1, p)
	}
	tr.addTriangle(0, 1, 2)
	tr.addTriangle(2, 1, 3)

	for _, p := range points {
		tr.addPointToMesh(p, false)
	}
	for _, s := range segs {
		u, v := s[0]+fixedPoints, s[1]+fixedPoints
		if tr.completeMe(u, v) < 0 {
			tr.insertSegment(u, v)
		}
	}

	tr.removeOutside(nholes)
	for n := 0; n < fixedPoints; n++ {
		tr.loc.remove(n)
	}
	for n := len(tr.pts) - nholes; n < len(tr.pts); n++ {
		tr.loc.remove(n)
	}
	keep := len(tr.pts) - nholes
	tr.pts, tr.X, tr.ptToTri = tr.pts[:keep], tr.X[:keep], tr.ptToTri[:keep]

	flips := tr.delaunayEdgeFlip()
	tr.resetPointTriangles()
	tr.log.WithFields(logrus.Fields{
		"points":    len(points),
		"holes":     nholes,
		"segments":  len(segs),
		"triangles": tr.numTris,
		"flips":     flips,
	}).Debug("constrained triangulation built")
	return tr, nil
}

// NumTriangles returns the number of live triangles
func (tr *Triangulator) NumTriangles() int { return tr.numTris }

// NumPoints returns the number of mesh points
func (tr *Triangulator) NumPoints() int { return len(tr.pts) - fixedPoints }

// Mesh is a triangulation with counter-clockwise triangles
type Mesh struct {
	Points    []r2.Point
	X         []r3.Vector
	Triangles [][3]int
}

// Mesh copies out the current triangulation
func (tr *Triangulator) Mesh() *Mesh {
	m := &Mesh{
		Points:    append([]r2.Point(nil), tr.pts[fixedPoints:]...),
		X:         append([]r3.Vector(nil), tr.X[fixedPoints:]...),
		Triangles: make([][3]int, 0, tr.numTris),
	}
	for i := range tr.tris {
		t := &tr.tris[i]
		if !t.live {
			continue
		}
		m.Triangles = append(m.Triangles, [3]int{t.u - fixedPoints, t.v - fixedPoints, t.w - fixedPoints})
	}
	return m
}

// RemoveDegenerateEdges collapses each edge (a, b) of the mesh: the
// triangles on both sides are removed and the higher numbered point is
// merged into the lower one. Remaining points are renumbered contiguously.
func (tr *Triangulator) RemoveDegenerateEdges(pairs [][2]int) error {
	if len(pairs) == 0 {
		return nil
	}
	n := tr.NumPoints()
	sorted := make([][2]int, len(pairs))
	for i, p := range pairs {
		if p[0] < 0 || p[0] >= n || p[1] < 0 || p[1] >= n || p[0] == p[1] {
			return fmt.Errorf("triangulate: degenerate edge (%d, %d) is not an edge between %d points",
				p[0], p[1], n)
		}
		hi, lo := p[0]+fixedPoints, p[1]+fixedPoints
		if lo > hi {
			hi, lo = lo, hi
		}
		sorted[i] = [2]int{hi, lo}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	for _, p := range sorted {
		removed := false
		if s := tr.completeMe(p[0], p[1]); s >= 0 {
			tr.deleteTriangle(s)
			removed = true
		}
		if s := tr.completeMe(p[1], p[0]); s >= 0 {
			tr.deleteTriangle(s)
			removed = true
		}
		if !removed {
			tr.log.WithField("edge", [2]int{p[1] - fixedPoints, p[0] - fixedPoints}).
				Error("degenerate edge not found in the mesh")
		}
	}

	oldToNew := make([]int, len(tr.pts))
	count, j := 0, 0
	for i := range tr.pts {
		if j < len(sorted) && sorted[j][0] == i {
			oldToNew[i] = oldToNew[sorted[j][1]]
			for j < len(sorted) && sorted[j][0] == i {
				j++
			}
			continue
		}
		oldToNew[i] = count
		tr.pts[count] = tr.pts[i]
		tr.X[count] = tr.X[i]
		count++
	}
	tr.pts, tr.X = tr.pts[:count], tr.X[:count]

	for i := range tr.tris {
		t := &tr.tris[i]
		if t.live {
			t.u, t.v, t.w = oldToNew[t.u], oldToNew[t.v], oldToNew[t.w]
		}
	}
	pslg := make(map[edge]struct{}, len(tr.pslg))
	for e := range tr.pslg {
		if u, v := oldToNew[e.u], oldToNew[e.v]; u != v {
			pslg[edge{u, v}] = struct{}{}
		}
	}
	tr.pslg = pslg
	tr.reindex()
	return nil
}

// reindex rebuilds the edge table, the point to triangle map and the
// locator from the live triangles and points
func (tr *Triangulator) reindex() {
	tr.edges = make(map[edge]int, 3*tr.numTris)
	for i := range tr.tris {
		t := &tr.tris[i]
		if !t.live {
			continue
		}
		for _, e := range t.edges() {
			tr.edges[e] = i
		}
	}
	tr.ptToTri = make([]int, len(tr.pts))
	tr.resetPointTriangles()

	tr.loc = newLocator(tr.loc.radius * 64)
	for n := fixedPoints; n < len(tr.pts); n++ {
		tr.loc.add(n, tr.pts[n])
	}
}

func (tr *Triangulator) resetPointTriangles() {
	for i := range tr.ptToTri {
		tr.ptToTri[i] = -1
	}
	for i := range tr.tris {
		t := &tr.tris[i]
		if t.live {
			tr.ptToTri[t.u], tr.ptToTri[t.v], tr.ptToTri[t.w] = i, i, i
		}
	}
}

func (tr *Triangulator) inPSLG(u, v int) bool {
	_, ok := tr.pslg[edge{u, v}]
	return ok
}

func (tr *Triangulator) touchesPSLG(t *triangle) bool {
	for _, e := range t.edges() {
		if tr.inPSLG(e.u, e.v) {
			return true
		}
	}
	return false
}

// completeMe returns the slot owning the directed edge (u, v), or -1
func (tr *Triangulator) completeMe(u, v int) int {
	if s, ok := tr.edges[edge{u, v}]; ok {
		return s
	}
	return -1
}

func (tr *Triangulator) addTriangle(u, v, w int) int {
	var slot int
	if n := len(tr.free); n > 0 {
		slot = tr.free[n-1]
		tr.free = tr.free[:n-1]
		tr.tris[slot] = triangle{u: u, v: v, w: w, live: true, gen: tr.tris[slot].gen + 1}
	} else {
		slot = len(tr.tris)
		tr.tris = append(tr.tris, triangle{u: u, v: v, w: w, live: true})
	}
	tr.numTris++
	for _, e := range tr.tris[slot].edges() {
		tr.edges[e] = slot
	}
	tr.ptToTri[u], tr.ptToTri[v], tr.ptToTri[w] = slot, slot, slot
	if tr.tracking {
		tr.created = append(tr.created, slot)
	}
	return slot
}

func (tr *Triangulator) deleteTriangle(slot int) {
	t := &tr.tris[slot]
	if !t.live {
		return
	}
	for _, e := range t.edges() {
		if s, ok := tr.edges[e]; ok && s == slot {
			delete(tr.edges, e)
		}
	}
	t.live = false
	tr.numTris--
	tr.free = append(tr.free, slot)
}

func (tr *Triangulator) addPoint(p r2.Point) int {
	n := len(tr.pts)
	tr.pts = append(tr.pts, p)
	tr.X = append(tr.X, tr.surf.EvalPoint(p.X, p.Y))
	tr.ptToTri = append(tr.ptToTri, -1)
	tr.loc.add(n, p)
	return n
}

// addPointToMesh inserts p into the triangle enclosing it
func (tr *Triangulator) addPointToMesh(p r2.Point, useMetric bool) int {
	return tr.insertInto(p, tr.findEnclosing(p), useMetric)
}

// insertInto adds p and, when slot is a live triangle, replaces it by the
// Delaunay cavity around p
func (tr *Triangulator) insertInto(p r2.Point, slot int, useMetric bool) int {
	u := tr.addPoint(p)
	if slot < 0 {
		return u
	}
	t := tr.tris[slot]
	tr.deleteTriangle(slot)
	tr.digCavity(u, [][2]int{{t.u, t.v}, {t.v, t.w}, {t.w, t.u}}, useMetric)
	return u
}

// digCavity grows the cavity of the new point u outward through each rim
// edge (v, w) in turn. The triangle across a rim edge is removed when u lies
// inside its circumcircle, and its two far edges take the place of the rim
// edge. Segments bound the cavity.
func (tr *Triangulator) digCavity(u int, rim [][2]int, useMetric bool) {
	stack := make([][2]int, 0, 2*len(rim))
	for i := len(rim) - 1; i >= 0; i-- {
		stack = append(stack, rim[i])
	}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v, w := e[0], e[1]
		if tr.inPSLG(w, v) {
			tr.addTriangle(u, v, w)
			continue
		}
		if s := tr.completeMe(w, v); s >= 0 {
			x := tr.tris[s].apex(w, v)
			if tr.inCircle(u, v, w, x, useMetric) > 0 {
				tr.deleteTriangle(s)
				stack = append(stack, [2]int{x, w}, [2]int{v, x})
				continue
			}
		}
		tr.addTriangle(u, v, w)
	}
}

// startTriangle returns a live triangle touching n, or any live triangle
// when n has none
func (tr *Triangulator) startTriangle(n int) int {
	if n >= 0 && n < len(tr.ptToTri) {
		if s := tr.ptToTri[n]; s >= 0 && tr.tris[s].live && tr.tris[s].has(n) {
			return s
		}
	}
	for i := range tr.tris {
		if tr.tris[i].live && (n < 0 || tr.tris[i].has(n)) {
			return i
		}
	}
	if n >= 0 {
		return tr.startTriangle(-1)
	}
	return -1
}

// findEnclosing starts at a triangle touching the closest vertex to p and
// walks the mesh breadth first until a triangle encloses p. It returns -1
// when p lies outside the mesh.
func (tr *Triangulator) findEnclosing(p r2.Point) int {
	start := tr.startTriangle(tr.loc.closest(p))
	if start < 0 {
		return -1
	}
	if t := &tr.tris[start]; tr.enclosed(p, t.u, t.v, t.w) {
		return start
	}

	tr.searchTag++
	if tr.searchTag == 0 {
		for i := range tr.tris {
			tr.tris[i].tag = 0
		}
		tr.searchTag = 1
	}
	tr.tris[start].tag = tr.searchTag

	var queue fifo[int]
	queue.push(start)
	for queue.len() > 0 {
		t := tr.tris[queue.pop()]
		for _, e := range t.edges() {
			s := tr.completeMe(e.v, e.u)
			if s < 0 || tr.tris[s].tag == tr.searchTag {
				continue
			}
			nb := &tr.tris[s]
			if tr.enclosed(p, nb.u, nb.v, nb.w) {
				return s
			}
			nb.tag = tr.searchTag
			queue.push(s)
		}
	}
	return -1
}

// straddling finds the triangle (u, w, x) around u whose corner at u holds
// the direction to v, with x on or left of u->v and w on or right of it
func (tr *Triangulator) straddling(u, v int) (slot, w, x int) {
	pu, pv := tr.pts[u], tr.pts[v]
	around := func(t *triangle) (int, int) {
		switch u {
		case t.u:
			return t.v, t.w
		case t.v:
			return t.w, t.u
		default:
			return t.u, t.v
		}
	}
	// Turn counter-clockwise first, then clockwise when the fan is open
	for _, ccw := range []bool{true, false} {
		s := tr.startTriangle(u)
		for steps := 0; s >= 0 && steps <= tr.numTris; steps++ {
			w, x = around(&tr.tris[s])
			if orient2d(pu, pv, tr.pts[x]) >= 0 && orient2d(pu, pv, tr.pts[w]) <= 0 {
				return s, w, x
			}
			if ccw {
				s = tr.completeMe(u, x)
			} else {
				s = tr.completeMe(w, u)
			}
		}
	}
	return -1, 0, 0
}

// insertSegment recovers the segment (u, v) by removing every triangle it
// crosses and re-triangulating the polygons on either side
func (tr *Triangulator) insertSegment(u, v int) {
	slot, w, x := tr.straddling(u, v)
	if slot < 0 {
		tr.log.WithFields(logrus.Fields{"u": u - fixedPoints, "v": v - fixedPoints}).
			Error("segment recovery: no triangle around the first point straddles the segment")
		return
	}
	pos := []int{u, x}
	neg := []int{u, w}
	tr.deleteTriangle(slot)
	for {
		s := tr.completeMe(x, w)
		if s < 0 {
			tr.log.WithFields(logrus.Fields{"u": u - fixedPoints, "v": v - fixedPoints}).
				Error("segment recovery: no triangle found, edge orientations are inconsistent")
			break
		}
		y := tr.tris[s].apex(x, w)
		tr.deleteTriangle(s)
		if y == v {
			pos = append(pos, v)
			neg = append(neg, v)
			break
		}
		if orient2d(tr.pts[u], tr.pts[v], tr.pts[y]) >= 0 {
			pos = append(pos, y)
			x = y
		} else {
			neg = append(neg, y)
			w = y
		}
	}
	tr.giftWrap(pos, 1)
	tr.giftWrap(neg, -1)
}

// giftWrap triangulates the polygon formed by the chain v[0..n-1] and the
// closing segment v[n-1] -> v[0]. Each step picks the chain vertex whose
// triangle with the segment has no other chain vertex in its circumcircle,
// then splits the chain there.
func (tr *Triangulator) giftWrap(chain []int, orient int) {
	type span struct{ lo, hi int }
	stack := []span{{0, len(chain) - 1}}
	for len(stack) > 0 {
		sp := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v := chain[sp.lo : sp.hi+1]
		size := len(v)
		if size <= 2 {
			continue
		}
		index, t := 1, v[1]
		for i := 2; i < size-1; i++ {
			var in float64
			if orient > 0 {
				in = tr.inCircle(v[0], v[size-1], t, v[i], false)
			} else {
				in = tr.inCircle(v[size-1], v[0], t, v[i], false)
			}
			if in >= 0 {
				t, index = v[i], i
			}
		}
		if orient > 0 {
			tr.addTriangle(v[0], v[size-1], t)
		} else {
			tr.addTriangle(v[size-1], v[0], t)
		}
		stack = append(stack, span{sp.lo + index, sp.hi}, span{sp.lo, sp.lo + index})
	}
}

// removeOutside deletes every triangle connected, without crossing a
// segment, to a corner of the enclosing rectangle or to a hole point
func (tr *Triangulator) removeOutside(nholes int) {
	for i := range tr.tris {
		tr.tris[i].tag = 0
	}
	firstHole := len(tr.pts) - nholes
	outside := func(n int) bool { return n < fixedPoints || n >= firstHole }

	var stack []int
	for i := range tr.tris {
		t := &tr.tris[i]
		if !t.live || t.tag != 0 || !(outside(t.u) || outside(t.v) || outside(t.w)) {
			continue
		}
		t.tag = 1
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			s := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, e := range tr.tris[s].edges() {
				if tr.inPSLG(e.u, e.v) {
					continue
				}
				if nb := tr.completeMe(e.v, e.u); nb >= 0 && tr.tris[nb].tag == 0 {
					tr.tris[nb].tag = 1
					stack = append(stack, nb)
				}
			}
		}
	}
	for i := range tr.tris {
		if tr.tris[i].live && tr.tris[i].tag == 1 {
			tr.deleteTriangle(i)
		}
	}
	for i := range tr.tris {
		tr.tris[i].tag = 0
	}
	tr.searchTag = 0
}

// delaunayEdgeFlip flips interior non-segment edges until every one passes
// the paired circumcircle test. It returns the number of flips.
func (tr *Triangulator) delaunayEdgeFlip() int {
	var queue fifo[edge]
	for i := range tr.tris {
		t := &tr.tris[i]
		if !t.live {
			continue
		}
		for _, e := range t.edges() {
			if e.u < e.v && !tr.inPSLG(e.u, e.v) {
				queue.push(e)
			}
		}
	}

	flips := 0
	for queue.len() > 0 {
		e := queue.pop()
		u, v := e.u, e.v
		t1, t2 := tr.completeMe(u, v), tr.completeMe(v, u)
		if t1 < 0 || t2 < 0 || tr.inPSLG(u, v) {
			continue
		}
		w := tr.tris[t1].apex(u, v)
		x := tr.tris[t2].apex(v, u)
		if orient2d(tr.pts[x], tr.pts[w], tr.pts[u]) <= 0 ||
			orient2d(tr.pts[w], tr.pts[x], tr.pts[v]) <= 0 {
			continue
		}
		notDelaunay := tr.inCircle(u, v, w, x, true) >= 0 && tr.inCircle(v, u, x, w, true) >= 0
		delaunay := tr.inCircle(x, w, u, v, true) < 0 && tr.inCircle(w, x, v, u, true) < 0
		if !notDelaunay || !delaunay {
			continue
		}
		tr.deleteTriangle(t1)
		tr.deleteTriangle(t2)
		tr.addTriangle(x, w, u)
		tr.addTriangle(w, x, v)
		queue.push(edge{u, x})
		queue.push(edge{x, v})
		queue.push(edge{v, w})
		queue.push(edge{w, u})
		flips++
	}
	return flips
}

// fifo is a slice backed first-in first-out queue
type fifo[T any] struct {
	items []T
	head  int
}

func (q *fifo[T]) push(v T) { q.items = append(q.items, v) }

func (q *fifo[T]) pop() T {
	v := q.items[q.head]
	q.head++
	if q.head == len(q.items) {
		q.items, q.head = q.items[:0], 0
	}
	return v
}

func (q *fifo[T]) len() int { return len(q.items) - q.head }
