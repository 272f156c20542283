package triangulate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/ctessum/geom"
	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/QuadForest/config"
	"github.com/notargets/QuadForest/utils"
)

// squareWithHole is the unit square around the square hole
// [0.25,0.75]x[0.25,0.75], marked by its centre
func squareWithHole() ([]r2.Point, int, [][2]int) {
	points := []r2.Point{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1},
		{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.75}, {X: 0.25, Y: 0.75},
		{X: 0.5, Y: 0.5},
	}
	segs := [][2]int{
		{0, 1}, {1, 2}, {2, 3}, {3, 0},
		{4, 5}, {5, 6}, {6, 7}, {7, 4},
	}
	return points, 1, segs
}

func unitSquare() ([]r2.Point, [][2]int) {
	return []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}},
		[][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}
}

func newTriangulator(t *testing.T, points []r2.Point, nholes int, segs [][2]int,
	mutate func(*config.TriangulateOptions)) *Triangulator {
	opts := config.Default().Triangulate
	if mutate != nil {
		mutate(&opts)
	}
	tr, err := New(points, nholes, segs, nil, opts, utils.NewLogger("warn"))
	require.NoError(t, err)
	return tr
}

func triangleArea(m *Mesh, tri [3]int) float64 {
	a, b, c := m.Points[tri[0]], m.Points[tri[1]], m.Points[tri[2]]
	return geom.Polygon{{
		{X: a.X, Y: a.Y}, {X: b.X, Y: b.Y}, {X: c.X, Y: c.Y}, {X: a.X, Y: a.Y},
	}}.Area()
}

func meshArea(m *Mesh) float64 {
	var sum float64
	for _, tri := range m.Triangles {
		sum += triangleArea(m, tri)
	}
	return sum
}

// edgeUses counts the triangles holding each undirected edge
func edgeUses(m *Mesh) map[[2]int]int {
	uses := make(map[[2]int]int)
	for _, tri := range m.Triangles {
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			if b < a {
				a, b = b, a
			}
			uses[[2]int{a, b}]++
		}
	}
	return uses
}

// checkOriented verifies every triangle is counter-clockwise
func checkOriented(t *testing.T, m *Mesh) {
	for i, tri := range m.Triangles {
		o := orient2d(m.Points[tri[0]], m.Points[tri[1]], m.Points[tri[2]])
		assert.GreaterOrEqual(t, o, 0.0, "triangle %d %v", i, tri)
	}
}

// checkDelaunay verifies that across every interior edge that is not a
// segment, the far vertex lies outside or on the circumcircle
func checkDelaunay(t *testing.T, m *Mesh, segs [][2]int) {
	constrained := make(map[[2]int]bool)
	for _, s := range segs {
		constrained[[2]int{s[0], s[1]}] = true
		constrained[[2]int{s[1], s[0]}] = true
	}
	apex := make(map[[2]int]int)
	for _, tri := range m.Triangles {
		for k := 0; k < 3; k++ {
			apex[[2]int{tri[k], tri[(k+1)%3]}] = tri[(k+2)%3]
		}
	}
	for _, tri := range m.Triangles {
		for k := 0; k < 3; k++ {
			u, v := tri[k], tri[(k+1)%3]
			if constrained[[2]int{u, v}] {
				continue
			}
			x, ok := apex[[2]int{v, u}]
			if !ok {
				continue
			}
			w := tri[(k+2)%3]
			in := incircle(m.Points[u], m.Points[v], m.Points[w], m.Points[x])
			assert.LessOrEqual(t, in, 1e-12, "edge (%d, %d) is not locally Delaunay", u, v)
		}
	}
}

func TestSquareWithHole(t *testing.T) {
	points, nholes, segs := squareWithHole()
	tr := newTriangulator(t, points, nholes, segs, nil)
	m := tr.Mesh()

	assert.Equal(t, 8, tr.NumPoints(), "the hole marker is dropped")
	assert.Len(t, m.Points, 8)
	assert.Equal(t, 8, tr.NumTriangles())
	assert.Len(t, m.Triangles, 8)
	assert.InDelta(t, 1.0-0.25, meshArea(m), 1e-12)
	checkOriented(t, m)
	checkDelaunay(t, m, segs)

	for i, tri := range m.Triangles {
		c := m.Points[tri[0]].Add(m.Points[tri[1]]).Add(m.Points[tri[2]]).Mul(1.0 / 3.0)
		inHole := c.X > 0.25 && c.X < 0.75 && c.Y > 0.25 && c.Y < 0.75
		assert.False(t, inHole, "triangle %d %v lies in the hole", i, tri)
	}

	// Every segment bounds exactly one triangle
	uses := edgeUses(m)
	for _, s := range segs {
		a, b := s[0], s[1]
		if b < a {
			a, b = b, a
		}
		assert.Equal(t, 1, uses[[2]int{a, b}], "segment %v", s)
	}
	for e, n := range uses {
		assert.LessOrEqual(t, n, 2, "edge %v", e)
	}
}

func TestRandomPointsAreDelaunay(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	points, segs := unitSquare()
	for i := 0; i < 30; i++ {
		points = append(points, r2.Point{X: 0.05 + 0.9*rng.Float64(), Y: 0.05 + 0.9*rng.Float64()})
	}
	tr := newTriangulator(t, points, 0, segs, nil)
	m := tr.Mesh()

	// Euler: 2n - 2 - (hull vertices)
	assert.Equal(t, 2*len(points)-2-4, tr.NumTriangles())
	assert.InDelta(t, 1.0, meshArea(m), 1e-12)
	checkOriented(t, m)
	checkDelaunay(t, m, segs)

	used := make(map[int]bool)
	for _, tri := range m.Triangles {
		for _, n := range tri {
			used[n] = true
		}
	}
	assert.Len(t, used, len(points), "every point is a vertex")
}

// TestLShapeWithHole runs an L-shaped outline, with points lying along
// its straight sides, around a diamond hole and filled with random points
func TestLShapeWithHole(t *testing.T) {
	points := []r2.Point{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 0.5}, {X: 2, Y: 1},
		{X: 1, Y: 1}, {X: 1, Y: 2}, {X: 0.5, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 1},
		{X: 0.5, Y: 0.3}, {X: 0.7, Y: 0.5}, {X: 0.5, Y: 0.7}, {X: 0.3, Y: 0.5},
	}
	var segs [][2]int
	for i := 0; i < 10; i++ {
		segs = append(segs, [2]int{i, (i + 1) % 10})
	}
	for i := 0; i < 4; i++ {
		segs = append(segs, [2]int{10 + i, 10 + (i+1)%4})
	}
	nboundary := len(points)

	rng := rand.New(rand.NewSource(20))
	for len(points) < nboundary+60 {
		p := r2.Point{X: 0.02 + 1.96*rng.Float64(), Y: 0.02 + 1.96*rng.Float64()}
		if p.X > 0.98 && p.Y > 0.98 {
			continue
		}
		if math.Abs(p.X-0.5)+math.Abs(p.Y-0.5) < 0.25 {
			continue
		}
		points = append(points, p)
	}
	points = append(points, r2.Point{X: 0.5, Y: 0.5})

	tr := newTriangulator(t, points, 1, segs, nil)
	m := tr.Mesh()

	n := len(points) - 1
	assert.Equal(t, n, tr.NumPoints())
	// Euler with one hole: 2n - 2 - (boundary vertices) + 2
	assert.Equal(t, 2*n-2-nboundary+2, tr.NumTriangles())
	assert.InDelta(t, 3.0-0.08, meshArea(m), 1e-10)
	checkOriented(t, m)
	checkDelaunay(t, m, segs)

	uses := edgeUses(m)
	for _, s := range segs {
		a, b := s[0], s[1]
		if b < a {
			a, b = b, a
		}
		assert.Equal(t, 1, uses[[2]int{a, b}], "segment %v", s)
	}
	for e, k := range uses {
		assert.LessOrEqual(t, k, 2, "edge %v", e)
	}
}

func TestSegmentRecovery(t *testing.T) {
	// The long diagonal is not Delaunay: the two side points sit well inside
	// any circle through its ends
	points := []r2.Point{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 1}, {X: 0, Y: 1},
		{X: 2, Y: 0.45}, {X: 2.2, Y: 0.6},
	}
	segs := [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {0, 2}}
	tr := newTriangulator(t, points, 0, segs, nil)
	m := tr.Mesh()

	uses := edgeUses(m)
	assert.Equal(t, 2, uses[[2]int{0, 2}], "the diagonal is an interior edge")
	assert.InDelta(t, 4.0, meshArea(m), 1e-12)
	checkOriented(t, m)
	checkDelaunay(t, m, segs)

	// No triangle crosses the diagonal
	a, b := points[0], points[2]
	for i, tri := range m.Triangles {
		var left, right bool
		for _, n := range tri {
			o := orient2d(a, b, m.Points[n])
			left = left || o > 1e-12
			right = right || o < -1e-12
		}
		assert.False(t, left && right, "triangle %d %v crosses the diagonal", i, tri)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	opts := config.Default().Triangulate
	points, segs := unitSquare()
	_, err := New(points[:2], 0, nil, nil, opts, nil)
	assert.Error(t, err)
	_, err = New(points, 2, nil, nil, opts, nil)
	assert.Error(t, err)
	_, err = New(points, 0, append(segs, [2]int{1, 4}), nil, opts, nil)
	assert.Error(t, err)
	_, err = New(points, 0, [][2]int{{2, 2}}, nil, opts, nil)
	assert.Error(t, err)
}

func TestRemoveDegenerateEdges(t *testing.T) {
	points, segs := unitSquare()
	points = append(points, r2.Point{X: 0.5, Y: 0.5}, r2.Point{X: 0.5, Y: 0.52})
	tr := newTriangulator(t, points, 0, segs, nil)
	require.Equal(t, 6, tr.NumPoints())

	m := tr.Mesh()
	uses := edgeUses(m)
	require.Equal(t, 2, uses[[2]int{4, 5}], "the short edge is interior")
	before := tr.NumTriangles()

	require.NoError(t, tr.RemoveDegenerateEdges([][2]int{{5, 4}}))
	assert.Equal(t, 5, tr.NumPoints())
	assert.Equal(t, before-2, tr.NumTriangles())

	m = tr.Mesh()
	assert.Len(t, m.Points, 5)
	for _, tri := range m.Triangles {
		for _, n := range tri {
			assert.Less(t, n, 5)
		}
		assert.NotEqual(t, tri[0], tri[1])
		assert.NotEqual(t, tri[1], tri[2])
		assert.NotEqual(t, tri[2], tri[0])
	}
	assert.InDelta(t, 1.0, meshArea(m), 1e-2)

	assert.Error(t, tr.RemoveDegenerateEdges([][2]int{{0, 9}}))
}

func TestLocatorClosest(t *testing.T) {
	l := newLocator(1)
	assert.Equal(t, -1, l.closest(r2.Point{}))
	pts := []r2.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 3, Y: 4}, {X: -7, Y: -7}}
	for i, p := range pts {
		l.add(i, p)
	}
	assert.Equal(t, 0, l.closest(r2.Point{X: 0.1, Y: 0.1}))
	assert.Equal(t, 1, l.closest(r2.Point{X: 100, Y: 1}))
	assert.Equal(t, 2, l.closest(r2.Point{X: 3, Y: 3}))
	assert.Equal(t, 3, l.closest(r2.Point{X: -50, Y: -40}))
	l.remove(2)
	assert.Equal(t, 0, l.closest(r2.Point{X: 3, Y: 3}))
}

func TestPredicates(t *testing.T) {
	a, b, c := r2.Point{X: 0, Y: 0}, r2.Point{X: 1, Y: 0}, r2.Point{X: 0, Y: 1}
	assert.Greater(t, orient2d(a, b, c), 0.0)
	assert.Less(t, orient2d(a, c, b), 0.0)
	assert.Equal(t, 0.0, orient2d(a, b, r2.Point{X: 2, Y: 0}))

	assert.Greater(t, incircle(a, b, c, r2.Point{X: 0.5, Y: 0.5}), 0.0)
	assert.Less(t, incircle(a, b, c, r2.Point{X: 2, Y: 2}), 0.0)
	assert.Equal(t, 0.0, incircle(a, b, c, r2.Point{X: 1, Y: 1}))

	m := identityMetric
	p := r2.Point{X: 0.3, Y: -2}
	assert.Equal(t, p, m.apply(p))
	assert.True(t, math.Abs(orient2d(m.apply(a), m.apply(b), m.apply(c))-1) < 1e-15)
}
