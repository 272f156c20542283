package triangulate

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/golang/geo/r2"
)

// pointItem is a mesh vertex stored in the R-tree
type pointItem struct {
	geom.Point
	num int
}

var _ geom.Geom = (*pointItem)(nil)

func (it *pointItem) Bounds() *geom.Bounds {
	return &geom.Bounds{Min: it.Point, Max: it.Point}
}

// locator finds the vertex closest to a query point
type locator struct {
	tree   *rtree.Rtree
	items  map[int]*pointItem
	radius float64 // Starting search half-width
}

func newLocator(extent float64) *locator {
	if extent <= 0 {
		extent = 1
	}
	return &locator{
		tree:   rtree.NewTree(25, 50),
		items:  make(map[int]*pointItem),
		radius: extent / 64,
	}
}

func (l *locator) add(num int, p r2.Point) {
	it := &pointItem{Point: geom.Point{X: p.X, Y: p.Y}, num: num}
	l.items[num] = it
	l.tree.Insert(it)
}

func (l *locator) remove(num int) {
	if it, ok := l.items[num]; ok {
		l.tree.Delete(it)
		delete(l.items, num)
	}
}

// closest returns the vertex nearest to p, or -1 when there are none. The
// search box grows until it holds a vertex no further away than its
// half-width, which bounds the distance to every vertex outside it.
func (l *locator) closest(p r2.Point) int {
	if len(l.items) == 0 {
		return -1
	}
	r := l.radius
	for {
		box := &geom.Bounds{
			Min: geom.Point{X: p.X - r, Y: p.Y - r},
			Max: geom.Point{X: p.X + r, Y: p.Y + r},
		}
		best, bestDist := -1, math.Inf(1)
		for _, s := range l.tree.SearchIntersect(box) {
			it := s.(*pointItem)
			if d := math.Hypot(it.X-p.X, it.Y-p.Y); d < bestDist || (d == bestDist && it.num < best) {
				best, bestDist = it.num, d
			}
		}
		switch {
		case best < 0:
			r *= 2
		case bestDist <= r:
			return best
		default:
			r = bestDist
		}
	}
}
