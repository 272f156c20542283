package triangulate

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/notargets/QuadForest/topology"
)

// QuadMesh is a quadrilateral mesh with corners in tensor order: (0,0),
// (1,0), (0,1), (1,1)
type QuadMesh struct {
	Points []r2.Point
	X      []r3.Vector
	Quads  [][4]int
}

// QuadMesh splits every triangle into three quadrilaterals joining its
// corners, edge midpoints and centroid. Midpoints of shared edges are
// shared.
func (tr *Triangulator) QuadMesh() *QuadMesh {
	m := tr.Mesh()
	qm := &QuadMesh{
		Points: m.Points,
		X:      m.X,
		Quads:  make([][4]int, 0, 3*len(m.Triangles)),
	}
	add := func(p r2.Point) int {
		qm.Points = append(qm.Points, p)
		qm.X = append(qm.X, tr.surf.EvalPoint(p.X, p.Y))
		return len(qm.Points) - 1
	}
	mids := make(map[[2]int]int)
	midpoint := func(a, b int) int {
		key := [2]int{a, b}
		if b < a {
			key = [2]int{b, a}
		}
		if n, ok := mids[key]; ok {
			return n
		}
		n := add(qm.Points[a].Add(qm.Points[b]).Mul(0.5))
		mids[key] = n
		return n
	}

	for _, t := range m.Triangles {
		a, b, c := t[0], t[1], t[2]
		ab, bc, ca := midpoint(a, b), midpoint(b, c), midpoint(c, a)
		g := add(qm.Points[a].Add(qm.Points[b]).Add(qm.Points[c]).Mul(1.0 / 3.0))
		qm.Quads = append(qm.Quads,
			[4]int{a, ab, ca, g},
			[4]int{b, bc, ab, g},
			[4]int{c, ca, bc, g},
		)
	}
	return qm
}

// Topology builds a block topology with one bilinear block per quad
func (qm *QuadMesh) Topology() (*topology.Topology, error) {
	return topology.NewFromQuadMesh(qm.X, qm.Quads)
}
