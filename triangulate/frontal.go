package triangulate

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/QuadForest/element"
)

const sqrt3 = 1.7320508075688772

// FeatureSize gives the target edge length at a physical point
type FeatureSize interface {
	Size(p r3.Vector) float64
}

// ConstantSize is a uniform target edge length
type ConstantSize float64

func (h ConstantSize) Size(r3.Vector) float64 { return float64(h) }

// SizeFunc adapts a function to FeatureSize
type SizeFunc func(p r3.Vector) float64

func (f SizeFunc) Size(p r3.Vector) float64 { return f(p) }

// FrontalStats summarises one frontal refinement
type FrontalStats struct {
	Iterations     int
	Inserted       int
	Rejected       int
	NewtonFailures int
}

// handle names a triangle slot at one generation
type handle struct {
	slot int
	gen  uint32
}

// sizeRatio returns sqrt(3) R / h for the triangle (u, v, w), where R is the
// physical circumradius and h the feature size at the centroid. An
// equilateral triangle with sides h scores 1.
func (tr *Triangulator) sizeRatio(u, v, w int, fs FeatureSize) (ratio, R float64) {
	d1 := tr.X[v].Sub(tr.X[u])
	d2 := tr.X[w].Sub(tr.X[u])
	n1 := d2.Sub(d1.Mul(d1.Dot(d2) / d1.Dot(d1)))
	alpha := 0.5 * d2.Dot(d2.Sub(d1)) / d2.Dot(n1)
	R = d1.Mul(0.5).Add(n1.Mul(alpha)).Norm()
	c := tr.X[u].Add(tr.X[v]).Add(tr.X[w]).Mul(1.0 / 3.0)
	return sqrt3 * R / fs.Size(c), R
}

func (tr *Triangulator) classify(slot int, fs FeatureSize, factor float64) {
	t := &tr.tris[slot]
	t.quality, t.R = tr.sizeRatio(t.u, t.v, t.w, fs)
	if t.quality < factor {
		t.status = accepted
	} else {
		t.status = waiting
	}
}

// Frontal refines the triangulation by advancing a front of accepted
// triangles. Each active triangle on the front places a new point off its
// front edge at the distance that would make an equilateral triangle of the
// local feature size. Triangles whose size ratio falls below the quality
// factor are accepted.
func (tr *Triangulator) Frontal(fs FeatureSize) FrontalStats {
	factor := math.Min(2, math.Max(1.01, tr.opts.FrontalQualityFactor))
	printIter := tr.opts.PrintIter
	if printIter < 1 {
		printIter = 1000
	}
	var (
		stats FrontalStats
		front fifo[handle]
	)
	activate := func(slot int) {
		tr.tris[slot].status = active
		front.push(handle{slot: slot, gen: tr.tris[slot].gen})
	}

	for i := range tr.tris {
		if !tr.tris[i].live {
			continue
		}
		tr.classify(i, fs, factor)
		if tr.tris[i].status == waiting && tr.touchesPSLG(&tr.tris[i]) {
			activate(i)
		}
	}
	for i := range tr.tris {
		t := &tr.tris[i]
		if !t.live || t.status != accepted {
			continue
		}
		for _, e := range t.edges() {
			if s := tr.completeMe(e.v, e.u); s >= 0 && tr.tris[s].status == waiting {
				activate(i)
				break
			}
		}
	}

	for {
		if tr.opts.PrintLevel > 0 && stats.Iterations%printIter == 0 {
			tr.log.WithFields(logrus.Fields{
				"iteration": stats.Iterations,
				"triangles": tr.numTris,
				"active":    front.len(),
			}).Info("frontal")
		}
		stats.Iterations++

		slot := -1
		for front.len() > 0 && slot < 0 {
			h := front.pop()
			if t := &tr.tris[h.slot]; t.live && t.gen == h.gen && t.status == active {
				slot = h.slot
			}
		}
		if slot < 0 {
			break
		}
		tri := tr.tris[slot]
		pairs := tri.edges()

		u, v := tr.frontEdge(&tri)
		pt, ptTri, h := tr.placePoint(slot, u, v, fs, &stats)

		// Reject points too close to an existing vertex
		if w := tr.loc.closest(pt); w >= 0 && ptTri >= 0 {
			d := tr.surf.EvalPoint(pt.X, pt.Y).Sub(tr.X[w])
			if d.Norm2() < 0.25*h*h {
				ptTri = -1
			}
		}

		if ptTri < 0 {
			stats.Rejected++
			t := &tr.tris[slot]
			if t.status == waiting || t.status == active {
				t.status = accepted
				for _, e := range pairs {
					if s := tr.completeMe(e.v, e.u); s >= 0 && tr.tris[s].status == waiting {
						activate(s)
					}
				}
			}
			continue
		}

		tr.tracking, tr.created = true, tr.created[:0]
		tr.insertInto(pt, ptTri, true)
		tr.tracking = false
		stats.Inserted++

		for _, s := range tr.created {
			if tr.tris[s].live {
				tr.classify(s, fs, factor)
			}
		}
		// The triangle now on the front edge is accepted so the same point is
		// not placed again
		if s := tr.completeMe(u, v); s >= 0 {
			tr.tris[s].status = accepted
		}
		for _, s := range tr.created {
			t := &tr.tris[s]
			if !t.live || t.status == accepted {
				continue
			}
			if tr.touchesPSLG(t) {
				activate(s)
				continue
			}
			for _, e := range t.edges() {
				if nb := tr.completeMe(e.v, e.u); nb >= 0 && tr.tris[nb].status == accepted {
					activate(s)
					break
				}
			}
		}
	}

	if tr.opts.MeshType == "quad" {
		tr.splitIsolatedBoundaryTriangles()
	}

	fields := logrus.Fields{
		"iterations": stats.Iterations,
		"triangles":  tr.numTris,
		"inserted":   stats.Inserted,
		"rejected":   stats.Rejected,
	}
	if tr.opts.PrintLevel > 1 {
		fields["newton_failures"] = stats.NewtonFailures
	}
	if tr.opts.PrintLevel > 0 {
		tr.log.WithFields(fields).Info("frontal done")
	} else {
		tr.log.WithFields(fields).Debug("frontal done")
	}
	if stats.NewtonFailures > 0 {
		tr.log.WithField("newton_failures", stats.NewtonFailures).
			Warn("frontal point placement fell back to the linear estimate")
	}
	return stats
}

// frontEdge picks the edge of t to advance from: a segment if t has one,
// otherwise an edge shared with an accepted triangle, otherwise the last
// edge
func (tr *Triangulator) frontEdge(t *triangle) (u, v int) {
	pairs := t.edges()
	for _, e := range pairs {
		if tr.inPSLG(e.u, e.v) {
			return e.u, e.v
		}
	}
	for _, e := range pairs {
		if s := tr.completeMe(e.v, e.u); s >= 0 && tr.tris[s].status == accepted {
			return e.u, e.v
		}
	}
	return pairs[2].u, pairs[2].v
}

// placePoint computes the candidate point off the edge (u, v) of the active
// triangle slot. It returns the point, the triangle that encloses it (-1
// when outside the mesh or inside an accepted triangle after two trials) and
// the feature size at the edge midpoint.
func (tr *Triangulator) placePoint(slot, u, v int, fs FeatureSize, stats *FrontalStats) (r2.Point, int, float64) {
	m := tr.pts[u].Add(tr.pts[v]).Mul(0.5)
	Xm, Xu, Xv := tr.surf.EvalDeriv(m.X, m.Y)

	// Inverse metric applied to the parametric normal of (u, v)
	g11, g12, g22 := Xu.Dot(Xu), Xu.Dot(Xv), Xv.Dot(Xv)
	invdet := 1 / (g11*g22 - g12*g12)
	G11, G12, G22 := invdet*g22, -invdet*g12, invdet*g11
	d := tr.pts[v].Sub(tr.pts[u])
	e := r2.Point{X: G12*d.X - G11*d.Y, Y: G22*d.X - G12*d.Y}
	dir := Xu.Mul(e.X).Add(Xv.Mul(e.Y))

	h := fs.Size(Xm)
	htrial := h
	t := tr.tris[slot]
	var pt r2.Point
	ptTri := -1
	for trial := 0; trial < 2; trial++ {
		de := 0.5 * sqrt3 * htrial
		guess := m.Add(e.Mul(de / dir.Norm()))
		var ok bool
		if pt, ok = tr.equidistantPoint(guess, u, v, de); !ok {
			stats.NewtonFailures++
			pt = guess
		}

		ptTri = slot
		if !tr.enclosed(pt, t.u, t.v, t.w) {
			ptTri = tr.findEnclosing(pt)
		}
		if ptTri < 0 || tr.tris[ptTri].status != accepted {
			break
		}
		ptTri = -1
		htrial *= 0.5
	}
	return pt, ptTri, h
}

// equidistantPoint solves |X(p) - X[u]| = |X(p) - X[v]| = de on the surface
// by Newton's method from guess, keeping p in the parameter range
func (tr *Triangulator) equidistantPoint(guess r2.Point, u, v int, de float64) (r2.Point, bool) {
	const (
		rtol     = 1e-5
		maxIters = 10
	)
	umin, vmin, umax, vmax := tr.surf.GetRange()
	pt := guess
	A := mat.NewDense(2, 2, nil)
	for k := 0; k < maxIters; k++ {
		X, Xu, Xv := tr.surf.EvalDeriv(pt.X, pt.Y)
		du, dv := X.Sub(tr.X[u]), X.Sub(tr.X[v])
		r := []float64{de*de - du.Norm2(), de*de - dv.Norm2()}
		if math.Abs(r[0]) < rtol*de*de && math.Abs(r[1]) < rtol*de*de {
			return pt, true
		}
		A.Set(0, 0, 2*Xu.Dot(du))
		A.Set(0, 1, 2*Xv.Dot(du))
		A.Set(1, 0, 2*Xu.Dot(dv))
		A.Set(1, 1, 2*Xv.Dot(dv))
		step, err := element.Solve(A, r)
		if err != nil {
			return pt, false
		}
		pt.X = math.Min(umax, math.Max(umin, pt.X+step[0]))
		pt.Y = math.Min(vmax, math.Max(vmin, pt.Y+step[1]))
	}
	return pt, false
}

// splitIsolatedBoundaryTriangles inserts an edge midpoint into accepted
// triangles made only of input boundary points that share a single edge
// with the rest of the mesh. Such triangles cannot be paired when the mesh
// is recombined into quadrilaterals.
func (tr *Triangulator) splitIsolatedBoundaryTriangles() {
	onBoundary := func(n int) bool {
		return n >= fixedPoints && n-fixedPoints < tr.initBoundary
	}
	for i := range tr.tris {
		t := tr.tris[i]
		if !t.live || t.status != accepted || !onBoundary(t.u) || !onBoundary(t.v) || !onBoundary(t.w) {
			continue
		}
		t1 := tr.completeMe(t.v, t.u)
		t2 := tr.completeMe(t.w, t.v)
		t3 := tr.completeMe(t.u, t.w)
		var a, b int
		switch {
		case t1 < 0 && t2 < 0:
			a, b = t.u, t.w
		case t2 < 0 && t3 < 0:
			a, b = t.u, t.v
		case t1 < 0 && t3 < 0:
			a, b = t.v, t.w
		default:
			continue
		}
		mid := tr.X[a].Add(tr.X[b]).Mul(0.5)
		pu, pv, err := tr.surf.InvEvalPoint(mid)
		if err != nil {
			tr.log.WithError(err).Warn("boundary triangle split: midpoint not on the surface")
			continue
		}
		tr.addPointToMesh(r2.Point{X: pu, Y: pv}, true)
	}
}
