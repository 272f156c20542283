package triangulate

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/QuadForest/topology"
)

// orient2d is positive when c lies to the left of the directed line a->b,
// negative to the right and zero when the three points are collinear
func orient2d(a, b, c r2.Point) float64 {
	acx, acy := a.X-c.X, a.Y-c.Y
	bcx, bcy := b.X-c.X, b.Y-c.Y
	return acx*bcy - acy*bcx
}

// incircle is positive when d lies inside the circle through the
// counter-clockwise points a, b, c, negative outside and zero on it
func incircle(a, b, c, d r2.Point) float64 {
	adx, ady := a.X-d.X, a.Y-d.Y
	bdx, bdy := b.X-d.X, b.Y-d.Y
	cdx, cdy := c.X-d.X, c.Y-d.Y

	alift := adx*adx + ady*ady
	blift := bdx*bdx + bdy*bdy
	clift := cdx*cdx + cdy*cdy

	return alift*(bdx*cdy-cdx*bdy) +
		blift*(cdx*ady-adx*cdy) +
		clift*(adx*bdy-bdx*ady)
}

// metric holds the Cholesky factor of the surface first fundamental form,
// G = L L^T, so that distances measured with G become Euclidean after
// mapping p -> L^T p
type metric struct {
	l11, l21, l22 float64
}

var identityMetric = metric{l11: 1, l22: 1}

// surfaceMetric factors the first fundamental form of surf at (u, v). A
// degenerate surface point yields the identity.
func surfaceMetric(surf topology.Surface, u, v float64) metric {
	_, Xu, Xv := surf.EvalDeriv(u, v)
	g := mat.NewSymDense(2, []float64{
		Xu.Dot(Xu), Xu.Dot(Xv),
		Xu.Dot(Xv), Xv.Dot(Xv),
	})
	var chol mat.Cholesky
	if ok := chol.Factorize(g); !ok {
		return identityMetric
	}
	var L mat.TriDense
	chol.LTo(&L)
	return metric{l11: L.At(0, 0), l21: L.At(1, 0), l22: L.At(1, 1)}
}

func (m metric) apply(p r2.Point) r2.Point {
	return r2.Point{X: m.l11*p.X + m.l21*p.Y, Y: m.l22 * p.Y}
}

// inCircle runs the circumcircle test for x against the triangle (u, v, w).
// With useMetric set the points are first mapped into the local Euclidean
// frame of the surface at x.
func (tr *Triangulator) inCircle(u, v, w, x int, useMetric bool) float64 {
	pu, pv, pw, px := tr.pts[u], tr.pts[v], tr.pts[w], tr.pts[x]
	if useMetric && tr.surf != nil {
		m := surfaceMetric(tr.surf, px.X, px.Y)
		pu, pv, pw, px = m.apply(pu), m.apply(pv), m.apply(pw), m.apply(px)
	}
	return incircle(pu, pv, pw, px)
}

// enclosed reports whether p lies inside or on the triangle (u, v, w)
func (tr *Triangulator) enclosed(p r2.Point, u, v, w int) bool {
	return orient2d(tr.pts[u], tr.pts[v], p) >= 0 &&
		orient2d(tr.pts[v], tr.pts[w], p) >= 0 &&
		orient2d(tr.pts[w], tr.pts[u], p) >= 0
}
