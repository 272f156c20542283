package topology

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Surface evaluates the parametric geometry of one block
type Surface interface {
	EvalPoint(u, v float64) r3.Vector
	// EvalDeriv returns the point and its derivatives along u and v
	EvalDeriv(u, v float64) (X, Xu, Xv r3.Vector)
	GetRange() (umin, vmin, umax, vmax float64)
	InvEvalPoint(p r3.Vector) (u, v float64, err error)
	Attribute() string
}

// Curve evaluates the geometry of a block edge
type Curve interface {
	EvalPoint(t float64) r3.Vector
	GetRange() (tmin, tmax float64)
	Attribute() string
}

// Vertex is a block corner in physical space
type Vertex interface {
	EvalPoint() r3.Vector
	Attribute() string
}

// Plane maps (u, v) to (u, v, 0) over a rectangular parameter range
type Plane struct {
	Umin, Vmin, Umax, Vmax float64
	Attr                   string
}

// NewUnitPlane returns the identity surface on [0,1]x[0,1]
func NewUnitPlane() *Plane {
	return &Plane{Umax: 1, Vmax: 1}
}

func (p *Plane) EvalPoint(u, v float64) r3.Vector { return r3.Vector{X: u, Y: v} }

func (p *Plane) EvalDeriv(u, v float64) (X, Xu, Xv r3.Vector) {
	return r3.Vector{X: u, Y: v}, r3.Vector{X: 1}, r3.Vector{Y: 1}
}

func (p *Plane) GetRange() (umin, vmin, umax, vmax float64) {
	return p.Umin, p.Vmin, p.Umax, p.Vmax
}

func (p *Plane) InvEvalPoint(x r3.Vector) (u, v float64, err error) {
	return x.X, x.Y, nil
}

func (p *Plane) Attribute() string { return p.Attr }

// BilinearSurface interpolates four corner points given in tensor order
// over the unit parameter square
type BilinearSurface struct {
	P    [4]r3.Vector
	Attr string
}

func (s *BilinearSurface) EvalPoint(u, v float64) r3.Vector {
	return s.P[0].Mul((1 - u) * (1 - v)).
		Add(s.P[1].Mul(u * (1 - v))).
		Add(s.P[2].Mul((1 - u) * v)).
		Add(s.P[3].Mul(u * v))
}

func (s *BilinearSurface) EvalDeriv(u, v float64) (X, Xu, Xv r3.Vector) {
	X = s.EvalPoint(u, v)
	Xu = s.P[1].Sub(s.P[0]).Mul(1 - v).Add(s.P[3].Sub(s.P[2]).Mul(v))
	Xv = s.P[2].Sub(s.P[0]).Mul(1 - u).Add(s.P[3].Sub(s.P[1]).Mul(u))
	return
}

func (s *BilinearSurface) GetRange() (umin, vmin, umax, vmax float64) {
	return 0, 0, 1, 1
}

// InvEvalPoint projects p onto the surface with Gauss-Newton steps on the
// normal equations
func (s *BilinearSurface) InvEvalPoint(p r3.Vector) (u, v float64, err error) {
	const (
		maxIters = 20
		tol      = 1e-12
	)
	u, v = 0.5, 0.5
	var (
		A   = mat.NewDense(2, 2, nil)
		rhs = mat.NewVecDense(2, nil)
		d   mat.VecDense
	)
	for k := 0; k < maxIters; k++ {
		X, Xu, Xv := s.EvalDeriv(u, v)
		r := p.Sub(X)
		A.Set(0, 0, Xu.Dot(Xu))
		A.Set(0, 1, Xu.Dot(Xv))
		A.Set(1, 0, Xu.Dot(Xv))
		A.Set(1, 1, Xv.Dot(Xv))
		rhs.SetVec(0, Xu.Dot(r))
		rhs.SetVec(1, Xv.Dot(r))
		if err = d.SolveVec(A, rhs); err != nil {
			return u, v, fmt.Errorf("bilinear inversion at (%g, %g): %w", u, v, err)
		}
		u += d.AtVec(0)
		v += d.AtVec(1)
		if math.Abs(d.AtVec(0))+math.Abs(d.AtVec(1)) < tol {
			return u, v, nil
		}
	}
	return u, v, nil
}

func (s *BilinearSurface) Attribute() string { return s.Attr }

// LineCurve is the straight segment from A to B, t in [0,1]
type LineCurve struct {
	A, B r3.Vector
	Attr string
}

func (l *LineCurve) EvalPoint(t float64) r3.Vector {
	return l.A.Add(l.B.Sub(l.A).Mul(t))
}

func (l *LineCurve) GetRange() (tmin, tmax float64) { return 0, 1 }

func (l *LineCurve) Attribute() string { return l.Attr }

// PointVertex is a fixed point
type PointVertex struct {
	P    r3.Vector
	Attr string
}

func (pv *PointVertex) EvalPoint() r3.Vector { return pv.P }

func (pv *PointVertex) Attribute() string { return pv.Attr }
