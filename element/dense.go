package element

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solve returns x with A x = b for a small square system
func Solve(A mat.Matrix, b []float64) ([]float64, error) {
	r, c := A.Dims()
	if r != c {
		return nil, fmt.Errorf("solve needs a square matrix, got %dx%d", r, c)
	}
	if len(b) != r {
		return nil, fmt.Errorf("rhs length %d does not match %d rows", len(b), r)
	}
	var lu mat.LU
	lu.Factorize(A)
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(r, append([]float64(nil), b...))); err != nil {
		return nil, fmt.Errorf("lu solve: %w", err)
	}
	return x.RawVector().Data, nil
}

// LeastSquares returns x minimising |A x - b| for A with at least as many
// rows as columns and full column rank
func LeastSquares(A mat.Matrix, b []float64) ([]float64, error) {
	r, c := A.Dims()
	if r < c {
		return nil, fmt.Errorf("least squares needs rows >= columns, got %dx%d", r, c)
	}
	if len(b) != r {
		return nil, fmt.Errorf("rhs length %d does not match %d rows", len(b), r)
	}
	var qr mat.QR
	qr.Factorize(A)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, mat.NewVecDense(r, append([]float64(nil), b...))); err != nil {
		return nil, fmt.Errorf("qr solve: %w", err)
	}
	return x.RawVector().Data, nil
}
