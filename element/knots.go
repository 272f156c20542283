package element

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// UniformKnots returns n equally spaced knots on [0,1]
func UniformKnots(n int) []float64 {
	knots := make([]float64, n)
	for i := range knots {
		knots[i] = float64(i) / float64(n-1)
	}
	knots[n-1] = 1.0
	return knots
}

// GaussLobattoKnots returns the n Legendre-Gauss-Lobatto points mapped to
// [0,1]. The interior points are the zeros of P'_{n-1}, i.e. the Gauss
// points of the Jacobi weight (1,1), found as the eigenvalues of its
// symmetric tridiagonal recurrence matrix.
func GaussLobattoKnots(n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 Gauss-Lobatto points, got %d", n)
	}
	knots := make([]float64, n)
	knots[n-1] = 1.0

	if m := n - 2; m > 0 {
		// alpha = beta = 1: the diagonal vanishes and
		// b_k = sqrt(k(k+2) / ((2k+1)(2k+3)))
		J := mat.NewSymDense(m, nil)
		for k := 1; k < m; k++ {
			kf := float64(k)
			b := math.Sqrt(kf * (kf + 2) / ((2*kf + 1) * (2*kf + 3)))
			J.SetSym(k-1, k, b)
		}
		var eig mat.EigenSym
		if ok := eig.Factorize(J, false); !ok {
			return nil, fmt.Errorf("eigenvalue decomposition failed for n=%d", n)
		}
		x := eig.Values(nil)
		for i, xi := range x {
			knots[i+1] = 0.5 * (1 + xi)
		}
	}

	// Enforce the symmetry about 1/2 exactly
	for i := 0; i < n/2; i++ {
		lo := 0.5 * (knots[i] + 1 - knots[n-1-i])
		knots[i], knots[n-1-i] = lo, 1-lo
	}
	if n%2 == 1 {
		knots[n/2] = 0.5
	}
	return knots, nil
}
