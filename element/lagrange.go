package element

// LagrangeWeights evaluates the 1D Lagrange basis through knots at t. When
// t coincides with a knot the weights are exactly one and zero.
func LagrangeWeights(knots []float64, t float64) []float64 {
	w := make([]float64, len(knots))
	for i, ki := range knots {
		w[i] = 1.0
		for j, kj := range knots {
			if j != i {
				w[i] *= (t - kj) / (ki - kj)
			}
		}
	}
	return w
}

// InterpWeights returns the weights of order uniform knots at the integer
// offset u in [0, h]. Orders 2 to 4 use closed forms.
func InterpWeights(order int, u, h int32) []float64 {
	w := make([]float64, order)
	switch {
	case u == 0:
		w[0] = 1.0
		return w
	case u == h:
		w[order-1] = 1.0
		return w
	}
	ud := float64(u) / float64(h)
	switch order {
	case 2:
		w[0] = 1.0 - ud
		w[1] = ud
	case 3:
		w[0] = 2.0 * (0.5 - ud) * (1.0 - ud)
		w[1] = 4.0 * ud * (1.0 - ud)
		w[2] = 2.0 * ud * (ud - 0.5)
	case 4:
		w[0] = 0.5 * (1.0 - 3.0*ud) * (2.0 - 3.0*ud) * (1.0 - ud)
		w[1] = 4.5 * ud * (2.0 - 3.0*ud) * (1.0 - ud)
		w[2] = 4.5 * ud * (3.0*ud - 1.0) * (1.0 - ud)
		w[3] = 0.5 * ud * (3.0*ud - 1.0) * (3.0*ud - 2.0)
	default:
		return LagrangeWeights(UniformKnots(order), ud)
	}
	return w
}
