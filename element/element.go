package element

import (
	"fmt"
)

type ElementGeometry uint8

const (
	Rectangle ElementGeometry = iota
	Hexahedron
)

func (g ElementGeometry) String() string {
	switch g {
	case Rectangle:
		return "rectangle"
	case Hexahedron:
		return "hexahedron"
	}
	return "unknown"
}

// KnotType selects the 1D node placement of a tensor product element
type KnotType uint8

const (
	Uniform      KnotType = iota // Equally spaced
	GaussLobatto                 // Legendre-Gauss-Lobatto points
)

func (k KnotType) String() string {
	switch k {
	case Uniform:
		return "uniform"
	case GaussLobatto:
		return "gauss-lobatto"
	}
	return "unknown"
}

// Element is a tensor product Lagrange element whose nodes sit on a set of
// 1D knots in [0,1] along every axis
type Element interface {
	Name() string
	ShortName() string
	GeometryType() ElementGeometry
	Dimensions() Dimensionality
	Order() int // Number of knots along each direction
	Np() int    // Number of nodes per element
	KnotType() KnotType
	Knots() []float64

	// Node is the index of knot i along the first axis, j along the second
	// and k along the third. Elements of lower dimension ignore the extra
	// indices.
	Node(i, j, k int) int

	// Point classification by geometric location
	VertexPoints() []int   // Indices into the Np points that are at vertices
	EdgePoints() [][]int   // [edge_num][point_indices] - points on each edge
	InteriorPoints() []int // Points strictly inside the element
}

// NewElement builds the reference element of the given shape
func NewElement(geom ElementGeometry, order int, knotType KnotType) (Element, error) {
	switch geom {
	case Rectangle:
		return NewQuadElement(order, knotType)
	case Hexahedron:
		return NewHexElement(order, knotType)
	}
	return nil, fmt.Errorf("unsupported element geometry %s", geom)
}

// newKnots checks the order and places its knots
func newKnots(order int, knotType KnotType) ([]float64, error) {
	if order < 2 || order > MaxOrder {
		return nil, fmt.Errorf("invalid element order %d, must be in [2,%d]", order, MaxOrder)
	}
	switch knotType {
	case Uniform:
		return UniformKnots(order), nil
	case GaussLobatto:
		knots, err := GaussLobattoKnots(order)
		if err != nil {
			return nil, fmt.Errorf("order %d knots: %w", order, err)
		}
		return knots, nil
	}
	return nil, fmt.Errorf("unknown knot type %d", knotType)
}
