package element

import (
	"fmt"
)

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D0 Dimensionality = iota // 0D elements (points)
	D1                       // 1D elements (lines, edges)
	D2                       // 2D elements (quadrilaterals)
	D3                       // 3D elements (hexahedra)
)

// MaxOrder bounds the number of knots per direction
const MaxOrder = 8

// ElementProperties contains metadata describing an element type
type ElementProperties struct {
	Name       string          // Full descriptive name (e.g., "Lagrange Quadrilateral Order 3 (uniform)")
	ShortName  string          // Abbreviated name (e.g., "Quad3")
	Type       ElementGeometry // Element shape
	Order      int             // Knots per direction
	Np         int             // Total number of nodes in element
	NEp        int             // Number of nodes per edge
	NVp        int             // Number of vertex nodes
	NIp        int             // Number of strictly interior nodes
	NEdges     int             // Number of edges
	NFaces     int             // Number of faces, zero in 2D
	Dimensions Dimensionality  // Spatial dimension
}

// ReferenceGeometry defines the layout of nodes in reference space [0,1]^d
type ReferenceGeometry struct {
	R, S, T []float64 // Length Np each, T only in 3D

	// Node classification by topological entity
	VertexPoints   []int   // In tensor corner order, bit 0 along r, bit 1 along s, bit 2 along t
	EdgePoints     [][]int // In increasing running coordinate
	FacePoints     [][]int // 3D only, faces 0/1 r=0/1, 2/3 s=0/1, 4/5 t=0/1
	InteriorPoints []int
}

// QuadElement is the reference quadrilateral. Node (i, j) has slot
// i + j*order, i running along u.
type QuadElement struct {
	props    ElementProperties
	knotType KnotType
	knots    []float64
	geom     ReferenceGeometry
}

// NewQuadElement builds the reference quad with order knots per direction
func NewQuadElement(order int, knotType KnotType) (*QuadElement, error) {
	knots, err := newKnots(order, knotType)
	if err != nil {
		return nil, err
	}

	el := &QuadElement{
		knotType: knotType,
		knots:    knots,
		props: ElementProperties{
			Name:       fmt.Sprintf("Lagrange Quadrilateral Order %d (%s)", order, knotType),
			ShortName:  fmt.Sprintf("Quad%d", order),
			Type:       Rectangle,
			Order:      order,
			Np:         order * order,
			NEp:        order,
			NVp:        4,
			NIp:        (order - 2) * (order - 2),
			NEdges:     4,
			Dimensions: D2,
		},
	}
	el.buildGeometry()
	return el, nil
}

func (el *QuadElement) buildGeometry() {
	n := el.props.Order
	g := &el.geom
	g.R = make([]float64, n*n)
	g.S = make([]float64, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			g.R[el.Slot(i, j)] = el.knots[i]
			g.S[el.Slot(i, j)] = el.knots[j]
			if i > 0 && i < n-1 && j > 0 && j < n-1 {
				g.InteriorPoints = append(g.InteriorPoints, el.Slot(i, j))
			}
		}
	}
	for c := 0; c < 4; c++ {
		g.VertexPoints = append(g.VertexPoints, el.CornerSlot(c))
	}
	g.EdgePoints = make([][]int, 4)
	for e := 0; e < 4; e++ {
		g.EdgePoints[e] = el.EdgeSlots(e)
	}
}

// Slot is the node index of knot i along u and knot j along v
func (el *QuadElement) Slot(i, j int) int { return i + j*el.props.Order }

func (el *QuadElement) Node(i, j, _ int) int { return el.Slot(i, j) }

// CornerSlot is the node index of a corner in tensor order
func (el *QuadElement) CornerSlot(corner int) int {
	n := el.props.Order - 1
	return el.Slot((corner%2)*n, (corner/2)*n)
}

// EdgeSlots lists the nodes on a local edge in increasing running
// coordinate
func (el *QuadElement) EdgeSlots(edge int) []int {
	n := el.props.Order
	slots := make([]int, n)
	for k := 0; k < n; k++ {
		if edge < 2 {
			slots[k] = el.Slot((edge%2)*(n-1), k)
		} else {
			slots[k] = el.Slot(k, (edge%2)*(n-1))
		}
	}
	return slots
}

func (el *QuadElement) GetProperties() ElementProperties        { return el.props }
func (el *QuadElement) GetReferenceGeometry() ReferenceGeometry { return el.geom }
func (el *QuadElement) KnotType() KnotType                      { return el.knotType }

func (el *QuadElement) Name() string                  { return el.props.Name }
func (el *QuadElement) ShortName() string             { return el.props.ShortName }
func (el *QuadElement) GeometryType() ElementGeometry { return el.props.Type }
func (el *QuadElement) Order() int                    { return el.props.Order }
func (el *QuadElement) Np() int                       { return el.props.Np }
func (el *QuadElement) NEp() int                      { return el.props.NEp }
func (el *QuadElement) NVp() int                      { return el.props.NVp }
func (el *QuadElement) NIp() int                      { return el.props.NIp }
func (el *QuadElement) Dimensions() Dimensionality    { return el.props.Dimensions }
func (el *QuadElement) Knots() []float64              { return el.knots }
func (el *QuadElement) R() []float64                  { return el.geom.R }
func (el *QuadElement) S() []float64                  { return el.geom.S }
func (el *QuadElement) VertexPoints() []int           { return el.geom.VertexPoints }
func (el *QuadElement) EdgePoints() [][]int           { return el.geom.EdgePoints }
func (el *QuadElement) InteriorPoints() []int         { return el.geom.InteriorPoints }

// Weights returns the tensor product interpolation weights of every node at
// the reference point (u, v)
func (el *QuadElement) Weights(u, v float64) []float64 {
	nu := LagrangeWeights(el.knots, u)
	nv := LagrangeWeights(el.knots, v)
	w := make([]float64, el.props.Np)
	for j, b := range nv {
		for i, a := range nu {
			w[el.Slot(i, j)] = a * b
		}
	}
	return w
}
