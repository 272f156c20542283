package element

import (
	"fmt"
)

// HexElement is the reference hexahedron. Node (i, j, k) has slot
// i + j*order + k*order^2.
type HexElement struct {
	props    ElementProperties
	knotType KnotType
	knots    []float64
	geom     ReferenceGeometry
}

// NewHexElement builds the reference hex with order knots per direction
func NewHexElement(order int, knotType KnotType) (*HexElement, error) {
	knots, err := newKnots(order, knotType)
	if err != nil {
		return nil, err
	}
	el := &HexElement{
		knotType: knotType,
		knots:    knots,
		props: ElementProperties{
			Name:       fmt.Sprintf("Lagrange Hexahedron Order %d (%s)", order, knotType),
			ShortName:  fmt.Sprintf("Hex%d", order),
			Type:       Hexahedron,
			Order:      order,
			Np:         order * order * order,
			NEp:        order,
			NVp:        8,
			NIp:        (order - 2) * (order - 2) * (order - 2),
			NEdges:     12,
			NFaces:     6,
			Dimensions: D3,
		},
	}
	el.buildGeometry()
	return el, nil
}

func (el *HexElement) buildGeometry() {
	n := el.props.Order
	g := &el.geom
	np := el.props.Np
	g.R, g.S, g.T = make([]float64, np), make([]float64, np), make([]float64, np)
	inside := func(i int) bool { return i > 0 && i < n-1 }
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				s := el.Node(i, j, k)
				g.R[s], g.S[s], g.T[s] = el.knots[i], el.knots[j], el.knots[k]
				if inside(i) && inside(j) && inside(k) {
					g.InteriorPoints = append(g.InteriorPoints, s)
				}
			}
		}
	}
	for c := 0; c < 8; c++ {
		g.VertexPoints = append(g.VertexPoints, el.CornerSlot(c))
	}
	g.EdgePoints = make([][]int, 12)
	for e := range g.EdgePoints {
		g.EdgePoints[e] = el.EdgeSlots(e)
	}
	g.FacePoints = make([][]int, 6)
	for f := range g.FacePoints {
		g.FacePoints[f] = el.FaceSlots(f)
	}
}

func (el *HexElement) Node(i, j, k int) int {
	n := el.props.Order
	return i + n*(j+n*k)
}

// CornerSlot is the node index of a corner in tensor order
func (el *HexElement) CornerSlot(corner int) int {
	n := el.props.Order - 1
	return el.Node((corner&1)*n, ((corner>>1)&1)*n, ((corner>>2)&1)*n)
}

// EdgeSlots lists the nodes on a local edge in increasing running
// coordinate. Edges 0-3 run along r, 4-7 along s and 8-11 along t; the two
// low bits place the edge on the remaining axes in increasing axis order.
func (el *HexElement) EdgeSlots(edge int) []int {
	n := el.props.Order
	axis := edge >> 2
	b0, b1 := otherAxes(axis)
	var ijk [3]int
	ijk[b0] = (edge & 1) * (n - 1)
	ijk[b1] = ((edge >> 1) & 1) * (n - 1)
	slots := make([]int, n)
	for m := 0; m < n; m++ {
		ijk[axis] = m
		slots[m] = el.Node(ijk[0], ijk[1], ijk[2])
	}
	return slots
}

// FaceSlots lists the nodes on a local face, the lower tangential axis
// running fastest
func (el *HexElement) FaceSlots(face int) []int {
	n := el.props.Order
	axis := face >> 1
	t0, t1 := otherAxes(axis)
	var ijk [3]int
	ijk[axis] = (face & 1) * (n - 1)
	slots := make([]int, 0, n*n)
	for v := 0; v < n; v++ {
		for u := 0; u < n; u++ {
			ijk[t0], ijk[t1] = u, v
			slots = append(slots, el.Node(ijk[0], ijk[1], ijk[2]))
		}
	}
	return slots
}

// otherAxes returns the two axes other than axis in increasing order
func otherAxes(axis int) (int, int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}

func (el *HexElement) GetProperties() ElementProperties        { return el.props }
func (el *HexElement) GetReferenceGeometry() ReferenceGeometry { return el.geom }
func (el *HexElement) KnotType() KnotType                      { return el.knotType }

func (el *HexElement) Name() string                  { return el.props.Name }
func (el *HexElement) ShortName() string             { return el.props.ShortName }
func (el *HexElement) GeometryType() ElementGeometry { return el.props.Type }
func (el *HexElement) Order() int                    { return el.props.Order }
func (el *HexElement) Np() int                       { return el.props.Np }
func (el *HexElement) Dimensions() Dimensionality    { return el.props.Dimensions }
func (el *HexElement) Knots() []float64              { return el.knots }
func (el *HexElement) VertexPoints() []int           { return el.geom.VertexPoints }
func (el *HexElement) EdgePoints() [][]int           { return el.geom.EdgePoints }
func (el *HexElement) FacePoints() [][]int           { return el.geom.FacePoints }
func (el *HexElement) InteriorPoints() []int         { return el.geom.InteriorPoints }

// Weights returns the tensor product interpolation weights of every node at
// the reference point (r, s, t)
func (el *HexElement) Weights(r, s, t float64) []float64 {
	wr := LagrangeWeights(el.knots, r)
	ws := LagrangeWeights(el.knots, s)
	wt := LagrangeWeights(el.knots, t)
	w := make([]float64, el.props.Np)
	for k, c := range wt {
		for j, b := range ws {
			for i, a := range wr {
				w[el.Node(i, j, k)] = a * b * c
			}
		}
	}
	return w
}
