package topology

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"github.com/notargets/gocfd/utils"
)

// HexMesh is a 3D block mesh: the connectivity plus the physical corner
// points, eight per block in tensor order
type HexMesh struct {
	*HexConnectivity
	Points  []r3.Vector
	Corners [][8]int
}

// NewHexMesh builds the connectivity of hexes given as eight point indices
// in tensor order
func NewHexMesh(points []r3.Vector, hexes [][8]int) (*HexMesh, error) {
	blockConn := make([]int, 0, 8*len(hexes))
	for _, h := range hexes {
		blockConn = append(blockConn, h[:]...)
	}
	conn, err := NewHexConnectivity(len(points), len(hexes), blockConn)
	if err != nil {
		return nil, fmt.Errorf("hex mesh connectivity: %w", err)
	}
	return &HexMesh{HexConnectivity: conn, Points: points, Corners: hexes}, nil
}

// Position returns the physical location of the point (x, y, z) of block,
// given in units where the block spans [0, span]^3, by trilinear blending
// of the block corners
func (m *HexMesh) Position(block int, x, y, z, span float64) r3.Vector {
	u := [3]float64{x / span, y / span, z / span}
	var p r3.Vector
	for c := 0; c < 8; c++ {
		w := 1.0
		for axis := 0; axis < 3; axis++ {
			if c>>axis&1 == 1 {
				w *= u[axis]
			} else {
				w *= 1 - u[axis]
			}
		}
		p = p.Add(m.Points[m.Corners[block][c]].Mul(w))
	}
	return p
}

// ReadHexMeshFile loads the linear hexahedra of a mesh file understood by
// the gocfd readers as blocks. Unused vertices are dropped; corners are
// reordered from the bottom-then-top counter-clockwise convention to
// tensor order.
func ReadHexMeshFile(path string) (*HexMesh, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	_, elements, types := msh.FilterByDimension(3)

	var (
		points []r3.Vector
		hexes  [][8]int
		remap  = make(map[int]int)
	)
	for k, etype := range types {
		if etype != utils.Hex {
			continue
		}
		ev := elements[k]
		if len(ev) < 8 {
			return nil, fmt.Errorf("hex element %d has %d vertices", k, len(ev))
		}
		var h [8]int
		for i, v := range [8]int{ev[0], ev[1], ev[3], ev[2], ev[4], ev[5], ev[7], ev[6]} {
			idx, ok := remap[v]
			if !ok {
				idx = len(points)
				remap[v] = idx
				x := msh.Vertices[v]
				points = append(points, r3.Vector{X: x[0], Y: x[1], Z: x[2]})
			}
			h[i] = idx
		}
		hexes = append(hexes, h)
	}
	if len(hexes) == 0 {
		return nil, fmt.Errorf("mesh file %s does not have any hexes", path)
	}
	return NewHexMesh(points, hexes)
}
