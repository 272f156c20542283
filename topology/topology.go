package topology

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"github.com/notargets/gocfd/utils"
)

// BoundaryAttribute is attached to edges and nodes that touch only one
// block side when a topology is built from a quad mesh
const BoundaryAttribute = "boundary"

// Topology couples the block connectivity with the geometry of every
// block, edge and node. Several forests may share one Topology.
type Topology struct {
	*Connectivity
	Surfaces []Surface // One per block
	Curves   []Curve   // One per edge, may be nil
	Vertices []Vertex  // One per node, may be nil
}

// NewTopology validates that the geometry lists match the connectivity
func NewTopology(conn *Connectivity, surfaces []Surface, curves []Curve, vertices []Vertex) (*Topology, error) {
	if conn == nil {
		return nil, fmt.Errorf("nil connectivity")
	}
	if surfaces != nil && len(surfaces) != conn.NumBlocks {
		return nil, fmt.Errorf("surfaces length %d does not match NumBlocks=%d", len(surfaces), conn.NumBlocks)
	}
	if curves != nil && len(curves) != conn.NumEdges {
		return nil, fmt.Errorf("curves length %d does not match NumEdges=%d", len(curves), conn.NumEdges)
	}
	if vertices != nil && len(vertices) != conn.NumNodes {
		return nil, fmt.Errorf("vertices length %d does not match NumNodes=%d", len(vertices), conn.NumNodes)
	}
	return &Topology{
		Connectivity: conn,
		Surfaces:     surfaces,
		Curves:       curves,
		Vertices:     vertices,
	}, nil
}

// NewFromQuadMesh builds a topology whose blocks are the given quads, each
// with bilinear geometry. Quads list four point indices in tensor order.
// Edges and nodes on the outer boundary get BoundaryAttribute.
func NewFromQuadMesh(points []r3.Vector, quads [][4]int) (*Topology, error) {
	blockConn := make([]int, 0, 4*len(quads))
	for _, q := range quads {
		blockConn = append(blockConn, q[:]...)
	}
	conn, err := NewConnectivity(len(points), len(quads), blockConn)
	if err != nil {
		return nil, fmt.Errorf("quad mesh connectivity: %w", err)
	}

	surfaces := make([]Surface, conn.NumBlocks)
	for b, q := range quads {
		surfaces[b] = &BilinearSurface{
			P: [4]r3.Vector{points[q[0]], points[q[1]], points[q[2]], points[q[3]]},
		}
	}

	boundaryNode := make([]bool, conn.NumNodes)
	curves := make([]Curve, conn.NumEdges)
	for e := 0; e < conn.NumEdges; e++ {
		entry := conn.EdgeBlockConn[conn.EdgeBlockPtr[e]]
		n1, n2 := conn.edgeNodes(entry/4, entry%4)
		lc := &LineCurve{A: points[n1], B: points[n2]}
		if conn.EdgeBlockPtr[e+1]-conn.EdgeBlockPtr[e] == 1 {
			lc.Attr = BoundaryAttribute
			boundaryNode[n1] = true
			boundaryNode[n2] = true
		}
		curves[e] = lc
	}

	vertices := make([]Vertex, conn.NumNodes)
	for n := range vertices {
		pv := &PointVertex{P: points[n]}
		if boundaryNode[n] {
			pv.Attr = BoundaryAttribute
		}
		vertices[n] = pv
	}
	return NewTopology(conn, surfaces, curves, vertices)
}

// ReadMeshFile loads the quadrilateral elements of a mesh file understood by
// the gocfd readers (Gmsh, Gambit neutral, SU2) as blocks. Unused vertices
// are dropped and corners are reordered from counter-clockwise to tensor
// order.
func ReadMeshFile(path string) (*Topology, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	_, elements, types := msh.FilterByDimension(2)

	var (
		points []r3.Vector
		quads  [][4]int
		remap  = make(map[int]int)
	)
	for k, etype := range types {
		if etype != utils.Quad {
			continue
		}
		ev := elements[k]
		if len(ev) < 4 {
			return nil, fmt.Errorf("quad element %d has %d vertices", k, len(ev))
		}
		var q [4]int
		for i, v := range [4]int{ev[0], ev[1], ev[3], ev[2]} {
			idx, ok := remap[v]
			if !ok {
				idx = len(points)
				remap[v] = idx
				x := msh.Vertices[v]
				p := r3.Vector{X: x[0], Y: x[1]}
				if len(x) > 2 {
					p.Z = x[2]
				}
				points = append(points, p)
			}
			q[i] = idx
		}
		quads = append(quads, q)
	}
	if len(quads) == 0 {
		return nil, fmt.Errorf("mesh file %s does not have any quads", path)
	}
	return NewFromQuadMesh(points, quads)
}
