package topology

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/QuadForest/quadrant"
)

// gridNode numbers the points of an (nx+1)x(ny+1)x(nz+1) lattice
func gridNode(i, j, k, nx, ny int) int {
	return i + (nx+1)*(j+(ny+1)*k)
}

// brickMesh is nx x ny x nz unit cubes, each in tensor order
func brickMesh(t *testing.T, nx, ny, nz int) *HexMesh {
	var points []r3.Vector
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				points = append(points, r3.Vector{X: float64(i), Y: float64(j), Z: float64(k)})
			}
		}
	}
	var hexes [][8]int
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				var h [8]int
				for c := range h {
					h[c] = gridNode(i+c&1, j+(c>>1)&1, k+(c>>2)&1, nx, ny)
				}
				hexes = append(hexes, h)
			}
		}
	}
	m, err := NewHexMesh(points, hexes)
	require.NoError(t, err)
	return m
}

// twoCubes joins the unit cube [0,1]^3 and a second cube [1,2]x[0,1]^2
// whose local frame is given by place, mapping local corner bits to the
// physical lattice
func twoCubes(t *testing.T, place func(lx, ly, lz int) (i, j, k int)) *HexMesh {
	var points []r3.Vector
	for k := 0; k <= 1; k++ {
		for j := 0; j <= 1; j++ {
			for i := 0; i <= 2; i++ {
				points = append(points, r3.Vector{X: float64(i), Y: float64(j), Z: float64(k)})
			}
		}
	}
	var hexes [2][8]int
	for c := 0; c < 8; c++ {
		lx, ly, lz := c&1, (c>>1)&1, (c>>2)&1
		hexes[0][c] = gridNode(lx, ly, lz, 2, 1)
		i, j, k := place(lx, ly, lz)
		hexes[1][c] = gridNode(i, j, k, 2, 1)
	}
	m, err := NewHexMesh(points, hexes[:])
	require.NoError(t, err)
	return m
}

var twoCubeFrames = []struct {
	name  string
	place func(lx, ly, lz int) (int, int, int)
	face  int // Local face of block 1 on the shared side
}{
	{"aligned", func(lx, ly, lz int) (int, int, int) { return 1 + lx, ly, lz }, 0},
	{"turned about z", func(lx, ly, lz int) (int, int, int) { return 2 - ly, lx, lz }, 3},
	{"axes cycled", func(lx, ly, lz int) (int, int, int) { return 1 + lz, lx, ly }, 4},
	{"turned about x", func(lx, ly, lz int) (int, int, int) { return 1 + lx, 1 - ly, 1 - lz }, 0},
}

func pos(m *HexMesh, block int, p [3]int32) r3.Vector {
	span := float64(quadrant.HMax)
	return m.Position(block, float64(p[0]), float64(p[1]), float64(p[2]), span)
}

func assertSamePoint(t *testing.T, a, b r3.Vector, msg string) {
	assert.InDelta(t, 0, a.Sub(b).Norm(), 1e-6, "%s: %v != %v", msg, a, b)
}

func TestHexConnectivityCounts(t *testing.T) {
	tests := []struct {
		nx, ny, nz                int
		nodes, edges, faces       int
		maxNode, maxEdge, maxFace int
	}{
		{1, 1, 1, 8, 12, 6, 1, 1, 1},
		{2, 1, 1, 12, 20, 11, 2, 2, 2},
		{2, 2, 2, 27, 54, 36, 8, 4, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%dx%d", tt.nx, tt.ny, tt.nz), func(t *testing.T) {
			m := brickMesh(t, tt.nx, tt.ny, tt.nz)
			assert.Equal(t, tt.nodes, m.NumNodes)
			assert.Equal(t, tt.edges, m.NumEdges)
			assert.Equal(t, tt.faces, m.NumFaces)
			n, e, f := m.MaxAdjacent()
			assert.Equal(t, [3]int{tt.maxNode, tt.maxEdge, tt.maxFace}, [3]int{n, e, f})

			// Calling again keeps the numbering
			edges := append([]int(nil), m.BlockEdgeConn...)
			faces := append([]int(nil), m.BlockFaceConn...)
			m.ComputeEdgesFromNodes()
			m.ComputeFacesFromNodes()
			assert.Equal(t, edges, m.BlockEdgeConn)
			assert.Equal(t, faces, m.BlockFaceConn)
			for id := 0; id < m.NumFaces; id++ {
				assert.Equal(t, m.FaceBlockConn[m.FaceBlockPtr[id]]/6, m.FaceOwners[id])
			}
		})
	}
}

func TestNewHexConnectivityRejectsBadInput(t *testing.T) {
	_, err := NewHexConnectivity(8, 1, make([]int, 7))
	assert.Error(t, err)
	_, err = NewHexConnectivity(8, 1, []int{0, 1, 2, 3, 4, 5, 6, 8})
	assert.Error(t, err)
	_, err = NewHexConnectivity(0, 1, nil)
	assert.Error(t, err)
}

// TestFaceLinks checks the face transforms against the physical positions:
// a point near the shared face, on either side, lands on the same physical
// point when expressed in the other block
func TestFaceLinks(t *testing.T) {
	h := quadrant.HMax
	for _, tt := range twoCubeFrames {
		t.Run(tt.name, func(t *testing.T) {
			m := twoCubes(t, tt.place)
			assert.Equal(t, 11, m.NumFaces)

			link := m.FaceLinks[6*0+1]
			require.Equal(t, 1, link.Block)
			assert.Equal(t, tt.face, link.Face)
			back := m.FaceLinks[6*1+tt.face]
			require.Equal(t, 0, back.Block)
			assert.Equal(t, 1, back.Face)
			assert.Equal(t, -1, m.FaceLinks[6*0+0].Block, "outer face")

			rng := rand.New(rand.NewSource(3))
			for n := 0; n < 20; n++ {
				p := [3]int32{h - rng.Int31n(h/4) + h/8, rng.Int31n(h), rng.Int31n(h)}
				q := link.T.Apply(p, h)
				assertSamePoint(t, pos(m, 0, p), pos(m, 1, q), "forward")
				assertSamePoint(t, pos(m, 0, p), pos(m, 0, back.T.Apply(q, h)), "round trip")
			}
		})
	}
}

func TestHexTransformNode(t *testing.T) {
	h := quadrant.HMax
	for _, tt := range twoCubeFrames {
		t.Run(tt.name, func(t *testing.T) {
			m := twoCubes(t, tt.place)
			rng := rand.New(rand.NewSource(9))
			// Points on the shared face seen from block 1
			for n := 0; n < 30; n++ {
				var p [3]int32
				for axis := range p {
					switch rng.Intn(3) {
					case 0:
						p[axis] = 0
					case 1:
						p[axis] = h
					default:
						p[axis] = 2 * rng.Int31n(h/2)
					}
				}
				p[tt.face>>1] = h * int32(tt.face&1)
				o := quadrant.Octant{Block: 1, X: p[0], Y: p[1], Z: p[2]}
				key := m.TransformNode(o, h)
				assert.Equal(t, int32(0), key.Block, "block 0 owns the shared face")

				// The same point seen from block 0 gives the same key
				q := m.FaceLinks[6*1+tt.face].T.Apply(p, h)
				other := m.TransformNode(quadrant.Octant{Block: 0, X: q[0], Y: q[1], Z: q[2]}, h)
				assert.Equal(t, key, other, "point %v", p)

				unfold := func(x int32) int32 {
					if x == h-1 {
						return h
					}
					return x
				}
				kp := [3]int32{unfold(key.X), unfold(key.Y), unfold(key.Z)}
				assertSamePoint(t, pos(m, 1, p), pos(m, 0, kp), "key position")
			}

			// Interior points keep their block
			in := quadrant.Octant{Block: 1, X: h / 2, Y: h / 4, Z: h / 8}
			assert.Equal(t, in, m.TransformNode(in, h))
		})
	}
}

func TestHexEdgeReversed(t *testing.T) {
	m := twoCubes(t, twoCubeFrames[1].place)
	// Block 0 edge along z at x=1,y=0 is block 1's edge along z at x=0,y=1
	// in the turned frame, both running up
	assert.False(t, m.EdgeReversed(0, HexEdge(2, 1, 0), 1, HexEdge(2, 0, 1)))
	assert.Equal(t, m.BlockEdgeConn[12*0+HexEdge(2, 1, 0)], m.BlockEdgeConn[12*1+HexEdge(2, 0, 1)])
	// Block 0 edge along y at x=1,z=0 is block 1's edge along x at y=1,z=0,
	// running the same way
	assert.Equal(t, m.BlockEdgeConn[12*0+HexEdge(1, 1, 0)], m.BlockEdgeConn[12*1+HexEdge(0, 1, 0)])
	assert.False(t, m.EdgeReversed(0, HexEdge(1, 1, 0), 1, HexEdge(0, 1, 0)))

	// Turned half a revolution about x the same edge runs backwards
	m = twoCubes(t, twoCubeFrames[3].place)
	assert.Equal(t, m.BlockEdgeConn[12*0+HexEdge(1, 1, 0)], m.BlockEdgeConn[12*1+HexEdge(1, 0, 1)])
	assert.True(t, m.EdgeReversed(0, HexEdge(1, 1, 0), 1, HexEdge(1, 0, 1)))
}

const twoHexesMsh = `$MeshFormat
2.2 0 8
$EndMeshFormat
$Nodes
12
1 0 0 0
2 1 0 0
3 2 0 0
4 0 1 0
5 1 1 0
6 2 1 0
7 0 0 1
8 1 0 1
9 2 0 1
10 0 1 1
11 1 1 1
12 2 1 1
$EndNodes
$Elements
3
1 3 2 0 1 1 2 5 4
2 5 2 0 1 1 2 5 4 7 8 11 10
3 5 2 0 1 2 3 6 5 8 9 12 11
$EndElements
`

func TestReadHexMeshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two_hexes.msh")
	require.NoError(t, os.WriteFile(path, []byte(twoHexesMsh), 0o644))
	m, err := ReadHexMeshFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, m.NumBlocks)
	assert.Equal(t, 12, m.NumNodes)
	assert.Equal(t, 11, m.NumFaces)
	assert.Equal(t, 20, m.NumEdges)

	link := m.FaceLinks[6*0+1]
	assert.Equal(t, 1, link.Block)
	assert.Equal(t, 0, link.Face)
	assert.Equal(t, [3]int{0, 1, 2}, link.T.Perm)
	assertSamePoint(t, r3.Vector{X: 1, Y: 1, Z: 1}, m.Points[m.Corners[0][7]], "far corner")
	span := float64(quadrant.HMax)
	assertSamePoint(t, r3.Vector{X: 1.5, Y: 0.25, Z: 0.5},
		m.Position(1, span/2, span/4, span/2, span), "position")

	noHex := filepath.Join(t.TempDir(), "quads.msh")
	require.NoError(t, os.WriteFile(noHex, []byte(fmt.Sprintf(twoQuadsMsh, "2 3 6 5")), 0o644))
	_, err = ReadHexMeshFile(noHex)
	assert.Error(t, err)
}
