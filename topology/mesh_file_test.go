package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoQuadsMsh is a Gmsh 2.2 file with two unit quads side by side, an
// unused node and a boundary line. %s is the second quad's node list.
const twoQuadsMsh = `$MeshFormat
2.2 0 8
$EndMeshFormat
$Nodes
7
1 0 0 0
2 1 0 0
3 2 0 0
4 0 1 0
5 1 1 0
6 2 1 0
7 5 5 0
$EndNodes
$Elements
3
1 1 2 1 1 1 2
2 3 2 0 1 1 2 5 4
3 3 2 0 1 %s
$EndElements
`

func writeMsh(t *testing.T, secondQuad string) string {
	path := filepath.Join(t.TempDir(), "two_quads.msh")
	content := []byte(fmt.Sprintf(twoQuadsMsh, secondQuad))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestReadMeshFile(t *testing.T) {
	tests := []struct {
		name       string
		secondQuad string // Counter-clockwise node ids
		sharedEdge int    // Local edge of block 1 on the shared side
		reversed   bool
		corner0    r3.Vector
	}{
		{"aligned", "2 3 6 5", 0, false, r3.Vector{X: 1}},
		{"rotated", "6 5 2 3", 1, true, r3.Vector{X: 2, Y: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topo, err := ReadMeshFile(writeMsh(t, tt.secondQuad))
			require.NoError(t, err)
			require.Equal(t, 2, topo.NumBlocks)
			assert.Equal(t, 6, topo.NumNodes, "the unused node is dropped")
			assert.Equal(t, 7, topo.NumEdges)

			// Block 0 keeps the file order: (0,0) (1,0) (0,1) (1,1)
			b0 := topo.Surfaces[0]
			assert.Equal(t, r3.Vector{}, b0.EvalPoint(0, 0))
			assert.Equal(t, r3.Vector{X: 1}, b0.EvalPoint(1, 0))
			assert.Equal(t, r3.Vector{Y: 1}, b0.EvalPoint(0, 1))
			assert.Equal(t, r3.Vector{X: 1, Y: 1}, b0.EvalPoint(1, 1))
			assert.Equal(t, tt.corner0, topo.Surfaces[1].EvalPoint(0, 0))

			e := topo.BlockEdgeConn[4*0+1]
			require.Equal(t, 2, topo.EdgeBlockPtr[e+1]-topo.EdgeBlockPtr[e], "+x edge of block 0 is shared")
			assert.Equal(t, e, topo.BlockEdgeConn[4*1+tt.sharedEdge])
			assert.Equal(t, tt.reversed, topo.EdgeReversed(0, 1, 1, tt.sharedEdge))
			assert.Empty(t, topo.Curves[e].Attribute())

			nodes, edges := topo.MaxAdjacent()
			assert.Equal(t, 2, nodes)
			assert.Equal(t, 2, edges)
		})
	}
}

func TestReadMeshFileWithoutQuads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.msh")
	require.NoError(t, os.WriteFile(path, []byte(`$MeshFormat
2.2 0 8
$EndMeshFormat
$Nodes
2
1 0 0 0
2 1 0 0
$EndNodes
$Elements
1
1 1 2 1 1 1 2
$EndElements
`), 0o644))
	_, err := ReadMeshFile(path)
	assert.Error(t, err)

	_, err = ReadMeshFile(filepath.Join(t.TempDir(), "missing.msh"))
	assert.Error(t, err)
}
