package quadrant

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomQuadrant(rng *rand.Rand, maxLevel int32) Quadrant {
	level := rng.Int31n(maxLevel + 1)
	n := int32(1) << level
	h := Side(level)
	return Quadrant{
		Block: rng.Int31n(3),
		X:     rng.Int31n(n) * h,
		Y:     rng.Int31n(n) * h,
		Level: level,
	}
}

func TestCompareTotalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cells := make([]Quadrant, 60)
	for i := range cells {
		cells[i] = randomQuadrant(rng, 6)
	}
	for _, a := range cells {
		assert.Equal(t, 0, a.Compare(a))
		for _, b := range cells {
			assert.Equal(t, -a.Compare(b), b.Compare(a), "antisymmetry %v %v", a, b)
			for _, c := range cells {
				if a.Compare(b) < 0 && b.Compare(c) < 0 {
					if a.Compare(c) >= 0 {
						t.Fatalf("transitivity broken: %v < %v < %v", a, b, c)
					}
				}
			}
		}
	}
}

func TestMortonOrderOfChildren(t *testing.T) {
	p := Quadrant{Block: 1, Level: 3, X: 3 * Side(3), Y: 5 * Side(3)}
	for id := 0; id < 3; id++ {
		assert.Equal(t, -1, p.Child(id).Compare(p.Child(id+1)))
	}
	// The parent sorts before its first child, which shares the anchor
	assert.Equal(t, -1, p.Compare(p.Child(0)))
	assert.Equal(t, 0, p.CompareNode(p.Child(0)))
}

func TestContainmentClosure(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		q := randomQuadrant(rng, 10)
		if q.Level == 0 {
			continue
		}
		p := q.Parent()
		require.True(t, p.Contains(q), "parent %v must contain %v", p, q)
		assert.Equal(t, q, p.Child(q.ChildID()))
		assert.Equal(t, q, q.Sibling(q.ChildID()))

		// Children tile the parent footprint: total area and pairwise disjoint
		var area int64
		for a := 0; a < 4; a++ {
			ca := p.Child(a)
			assert.True(t, p.Contains(ca))
			area += int64(ca.Side()) * int64(ca.Side())
			for b := a + 1; b < 4; b++ {
				cb := p.Child(b)
				assert.False(t, ca.Contains(cb) || cb.Contains(ca))
			}
		}
		assert.Equal(t, int64(p.Side())*int64(p.Side()), area)
	}
}

func TestNeighbors(t *testing.T) {
	q := Quadrant{Level: 2, X: 0, Y: Side(2)}
	h := q.Side()

	left := q.EdgeNeighbor(0)
	assert.False(t, left.InRange(), "left of x=0 leaves the block")
	assert.Equal(t, q, q.EdgeNeighbor(1).EdgeNeighbor(0))
	assert.Equal(t, q.Y+h, q.EdgeNeighbor(3).Y)
	assert.Equal(t, q.Y-h, q.EdgeNeighbor(2).Y)

	c := q.CornerNeighbor(3)
	assert.Equal(t, q.X+h, c.X)
	assert.Equal(t, q.Y+h, c.Y)
	c = q.CornerNeighbor(0)
	assert.Equal(t, -h, c.X)
	assert.False(t, c.InRange())
}

func TestContainsPoint(t *testing.T) {
	q := Quadrant{Level: 1, X: Side(1)}
	assert.True(t, q.ContainsPoint(int64(HMax), 0))
	assert.True(t, q.ContainsPoint(int64(Side(1)), int64(Side(1))))
	assert.False(t, q.ContainsPoint(int64(Side(1))-1, 0))
}

func TestOctantEncoding(t *testing.T) {
	o := Octant{Level: 3, X: Side(3), Y: 2 * Side(3), Z: 5 * Side(3)}
	p := o.Parent()
	require.True(t, p.Contains(o))
	assert.Equal(t, o, p.Child(o.ChildID()))
	assert.Equal(t, 5, o.ChildID())

	for id := 0; id < 7; id++ {
		assert.Equal(t, -1, p.Child(id).Compare(p.Child(id+1)), "child %d", id)
	}
	for f := 0; f < 6; f++ {
		n := o.FaceNeighbor(f)
		assert.Equal(t, o, n.FaceNeighbor(f^1))
	}
	for e := 0; e < 12; e++ {
		n := o.EdgeNeighbor(e)
		assert.Equal(t, o, n.EdgeNeighbor(e^3), "edge %d", e)
	}
	for c := 0; c < 8; c++ {
		assert.Equal(t, o, o.CornerNeighbor(c).CornerNeighbor(7-c))
	}
}
