package quadrant

// MaxLevel is the finest refinement level. Every tree spans the integer
// square [0, 1<<MaxLevel) in each direction. The value leaves room for the
// high-order node lattice, (order-1) << MaxLevel, to stay inside int32 for
// mesh orders up to 8.
const MaxLevel = 28

// HMax is the side length of a level-0 cell
const HMax int32 = 1 << MaxLevel

// Quadrant is a square cell within one block of a multi-block domain.
// Coordinates are integers on the fixed grid of span HMax and are always a
// multiple of the cell side at the cell's level.
type Quadrant struct {
	Block int32 // Block (tree) that holds the cell
	X, Y  int32 // Lower-left corner
	Level int32 // Refinement depth, 0 is the root
	Tag   int32 // Scratch: element index, destination rank or edge index
}

// Side returns the side length of a cell at the given level
func Side(level int32) int32 {
	return 1 << (MaxLevel - level)
}

// Side returns the cell's side length
func (q Quadrant) Side() int32 {
	return Side(q.Level)
}

// Parent returns the cell one level coarser that contains q. The root
// returns itself.
func (q Quadrant) Parent() Quadrant {
	if q.Level == 0 {
		return q
	}
	h := Side(q.Level - 1)
	p := q
	p.Level = q.Level - 1
	p.X = q.X &^ (h - 1)
	p.Y = q.Y &^ (h - 1)
	return p
}

// ChildID returns the position of q within its parent, bit 0 for x and
// bit 1 for y
func (q Quadrant) ChildID() int {
	if q.Level == 0 {
		return 0
	}
	h := q.Side()
	id := 0
	if q.X&h != 0 {
		id |= 1
	}
	if q.Y&h != 0 {
		id |= 2
	}
	return id
}

// Sibling returns the cell with child index id that shares q's parent
func (q Quadrant) Sibling(id int) Quadrant {
	if q.Level == 0 {
		return q
	}
	h := q.Side()
	s := q.Parent()
	s.Level = q.Level
	s.X += int32(id&1) * h
	s.Y += int32((id>>1)&1) * h
	return s
}

// Child returns child id of q, one level finer
func (q Quadrant) Child(id int) Quadrant {
	h := Side(q.Level + 1)
	c := q
	c.Level = q.Level + 1
	c.X += int32(id&1) * h
	c.Y += int32((id>>1)&1) * h
	return c
}

// EdgeNeighbor returns the same-level cell across edge e: 0 is -x, 1 is +x,
// 2 is -y and 3 is +y. The result may lie outside the block.
func (q Quadrant) EdgeNeighbor(e int) Quadrant {
	h := q.Side()
	n := q
	switch e {
	case 0:
		n.X -= h
	case 1:
		n.X += h
	case 2:
		n.Y -= h
	case 3:
		n.Y += h
	}
	return n
}

// CornerNeighbor returns the same-level cell diagonally across corner c.
// Bit 0 of c selects +x, bit 1 selects +y.
func (q Quadrant) CornerNeighbor(c int) Quadrant {
	h := q.Side()
	n := q
	n.X += (2*int32(c&1) - 1) * h
	n.Y += (2*int32((c>>1)&1) - 1) * h
	return n
}

// InRange reports whether the cell's anchor lies inside its block
func (q Quadrant) InRange() bool {
	return q.X >= 0 && q.X < HMax && q.Y >= 0 && q.Y < HMax
}

// Compare orders cells by block, then by Morton (z-order) interleave of the
// coordinates, then by level. It returns -1, 0 or 1.
func (q Quadrant) Compare(p Quadrant) int {
	if q.Block != p.Block {
		return cmp32(q.Block, p.Block)
	}
	if c := mortonCompare2(q.X, q.Y, p.X, p.Y); c != 0 {
		return c
	}
	return cmp32(q.Level, p.Level)
}

// CompareNode is Compare without the level: two cells anchored at the same
// point compare equal
func (q Quadrant) CompareNode(p Quadrant) int {
	if q.Block != p.Block {
		return cmp32(q.Block, p.Block)
	}
	return mortonCompare2(q.X, q.Y, p.X, p.Y)
}

// SameCell reports position equality, ignoring the tag
func (q Quadrant) SameCell(p Quadrant) bool {
	return q.Block == p.Block && q.X == p.X && q.Y == p.Y && q.Level == p.Level
}

// Contains reports whether p lies inside the footprint of q at p's level
// or finer
func (q Quadrant) Contains(p Quadrant) bool {
	if p.Block != q.Block || p.Level < q.Level {
		return false
	}
	h := q.Side()
	return p.X >= q.X && p.X < q.X+h &&
		p.Y >= q.Y && p.Y < q.Y+h
}

// ContainsPoint reports whether (x, y) lies in the closed footprint of q
func (q Quadrant) ContainsPoint(x, y int64) bool {
	h := int64(q.Side())
	qx, qy := int64(q.X), int64(q.Y)
	return x >= qx && x <= qx+h && y >= qy && y <= qy+h
}

// HashKey mixes the position fields; the tag is not part of the key
func (q Quadrant) HashKey() uint32 {
	return mix(uint32(q.Block), uint32(q.X), uint32(q.Y), uint32(q.Level))
}

func cmp32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// lessMSB reports whether the most significant set bit of a is below that
// of b
func lessMSB(a, b uint32) bool {
	return a < b && a < (a^b)
}

func mortonCompare2(x1, y1, x2, y2 int32) int {
	xx := uint32(x1 ^ x2)
	yy := uint32(y1 ^ y2)
	if lessMSB(yy, xx) {
		return cmp32(x1, x2)
	}
	if yy != 0 {
		return cmp32(y1, y2)
	}
	return 0
}

func mix(vals ...uint32) uint32 {
	h := uint32(2166136261)
	for _, v := range vals {
		for i := 0; i < 4; i++ {
			h ^= v & 0xff
			h *= 16777619
			v >>= 8
		}
	}
	return h
}
