package quadrant

// Octant is the three dimensional cell. It shares the integer grid and the
// level convention of Quadrant.
type Octant struct {
	Block   int32
	X, Y, Z int32
	Level   int32
	Tag     int32
}

// Side returns the octant's side length
func (o Octant) Side() int32 {
	return Side(o.Level)
}

// Parent returns the enclosing octant one level coarser
func (o Octant) Parent() Octant {
	if o.Level == 0 {
		return o
	}
	h := Side(o.Level - 1)
	p := o
	p.Level = o.Level - 1
	p.X = o.X &^ (h - 1)
	p.Y = o.Y &^ (h - 1)
	p.Z = o.Z &^ (h - 1)
	return p
}

// ChildID returns the position within the parent: bit 0 x, bit 1 y, bit 2 z
func (o Octant) ChildID() int {
	if o.Level == 0 {
		return 0
	}
	h := o.Side()
	id := 0
	if o.X&h != 0 {
		id |= 1
	}
	if o.Y&h != 0 {
		id |= 2
	}
	if o.Z&h != 0 {
		id |= 4
	}
	return id
}

// Sibling returns child id of o's parent
func (o Octant) Sibling(id int) Octant {
	if o.Level == 0 {
		return o
	}
	h := o.Side()
	s := o.Parent()
	s.Level = o.Level
	s.X += int32(id&1) * h
	s.Y += int32((id>>1)&1) * h
	s.Z += int32((id>>2)&1) * h
	return s
}

// Child returns child id of o
func (o Octant) Child(id int) Octant {
	h := Side(o.Level + 1)
	c := o
	c.Level = o.Level + 1
	c.X += int32(id&1) * h
	c.Y += int32((id>>1)&1) * h
	c.Z += int32((id>>2)&1) * h
	return c
}

// FaceNeighbor returns the same-level octant across face f: 0/1 are -x/+x,
// 2/3 are -y/+y, 4/5 are -z/+z
func (o Octant) FaceNeighbor(f int) Octant {
	h := o.Side()
	n := o
	s := (2*int32(f&1) - 1) * h
	switch f >> 1 {
	case 0:
		n.X += s
	case 1:
		n.Y += s
	case 2:
		n.Z += s
	}
	return n
}

// EdgeNeighbor returns the same-level octant across edge e. Edges 0-3 run
// along x, 4-7 along y and 8-11 along z; the two low bits pick the sign of
// the two remaining axes in increasing axis order.
func (o Octant) EdgeNeighbor(e int) Octant {
	h := o.Side()
	n := o
	s0 := (2*int32(e&1) - 1) * h
	s1 := (2*int32((e>>1)&1) - 1) * h
	switch e >> 2 {
	case 0:
		n.Y += s0
		n.Z += s1
	case 1:
		n.X += s0
		n.Z += s1
	case 2:
		n.X += s0
		n.Y += s1
	}
	return n
}

// CornerNeighbor returns the same-level octant across corner c
func (o Octant) CornerNeighbor(c int) Octant {
	h := o.Side()
	n := o
	n.X += (2*int32(c&1) - 1) * h
	n.Y += (2*int32((c>>1)&1) - 1) * h
	n.Z += (2*int32((c>>2)&1) - 1) * h
	return n
}

// InRange reports whether the anchor lies inside the block
func (o Octant) InRange() bool {
	return o.X >= 0 && o.X < HMax && o.Y >= 0 && o.Y < HMax &&
		o.Z >= 0 && o.Z < HMax
}

// Compare orders by block, Morton interleave (z most significant) and level
func (o Octant) Compare(p Octant) int {
	if o.Block != p.Block {
		return cmp32(o.Block, p.Block)
	}
	if c := o.CompareNode(p); c != 0 {
		return c
	}
	return cmp32(o.Level, p.Level)
}

// CompareNode is Compare without the level
func (o Octant) CompareNode(p Octant) int {
	if o.Block != p.Block {
		return cmp32(o.Block, p.Block)
	}
	xx := uint32(o.X ^ p.X)
	yy := uint32(o.Y ^ p.Y)
	zz := uint32(o.Z ^ p.Z)

	// Pick the axis holding the most significant differing bit
	axis, top := 2, zz
	if lessMSB(top, yy) {
		axis, top = 1, yy
	}
	if lessMSB(top, xx) {
		axis, top = 0, xx
	}
	if top == 0 {
		return 0
	}
	switch axis {
	case 0:
		return cmp32(o.X, p.X)
	case 1:
		return cmp32(o.Y, p.Y)
	}
	return cmp32(o.Z, p.Z)
}

// SameCell reports position equality, ignoring the tag
func (o Octant) SameCell(p Octant) bool {
	return o.Block == p.Block && o.X == p.X && o.Y == p.Y && o.Z == p.Z &&
		o.Level == p.Level
}

// Contains reports whether p lies inside o's footprint
func (o Octant) Contains(p Octant) bool {
	if p.Block != o.Block || p.Level < o.Level {
		return false
	}
	h := o.Side()
	return p.X >= o.X && p.X < o.X+h &&
		p.Y >= o.Y && p.Y < o.Y+h &&
		p.Z >= o.Z && p.Z < o.Z+h
}

// HashKey mixes the position fields
func (o Octant) HashKey() uint32 {
	return mix(uint32(o.Block), uint32(o.X), uint32(o.Y), uint32(o.Z), uint32(o.Level))
}
