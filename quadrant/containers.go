package quadrant

import (
	"slices"
)

// Cell is the constraint shared by Quadrant and Octant so the containers can
// hold either
type Cell[T any] interface {
	Compare(T) int
	CompareNode(T) int
	SameCell(T) bool
	Contains(T) bool
	HashKey() uint32
}

const (
	initialBuckets = 64
	maxBucketLoad  = 10
)

// Hash is a set of cells keyed by position. Adding a cell that is already
// present, possibly with a different tag, is a no-op.
type Hash[T Cell[T]] struct {
	buckets [][]T
	count   int
}

// NewHash returns an empty hash set
func NewHash[T Cell[T]]() *Hash[T] {
	return &Hash[T]{buckets: make([][]T, initialBuckets)}
}

// Add inserts q if no cell at the same position exists and reports whether
// it was inserted
func (h *Hash[T]) Add(q T) bool {
	b := q.HashKey() % uint32(len(h.buckets))
	for _, p := range h.buckets[b] {
		if p.SameCell(q) {
			return false
		}
	}
	h.buckets[b] = append(h.buckets[b], q)
	h.count++
	if h.count > maxBucketLoad*len(h.buckets) {
		h.rehash(2 * len(h.buckets))
	}
	return true
}

// Contains reports whether a cell at q's position is present
func (h *Hash[T]) Contains(q T) bool {
	b := q.HashKey() % uint32(len(h.buckets))
	for _, p := range h.buckets[b] {
		if p.SameCell(q) {
			return true
		}
	}
	return false
}

// Len returns the number of cells
func (h *Hash[T]) Len() int {
	return h.count
}

// ToArray copies the cells, in bucket order, into a new unsorted array
func (h *Hash[T]) ToArray() *Array[T] {
	items := make([]T, 0, h.count)
	for _, b := range h.buckets {
		items = append(items, b...)
	}
	return NewArray(items)
}

func (h *Hash[T]) rehash(n int) {
	old := h.buckets
	h.buckets = make([][]T, n)
	for _, b := range old {
		for _, q := range b {
			k := q.HashKey() % uint32(n)
			h.buckets[k] = append(h.buckets[k], q)
		}
	}
}

// Array is a slice of cells, usually kept in Compare order
type Array[T Cell[T]] struct {
	items []T
}

// NewArray wraps items without copying
func NewArray[T Cell[T]](items []T) *Array[T] {
	return &Array[T]{items: items}
}

// Len returns the number of cells
func (a *Array[T]) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}

// At returns cell i
func (a *Array[T]) At(i int) T {
	return a.items[i]
}

// Items exposes the backing slice
func (a *Array[T]) Items() []T {
	if a == nil {
		return nil
	}
	return a.items
}

// Append adds cells at the end; the array must be re-sorted afterwards if
// order matters
func (a *Array[T]) Append(q ...T) {
	a.items = append(a.items, q...)
}

// Sort orders the cells by Compare
func (a *Array[T]) Sort() {
	slices.SortFunc(a.items, func(p, q T) int { return p.Compare(q) })
}

// Unique drops adjacent duplicate positions from a sorted array
func (a *Array[T]) Unique() {
	a.items = slices.CompactFunc(a.items, func(p, q T) bool { return p.SameCell(q) })
}

// Duplicate returns a deep copy
func (a *Array[T]) Duplicate() *Array[T] {
	return &Array[T]{items: slices.Clone(a.items)}
}

// Index binary searches a sorted array and returns the position of q, or -1.
// In node mode the level is ignored so any cell anchored at q's point
// matches.
func (a *Array[T]) Index(q T, nodeMode bool) int {
	if a == nil {
		return -1
	}
	cmp := func(p, t T) int { return p.Compare(t) }
	if nodeMode {
		cmp = func(p, t T) int { return p.CompareNode(t) }
	}
	i, found := slices.BinarySearchFunc(a.items, q, cmp)
	if !found {
		return -1
	}
	return i
}

// Contains returns the stored cell matching q
func (a *Array[T]) Contains(q T, nodeMode bool) (T, bool) {
	i := a.Index(q, nodeMode)
	if i < 0 {
		var zero T
		return zero, false
	}
	return a.items[i], true
}

// Queue is a FIFO of cells used by the breadth-first propagation loops
type Queue[T Cell[T]] struct {
	items []T
	head  int
}

// NewQueue returns an empty queue
func NewQueue[T Cell[T]]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends q
func (qu *Queue[T]) Push(q T) {
	qu.items = append(qu.items, q)
}

// Pop removes the oldest cell. It panics on an empty queue.
func (qu *Queue[T]) Pop() T {
	q := qu.items[qu.head]
	qu.head++
	if qu.head == len(qu.items) {
		qu.items = qu.items[:0]
		qu.head = 0
	}
	return q
}

// Len returns the number of queued cells
func (qu *Queue[T]) Len() int {
	return len(qu.items) - qu.head
}

// ToArray copies the queued cells in FIFO order
func (qu *Queue[T]) ToArray() *Array[T] {
	return NewArray(slices.Clone(qu.items[qu.head:]))
}
