package comm

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Tags below zero are reserved for collectives
const (
	tagAlltoall = -1 - iota
	tagAllgather
	tagAllreduce
	tagBarrier
)

// ErrAborted is returned by the ranks that were still communicating when
// another rank failed
var ErrAborted = errors.New("comm: aborted after another rank failed")

// abortSignal unwinds a rank blocked in Recv once the world is aborted
type abortSignal struct{}

type message struct {
	tag  int
	data any
}

// mailbox holds the messages sent from one rank to another in send order
type mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []message
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (mb *mailbox) put(m message) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, m)
	mb.mu.Unlock()
	mb.cond.Broadcast()
}

// take blocks until a message with the tag is queued and removes the
// oldest one. It panics with abortSignal once aborted is set.
func (mb *mailbox) take(tag int, aborted *atomic.Bool) message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for {
		if aborted.Load() {
			panic(abortSignal{})
		}
		for i, m := range mb.queue {
			if m.tag == tag {
				mb.queue = slices.Delete(mb.queue, i, i+1)
				return m
			}
		}
		mb.cond.Wait()
	}
}

type world struct {
	id      uuid.UUID
	size    int
	boxes   []*mailbox // [dst*size+src]
	aborted atomic.Bool
}

// abort wakes every rank blocked in a receive so it can unwind
func (w *world) abort() {
	if w.aborted.Swap(true) {
		return
	}
	for _, mb := range w.boxes {
		mb.mu.Lock()
		mb.cond.Broadcast()
		mb.mu.Unlock()
	}
}

// Comm is one rank's handle on a group of ranks running in the same
// process. A Comm must only be used by the goroutine that received it.
type Comm struct {
	w    *world
	rank int
}

// Request is returned by Isend. Sends complete as soon as they are posted.
type Request struct {
	dst, tag int
}

// Run starts size ranks, each calling fn on its own goroutine, and waits for
// all of them. A rank that returns an error or panics aborts the others:
// their pending and later receives fail with ErrAborted. The first error by
// rank order that is not ErrAborted is returned.
func Run(size int, fn func(c *Comm) error) error {
	if size <= 0 {
		return fmt.Errorf("invalid communicator size %d", size)
	}
	w := &world{
		id:    uuid.New(),
		size:  size,
		boxes: make([]*mailbox, size*size),
	}
	for i := range w.boxes {
		w.boxes[i] = newMailbox()
	}

	errs := make([]error, size)
	var wg sync.WaitGroup
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					if _, ok := r.(abortSignal); ok {
						errs[rank] = ErrAborted
					} else {
						errs[rank] = fmt.Errorf("panic: %v", r)
					}
					w.abort()
				}
			}()
			if errs[rank] = fn(&Comm{w: w, rank: rank}); errs[rank] != nil {
				w.abort()
			}
		}(rank)
	}
	wg.Wait()

	first := -1
	for rank, err := range errs {
		if err == nil {
			continue
		}
		if first < 0 || (errors.Is(errs[first], ErrAborted) && !errors.Is(err, ErrAborted)) {
			first = rank
		}
	}
	if first >= 0 {
		return fmt.Errorf("rank %d: %w", first, errs[first])
	}
	return nil
}

func (c *Comm) Rank() int { return c.rank }

func (c *Comm) Size() int { return c.w.size }

// ID identifies the group of ranks this handle belongs to
func (c *Comm) ID() string { return c.w.id.String() }

func (c *Comm) box(dst, src int) *mailbox {
	return c.w.boxes[dst*c.w.size+src]
}

func (c *Comm) checkPeer(peer int) {
	if peer < 0 || peer >= c.w.size {
		panic(fmt.Sprintf("rank %d: peer %d out of range [0,%d)", c.rank, peer, c.w.size))
	}
}

// Isend posts a copy of data to dst. It never blocks.
func Isend[T any](c *Comm, dst, tag int, data []T) *Request {
	c.checkPeer(dst)
	c.box(dst, c.rank).put(message{tag: tag, data: slices.Clone(data)})
	return &Request{dst: dst, tag: tag}
}

// Recv blocks until a message with the tag arrives from src. Messages
// between one pair of ranks with the same tag are received in send order.
func Recv[T any](c *Comm, src, tag int) []T {
	c.checkPeer(src)
	m := c.box(c.rank, src).take(tag, &c.w.aborted)
	data, ok := m.data.([]T)
	if !ok && m.data != nil {
		panic(fmt.Sprintf("rank %d: message from %d with tag %d has type %T", c.rank, src, tag, m.data))
	}
	return data
}

// Waitall completes a batch of sends
func Waitall(reqs []*Request) {
	for i := range reqs {
		reqs[i] = nil
	}
}

// Alltoallv sends send[r] to every rank r and returns what every rank sent
// to this one, indexed by source
func Alltoallv[T any](c *Comm, send [][]T) [][]T {
	if len(send) != c.w.size {
		panic(fmt.Sprintf("rank %d: alltoall with %d buffers for %d ranks", c.rank, len(send), c.w.size))
	}
	reqs := make([]*Request, 0, c.w.size)
	for dst := 0; dst < c.w.size; dst++ {
		reqs = append(reqs, Isend(c, dst, tagAlltoall, send[dst]))
	}
	recv := make([][]T, c.w.size)
	for src := 0; src < c.w.size; src++ {
		recv[src] = Recv[T](c, src, tagAlltoall)
	}
	Waitall(reqs)
	return recv
}

// Alltoall exchanges one value with every rank
func Alltoall[T any](c *Comm, send []T) []T {
	bufs := make([][]T, c.w.size)
	for dst := range bufs {
		bufs[dst] = send[dst : dst+1]
	}
	recv := Alltoallv(c, bufs)
	out := make([]T, c.w.size)
	for src, buf := range recv {
		out[src] = buf[0]
	}
	return out
}

// Allgatherv returns the data of every rank, indexed by rank
func Allgatherv[T any](c *Comm, data []T) [][]T {
	reqs := make([]*Request, 0, c.w.size)
	for dst := 0; dst < c.w.size; dst++ {
		reqs = append(reqs, Isend(c, dst, tagAllgather, data))
	}
	recv := make([][]T, c.w.size)
	for src := 0; src < c.w.size; src++ {
		recv[src] = Recv[T](c, src, tagAllgather)
	}
	Waitall(reqs)
	return recv
}

// Allgather returns one value from every rank
func Allgather[T any](c *Comm, v T) []T {
	recv := Allgatherv(c, []T{v})
	out := make([]T, len(recv))
	for src, buf := range recv {
		out[src] = buf[0]
	}
	return out
}

type number interface {
	~int | ~int32 | ~int64 | ~float64
}

func allreduce[T number](c *Comm, v T, op func(a, b T) T) T {
	reqs := make([]*Request, 0, c.w.size)
	for dst := 0; dst < c.w.size; dst++ {
		reqs = append(reqs, Isend(c, dst, tagAllreduce, []T{v}))
	}
	// Combine in rank order so every rank gets the same floating point result
	var acc T
	for src := 0; src < c.w.size; src++ {
		x := Recv[T](c, src, tagAllreduce)[0]
		if src == 0 {
			acc = x
		} else {
			acc = op(acc, x)
		}
	}
	Waitall(reqs)
	return acc
}

func AllreduceSum[T number](c *Comm, v T) T {
	return allreduce(c, v, func(a, b T) T { return a + b })
}

func AllreduceMax[T number](c *Comm, v T) T {
	return allreduce(c, v, func(a, b T) T { return max(a, b) })
}

// Barrier returns once every rank has entered it
func Barrier(c *Comm) {
	reqs := make([]*Request, 0, c.w.size)
	for dst := 0; dst < c.w.size; dst++ {
		reqs = append(reqs, Isend[struct{}](c, dst, tagBarrier, nil))
	}
	for src := 0; src < c.w.size; src++ {
		Recv[struct{}](c, src, tagBarrier)
	}
	Waitall(reqs)
}
