// Package reqpool implements the worker's request-element pool: a
// fixed-size free list seeded with an initial batch of elements and grown
// on demand. Each element is exactly headerSize+trailerSize bytes; neither
// its size nor its address is aligned to a cache line. Ported from the slab-allocation approach
// of a fixed-size-class buffer pool, generalized from per-NUMA-node byte
// slabs to a single free list of request elements sized for one worker.
package reqpool

import (
	"sync/atomic"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/internal/concurrency"
)

const initialCapacity = 128

// element is one fixed-size request slot: a header region plus a
// context-configured trailer, both carried in one contiguous slice so a
// transport can DMA/copy it as a single buffer.
type element struct {
	buf   []byte
	owner *Pool
}

func (e *element) Bytes() []byte { return e.buf }

func (e *element) Release() {
	for i := range e.buf {
		e.buf[i] = 0
	}
	e.owner.free.Enqueue(e)
	e.owner.totalFree.Add(1)
}

var _ api.RequestElement = (*element)(nil)

// Pool is a worker-local, unbounded request-element pool. Acquire never
// fails: it drains the free ring first and falls back to allocating a new
// element, so exhaustion never surfaces as an error to callers.
type Pool struct {
	elementSize int
	free        *concurrency.RingBuffer[*element]
	totalAlloc  atomic.Int64
	totalFree   atomic.Int64
}

// New creates a Pool of elements sized headerSize+trailerSize bytes,
// seeded with an initial batch of pre-allocated elements.
func New(headerSize, trailerSize int) *Pool {
	size := headerSize + trailerSize
	p := &Pool{
		elementSize: size,
		free:        concurrency.NewRingBuffer[*element](nextPow2(initialCapacity * 2)),
	}
	for i := 0; i < initialCapacity; i++ {
		e := &element{buf: make([]byte, size), owner: p}
		p.free.Enqueue(e)
		p.totalAlloc.Add(1)
	}
	return p
}

// Acquire returns a zeroed element, reusing one from the free ring when
// available and allocating a new one otherwise.
func (p *Pool) Acquire() api.RequestElement {
	if e, ok := p.free.Dequeue(); ok {
		return e
	}
	p.totalAlloc.Add(1)
	return &element{buf: make([]byte, p.elementSize), owner: p}
}

// Stats reports allocation/reuse accounting for diagnostics.
func (p *Pool) Stats() api.RequestPoolStats {
	alloc := p.totalAlloc.Load()
	free := p.totalFree.Load()
	return api.RequestPoolStats{
		ElementSize: p.elementSize,
		TotalAlloc:  alloc,
		TotalFree:   free,
		InUse:       alloc - free,
	}
}

var _ api.RequestPool = (*Pool)(nil)

func nextPow2(n int) uint64 {
	size := uint64(1)
	for size < uint64(n) {
		size <<= 1
	}
	return size
}
