// File: pool/bufferpool.go
//
// Size-classed []byte pooling for the headroom/payload copies every
// active-message send makes before handing a frame to the destination
// interface.

package pool

import (
	"sync"

	"github.com/coriolis-systems/workercore/api"
)

// BufferPool implements api.BytePool with a small set of size-classed
// sync.Pool instances, rounding each request up to the next class rather
// than allocating one pool per exact size.
type BufferPool struct {
	classes []int
	pools   []sync.Pool
}

// NewBufferPool creates a BufferPool with the given ascending size classes.
// A request larger than the biggest class allocates directly and is never
// pooled on Release.
func NewBufferPool(classes ...int) *BufferPool {
	bp := &BufferPool{classes: classes, pools: make([]sync.Pool, len(classes))}
	for i, size := range classes {
		size := size
		bp.pools[i].New = func() any { return make([]byte, size) }
	}
	return bp
}

func (bp *BufferPool) classFor(n int) int {
	for i, size := range bp.classes {
		if n <= size {
			return i
		}
	}
	return -1
}

// Acquire returns a slice of length n, drawn from the smallest size class
// that fits.
func (bp *BufferPool) Acquire(n int) []byte {
	idx := bp.classFor(n)
	if idx < 0 {
		return make([]byte, n)
	}
	buf := bp.pools[idx].Get().([]byte)
	return buf[:n]
}

// Release returns buf to its size class. A buffer whose capacity matches no
// class is dropped for the garbage collector to reclaim.
func (bp *BufferPool) Release(buf []byte) {
	idx := bp.classFor(cap(buf))
	if idx < 0 || bp.classes[idx] != cap(buf) {
		return
	}
	bp.pools[idx].Put(buf[:cap(buf)])
}

var _ api.BytePool = (*BufferPool)(nil)
