package worker

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// spinlock is a CAS-based mutual-exclusion primitive for ThreadModeMulti
// workers configured with LockKindSpinlock. It generalizes the atomic
// compare-and-swap idiom the concurrency package already uses for its
// ring buffers and executor queues into an explicit lock type.
type spinlock struct {
	state atomic.Int32
}

func (s *spinlock) Lock() {
	for !s.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (s *spinlock) Unlock() {
	s.state.Store(0)
}

// noopLock backs ThreadModeSingle: callers assert single-threaded use
// themselves, so no synchronization is needed here.
type noopLock struct{}

func (noopLock) Lock()   {}
func (noopLock) Unlock() {}

var (
	_ sync.Locker = (*spinlock)(nil)
	_ sync.Locker = noopLock{}
	_ sync.Locker = (*sync.Mutex)(nil)
)
