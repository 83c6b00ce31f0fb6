package fake

import (
	"sync"

	"github.com/coriolis-systems/workercore/api"
)

// wakeupHandleImpl is an in-process api.WakeupHandle backed by the same rx
// channel the owning interface drains in Progress. FD returns 0 for every
// handle, which is not a descriptor the handle owns; the wakeup
// multiplexer still registers it with its reactor. Pending frames are
// reported only through Arm (ErrBusy while the rx channel is non-empty);
// nothing signals the reactor when a frame arrives.
type wakeupHandleImpl struct {
	rx <-chan rxFrame

	mu      sync.Mutex
	armed   api.WakeupEvent
	pending bool
	closed  bool
}

func newWakeupHandle(rx <-chan rxFrame) *wakeupHandleImpl {
	return &wakeupHandleImpl{rx: rx}
}

func (w *wakeupHandleImpl) FD() uintptr {
	return uintptr(0)
}

func (w *wakeupHandleImpl) Arm(events api.WakeupEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.rx) > 0 {
		w.pending = true
		return api.ErrBusy
	}
	w.armed = events
	w.pending = false
	return nil
}

func (w *wakeupHandleImpl) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

var _ api.WakeupHandle = (*wakeupHandleImpl)(nil)
