// Package wakeup implements the worker's wakeup multiplexer: a self-pipe
// that lets any goroutine interrupt a blocked progress loop, combined with
// every interface's wakeup handle into one aggregating, lazily-created
// event descriptor.
package wakeup

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/reactor"
)

// selfUserData tags the self-pipe's read end in the aggregating reactor so
// Wait can tell a caller-initiated Signal apart from interface readiness.
const selfUserData = ^uintptr(0)

// Multiplexer aggregates per-interface wakeup handles and a self-pipe into
// a single pollable source. The aggregating reactor is built lazily on
// first use, mirroring how interfaces only pay for wakeup support once a
// caller actually arms for events.
type Multiplexer struct {
	mu        sync.Mutex
	handles   []api.WakeupHandle // dense over num_tls; nil where unsupported
	selfRead  *os.File
	selfWrite *os.File
	agg       reactor.EventReactor
}

// New creates a Multiplexer over handles, one slot per resource index
// (nil where the interface lacks wakeup support).
func New(handles []api.WakeupHandle) *Multiplexer {
	return &Multiplexer{handles: handles}
}

// Signal interrupts a blocked Wait from any goroutine, building the
// self-pipe on first use. The self-pipe is non-blocking: a full pipe
// (meaning a wakeup is already pending) reports EAGAIN, which Signal
// treats as success rather than an error.
func (m *Multiplexer) Signal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLocked(); err != nil {
		return err
	}
	_, err := m.selfWrite.Write([]byte{0})
	if errors.Is(err, syscall.EAGAIN) {
		return nil
	}
	return err
}

// FD returns the OS-level handle of the self-pipe's read end, building the
// multiplexer on first call. The aggregating reactor's own descriptor is
// not exposed, so this fd becomes readable on Signal only; interface
// readiness is not reported through it.
func (m *Multiplexer) FD() (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLocked(); err != nil {
		return 0, err
	}
	return m.aggFD(), nil
}

// Arm drains the self-pipe, then requests notification on every interface
// that supports wakeups. A handle that reports ErrBusy (events already
// pending on that interface) still lets Arm proceed to the remaining
// handles, but the overall call returns ErrBusy once every handle has been
// armed; it also returns ErrBusy when the drain found a byte from a Signal
// made since the previous Arm. Either way the caller must re-progress
// instead of calling Wait, per the aggregate-BUSY contract.
func (m *Multiplexer) Arm(events api.WakeupEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLocked(); err != nil {
		return err
	}
	signaled := drainSelfPipe(m.selfRead)

	var firstErr error
	busy := false
	for _, h := range m.handles {
		if h == nil {
			continue
		}
		if err := h.Arm(events); err != nil {
			if err == api.ErrBusy {
				busy = true
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if busy || signaled {
		return api.ErrBusy
	}
	return nil
}

// drainSelfPipe reads the self-pipe until it is empty and reports whether
// it held any byte. Every Fd() call on the read end (setNonblock, the
// reactor registration, aggFD) puts the descriptor back into blocking mode
// while the runtime poller still owns it, and a Read of an empty pollable
// file parks instead of returning EAGAIN; so the drain restores O_NONBLOCK
// and bounds any such park with a short read deadline.
func drainSelfPipe(r *os.File) bool {
	_ = setNonblock(r)
	_ = r.SetReadDeadline(time.Now().Add(time.Millisecond))
	defer r.SetReadDeadline(time.Time{})
	drained := false
	var buf [64]byte
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			drained = true
		}
		if n <= 0 || err != nil {
			return drained
		}
	}
}

// Wait blocks until the self-pipe is signaled or an interface becomes
// ready. It does not drain the self-pipe itself: the next Arm call does
// that, and reports ErrBusy for a byte left by the Signal that just woke
// this Wait.
func (m *Multiplexer) Wait() error {
	m.mu.Lock()
	if err := m.ensureLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	agg := m.agg
	m.mu.Unlock()

	events := make([]reactor.Event, 1)
	_, err := agg.Wait(events)
	return err
}

// Close releases the self-pipe and aggregating reactor. Interface wakeup
// handles are owned by the interface pool and are not closed here.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.agg != nil {
		err = m.agg.Close()
		m.agg = nil
	}
	if m.selfRead != nil {
		_ = m.selfRead.Close()
		_ = m.selfWrite.Close()
		m.selfRead, m.selfWrite = nil, nil
	}
	return err
}

func (m *Multiplexer) ensureLocked() error {
	if m.agg != nil {
		return nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("wakeup: open self-pipe: %w", err)
	}
	if err := setNonblock(r); err != nil {
		_ = r.Close()
		_ = w.Close()
		return fmt.Errorf("wakeup: set self-pipe read end non-blocking: %w", err)
	}
	if err := setNonblock(w); err != nil {
		_ = r.Close()
		_ = w.Close()
		return fmt.Errorf("wakeup: set self-pipe write end non-blocking: %w", err)
	}
	agg, err := reactor.NewReactor()
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return fmt.Errorf("wakeup: create aggregating reactor: %w", err)
	}
	if err := agg.Register(r.Fd(), selfUserData); err != nil {
		_ = agg.Close()
		_ = r.Close()
		_ = w.Close()
		return fmt.Errorf("wakeup: register self-pipe: %w", err)
	}
	for _, h := range m.handles {
		if h == nil {
			continue
		}
		_ = agg.Register(h.FD(), uintptr(0))
	}
	m.selfRead, m.selfWrite, m.agg = r, w, agg
	return nil
}

func (m *Multiplexer) aggFD() uintptr {
	// The platform-neutral EventReactor contract does not expose its own
	// fd; callers that need edge-triggered integration with an external
	// poller should use the self-pipe's read end directly.
	return m.selfRead.Fd()
}
