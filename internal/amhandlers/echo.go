// Package amhandlers holds the active-message handlers registered onto
// the process-wide dispatch table at init time — the realization, in Go,
// of a link-time handler registration table: a worker never constructs
// handlers itself, it only decides (via its feature set) which of these
// pre-registered ids are active.
package amhandlers

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/internal/dispatch"
)

// AMIDEcho is the active-message id the many-to-one benchmark scenario
// sends on.
const AMIDEcho api.AMID = 1

// Sentinel is the fixed 8-byte value every sender stamps into a message's
// headroom; the receiver checks it survives transport delivery
// unmodified.
const Sentinel uint64 = 0xdeadbeef12345678

// Stored is one deferred (IN_PROGRESS) message retained past handler
// return, until drained and released.
type Stored struct {
	Headroom []byte
	Payload  []byte
	desc     api.Descriptor
}

// Release returns the underlying receive buffer to the transport.
func (s Stored) Release() { s.desc.Release() }

// Echo is the process-wide echo handler bound to AMIDEcho: every fourth
// invocation defers its descriptor instead of consuming synchronously,
// exercising both disposition paths.
type Echo struct {
	mu     sync.Mutex
	stored []Stored

	invocations atomic.Int64
	checksOK    atomic.Int64
	checksFail  atomic.Int64
}

var echo = &Echo{}

func init() {
	dispatch.Register(api.AMHandlerRecord{
		ID:          AMIDEcho,
		FeatureGate: api.FeatureAMBcopy,
		Kind:        api.CallbackSync,
		Handler:     echo.handle,
	})
}

// Instance returns the process-wide echo handler.
func Instance() *Echo { return echo }

func (h *Echo) handle(ctxArg any, data []byte, desc api.Descriptor) (api.Disposition, error) {
	n := h.invocations.Add(1)
	if n%4 == 0 {
		h.mu.Lock()
		h.stored = append(h.stored, Stored{
			Headroom: append([]byte(nil), desc.Headroom()...),
			Payload:  append([]byte(nil), data...),
			desc:     desc,
		})
		h.mu.Unlock()
		return api.DispositionInProgress, nil
	}
	h.checkSentinel(desc.Headroom(), data)
	return api.DispositionOK, nil
}

func (h *Echo) checkSentinel(headroom, payload []byte) bool {
	ok := len(headroom) >= 8 && binary.BigEndian.Uint64(headroom[:8]) == Sentinel && len(payload) > 0
	if ok {
		h.checksOK.Add(1)
	} else {
		h.checksFail.Add(1)
	}
	return ok
}

// DrainStored releases every deferred message, verifying its sentinel
// first; returns the number verified.
func (h *Echo) DrainStored() int {
	h.mu.Lock()
	stored := h.stored
	h.stored = nil
	h.mu.Unlock()

	n := 0
	for _, s := range stored {
		if h.checkSentinel(s.Headroom, s.Payload) {
			n++
		}
		s.Release()
	}
	return n
}

// Stats reports invocation and sentinel-check counts, for assertions.
func (h *Echo) Stats() (invocations, checksOK, checksFail int64) {
	return h.invocations.Load(), h.checksOK.Load(), h.checksFail.Load()
}

// Reset clears counters and stored descriptors, for reuse across test
// cases since the dispatch table permits only one registration per AM id.
func (h *Echo) Reset() {
	h.mu.Lock()
	h.stored = nil
	h.mu.Unlock()
	h.invocations.Store(0)
	h.checksOK.Store(0)
	h.checksFail.Store(0)
}

// StampHeadroom encodes Sentinel into an 8-byte headroom buffer, the
// sender side of the round trip DrainStored/checkSentinel verify.
func StampHeadroom() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, Sentinel)
	return buf
}
