// File: api/dispatch.go
//
// Defines the active-message handler plug-in contract:
// a handler receives a data pointer and a descriptor and must return
// exactly one disposition governing who owns the receive buffer
// afterward. Disposition is deliberately its own type (not an error code)
// so the two paths — synchronous consumption vs. asynchronous
// continuation — are distinguishable at the type level.

package api

// CallbackKind partitions installed AM handlers into the set that may run
// on the progress thread (Sync) and the set that may run on a
// transport-owned thread (Async). The two are represented as distinct
// values, never a runtime bool, so an async-only interface cannot
// accidentally receive a sync handler.
type CallbackKind uint8

const (
	CallbackSync CallbackKind = iota
	CallbackAsync
)

// Disposition is the handler's verdict on descriptor ownership.
type Disposition uint8

const (
	// DispositionOK means the handler consumed data synchronously; the
	// transport reclaims the receive buffer immediately upon return.
	DispositionOK Disposition = iota
	// DispositionInProgress means the handler will release the
	// descriptor later; the transport must keep the receive buffer valid
	// until Descriptor.Release is called.
	DispositionInProgress
)

func (d Disposition) String() string {
	if d == DispositionInProgress {
		return "in_progress"
	}
	return "ok"
}

// Descriptor is the receive-side handle a handler may retain across an
// IN_PROGRESS return. Release returns the underlying receive buffer to
// the transport's pool; it must be called exactly once, and only for
// descriptors retained under DispositionInProgress.
type Descriptor interface {
	// Headroom returns the rx_headroom bytes immediately preceding the
	// handler's data slice — the protocol's private scratch space.
	Headroom() []byte

	// Release returns ownership of the receive buffer to the transport.
	Release()
}

// AMHandlerFunc processes one active-message payload. ctxArg is the
// worker-supplied context argument threaded through from installation;
// data is the message payload (excluding headroom); desc is the
// descriptor underlying data, present only when the transport supports
// IN_PROGRESS continuations.
type AMHandlerFunc func(ctxArg any, data []byte, desc Descriptor) (Disposition, error)

// AMTracerFunc observes every dispatch for id, regardless of disposition.
type AMTracerFunc func(id AMID, data []byte)

// AMHandlerRecord is one immutable entry of the process-wide AM dispatch
// table. FeatureGate is intersected with
// a worker's feature set to decide whether id is active on that worker.
type AMHandlerRecord struct {
	ID          AMID
	FeatureGate FeatureFlag
	Kind        CallbackKind
	Handler     AMHandlerFunc
	Tracer      AMTracerFunc
}
