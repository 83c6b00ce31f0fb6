// File: api/transport.go
//
// Defines the transport-driver contract the worker consumes.
// The core never implements a transport itself: it opens, queries, and
// tears down driver-provided interfaces, endpoints, and wakeup handles
// through these interfaces only. Concrete drivers (shared memory, RDMA
// fabrics, loopback, ...) live outside this module; fake/ ships a
// reference implementation used by tests and the CLI.

package api

// TransportDriver enumerates and opens the resources backing one
// (transport, device) pair. A worker holds one TransportDriver per
// registered transport.
type TransportDriver interface {
	// Resources lists the resource descriptors this driver can open.
	Resources() []ResourceDescriptor

	// OpenInterface opens resource idx, optionally pinning transport
	// callback threads to cpuMask (empty mask means no affinity).
	OpenInterface(idx ResourceIndex, cpuMask CPUMask) (Interface, error)
}

// Interface is an opaque, worker-owned handle bound to one (transport,
// device) pair. Every AM handler and
// tracer registered on it must be cleared before Close.
type Interface interface {
	// Capability reports this interface's capability record.
	Capability() CapabilityRecord

	// InstallAMHandler installs handler for id with the given callback
	// kind. At most one handler may be active for (interface, id) at a
	// time; installing again replaces the previous handler.
	InstallAMHandler(id AMID, kind CallbackKind, handler AMHandlerFunc) error

	// InstallAMTracer installs an optional tracer invoked alongside the
	// handler for id.
	InstallAMTracer(id AMID, tracer AMTracerFunc) error

	// ClearAMHandler installs the no-op drop handler for id, used during
	// worker teardown.
	ClearAMHandler(id AMID) error

	// OpenWakeup opens this interface's wakeup handle. Returns
	// ErrNotSupported if the capability record lacks FeatureWakeup.
	OpenWakeup() (WakeupHandle, error)

	// PackKey serializes a local memory region into an opaque remote key
	// blob other peers can unpack.
	PackKey(region MemoryRegion) ([]byte, error)

	// UnpackKey parses a remote key blob produced by PackKey.
	UnpackKey(blob []byte) (RemoteKey, error)

	// NewEndpoint creates an endpoint. A nil remote address creates a
	// standalone endpoint (later connected via Endpoint.Connect); a
	// non-nil address connects immediately.
	NewEndpoint(remoteAddr []byte) (Endpoint, error)

	// Progress drains queued transport events, invoking installed sync
	// AM handlers and TX completion callbacks; returns the number of
	// events processed.
	Progress() int

	// Flush blocks until all outstanding operations on this interface
	// complete.
	Flush() error

	// Close tears down the interface. Must only be called after every AM
	// handler on it has been cleared.
	Close() error
}

// WakeupHandle is a per-interface readiness source aggregated into the
// worker's wakeup multiplexer.
type WakeupHandle interface {
	// FD returns the OS-level event descriptor to add to the aggregating
	// poller.
	FD() uintptr

	// Arm requests notification for the given event set. Returns
	// ErrBusy if events are already pending.
	Arm(events WakeupEvent) error

	// Close releases the wakeup handle.
	Close() error
}

// WakeupEvent is a bitmask of readiness classes a wakeup handle can arm
// for.
type WakeupEvent uint8

const (
	EventTXCompletion WakeupEvent = 1 << iota
	EventRXAM
	EventRXSignaledAM
)

// Endpoint is a connection to one remote worker, created standalone or
// wired up to a remote address.
type Endpoint interface {
	// Address returns this endpoint's local wire address, an opaque
	// length-prefixed blob the core never interprets.
	Address() ([]byte, error)

	// Connect wires this (standalone) endpoint up to a remote address.
	Connect(remoteAddr []byte) error

	// SendAM sends an active message to id on the connected peer.
	// headroom is copied into the rx_headroom region immediately
	// preceding the delivered payload; the receiving handler may read or
	// overwrite it without affecting payload.
	SendAM(id AMID, headroom, payload []byte) error

	// Flush blocks until outstanding operations on this endpoint
	// complete.
	Flush() error

	// Destroy tears the endpoint down.
	Destroy() error
}

// MemoryRegion names a local buffer registered for remote access.
type MemoryRegion struct {
	Addr uintptr
	Len  int
}

// RemoteKey is the unpacked form of a PackKey blob; Fields exposes its
// values so a packed-then-parsed key can be compared field by field against
// the one that produced it.
type RemoteKey interface {
	Fields() map[string]uint64
}
