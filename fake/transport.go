// Package fake implements the transport-driver contract entirely
// in-process, with no real network or shared-memory I/O: active messages
// travel over Go channels, addresses are driver-local UUIDs resolved
// through a package-level registry, and remote keys echo back whatever
// memory region they were packed from. It backs the package test suite
// and the inspection CLI's selftest subcommand. Generalized from the
// teacher's byte-buffer Transport stub into the full resource contract a
// worker needs: capability records, AM handler installation, wakeup
// handles, and endpoints.
package fake

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/internal/concurrency"
	"github.com/coriolis-systems/workercore/pool"
)

// asyncPool runs async-kind AM dispatch off a small bounded worker pool
// instead of one goroutine per message, standing in for a transport's own
// callback-thread pool. numaNode -1 skips pinning: the fake transport has
// no real locality to exploit.
var asyncPool = concurrency.NewThreadPool(4, -1)

// bufPool supplies the headroom/payload copies SendAM makes before handing
// a frame to the destination interface, sized to the common small-header /
// mid-size-payload active-message shapes.
var bufPool = pool.NewBufferPool(64, 256, 4096, 65536)

// registry resolves an interface's published address (its id) back to the
// in-process interface instance, so endpoints opened by independent
// Driver instances (standing in for independent workers) can address each
// other without any real wire protocol.
var registry sync.Map // [16]byte -> *ifaceImpl

// ResourceSpec describes one resource a Driver exposes. Tests build
// topologies (multiple resources, varying priority/bandwidth/features)
// directly from these.
type ResourceSpec struct {
	TransportName string
	DeviceName    string
	MemoryDomain  int
	Priority      int
	Bandwidth     float64
	Overhead      api.Overhead
	Features      api.FeatureFlag
	AM            api.OpLimits
	MaxAMHeader   int
}

// DefaultAMLimits is a generous size-class fixture suitable for tests
// that don't care about boundary sizes.
var DefaultAMLimits = api.OpLimits{MaxShort: 64, MaxBcopy: 16 << 10, MaxZcopy: 1 << 20, MaxIov: 4}

// Driver is an in-process api.TransportDriver over a fixed set of
// resources.
type Driver struct {
	specs []ResourceSpec
}

// NewDriver creates a Driver exposing specs in order, each assigned a
// dense ResourceIndex equal to its position.
func NewDriver(specs ...ResourceSpec) *Driver {
	return &Driver{specs: specs}
}

func (d *Driver) Resources() []api.ResourceDescriptor {
	out := make([]api.ResourceDescriptor, len(d.specs))
	for i, s := range d.specs {
		out[i] = api.ResourceDescriptor{
			Index:          api.ResourceIndex(i),
			TransportName:  s.TransportName,
			DeviceName:     s.DeviceName,
			MemoryDomain:   s.MemoryDomain,
			Priority:       s.Priority,
			BandwidthBytes: s.Bandwidth,
			Overhead:       s.Overhead,
		}
	}
	return out
}

func (d *Driver) OpenInterface(idx api.ResourceIndex, cpuMask api.CPUMask) (api.Interface, error) {
	if int(idx) < 0 || int(idx) >= len(d.specs) {
		return nil, api.ErrNotFound
	}
	s := d.specs[idx]
	ifc := &ifaceImpl{
		id: newID(),
		cap: api.CapabilityRecord{
			Features:     s.Features,
			AM:           s.AM,
			MaxAMHeader:  s.MaxAMHeader,
			Priority:     s.Priority,
			Overhead:     s.Overhead,
			Bandwidth:    s.Bandwidth,
			MemoryDomain: s.MemoryDomain,
			DeviceName:   s.DeviceName,
		},
		handlers: make(map[api.AMID]api.AMHandlerRecord),
		rx:       make(chan rxFrame, 256),
	}
	registry.Store(ifc.id, ifc)
	return ifc, nil
}

var _ api.TransportDriver = (*Driver)(nil)

func newID() [16]byte {
	var id [16]byte
	_, _ = rand.Read(id[:])
	return id
}

type rxFrame struct {
	id       api.AMID
	headroom []byte
	payload  []byte
}

type descriptorImpl struct {
	frame    rxFrame
	released bool
}

// descriptorPool recycles descriptorImpl allocations across the many
// short-lived descriptors Progress hands to sync AM handlers on every
// drained frame.
var descriptorPool = pool.NewSyncPool(func() *descriptorImpl { return &descriptorImpl{} })

func (d *descriptorImpl) Headroom() []byte { return d.frame.headroom }

// Release marks the descriptor done and returns it to descriptorPool. The
// descriptor must not be touched again after this call, matching the
// ownership-transfer contract a DispositionInProgress handler agrees to.
func (d *descriptorImpl) Release() {
	d.released = true
	bufPool.Release(d.frame.headroom)
	bufPool.Release(d.frame.payload)
	d.frame = rxFrame{}
	descriptorPool.Put(d)
}

var _ api.Descriptor = (*descriptorImpl)(nil)

type ifaceImpl struct {
	id  [16]byte
	cap api.CapabilityRecord

	mu       sync.Mutex
	handlers map[api.AMID]api.AMHandlerRecord
	closed   bool

	rx     chan rxFrame
	wakeup *wakeupHandleImpl
}

func (f *ifaceImpl) Capability() api.CapabilityRecord { return f.cap }

func (f *ifaceImpl) InstallAMHandler(id api.AMID, kind api.CallbackKind, handler api.AMHandlerFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.handlers[id]
	rec.ID, rec.Kind, rec.Handler = id, kind, handler
	f.handlers[id] = rec
	return nil
}

func (f *ifaceImpl) InstallAMTracer(id api.AMID, tracer api.AMTracerFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.handlers[id]
	rec.ID, rec.Tracer = id, tracer
	f.handlers[id] = rec
	return nil
}

func (f *ifaceImpl) ClearAMHandler(id api.AMID) error {
	return f.InstallAMHandler(id, api.CallbackSync, dropHandler)
}

// dropHandler is the no-op handler installed over every active AM id
// before an interface is closed, so no callback can fire into freed
// worker state.
func dropHandler(ctxArg any, data []byte, desc api.Descriptor) (api.Disposition, error) {
	return api.DispositionOK, nil
}

func (f *ifaceImpl) OpenWakeup() (api.WakeupHandle, error) {
	if !f.cap.Features.Has(api.FeatureWakeup) {
		return nil, api.ErrNotSupported
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wakeup == nil {
		f.wakeup = newWakeupHandle(f.rx)
	}
	return f.wakeup, nil
}

func (f *ifaceImpl) PackKey(region api.MemoryRegion) ([]byte, error) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(region.Addr))
	binary.BigEndian.PutUint64(buf[8:16], uint64(region.Len))
	return buf, nil
}

func (f *ifaceImpl) UnpackKey(blob []byte) (api.RemoteKey, error) {
	if len(blob) != 16 {
		return nil, api.ErrInvalidArgument
	}
	return remoteKey{
		addr: binary.BigEndian.Uint64(blob[0:8]),
		len:  binary.BigEndian.Uint64(blob[8:16]),
	}, nil
}

func (f *ifaceImpl) NewEndpoint(remoteAddr []byte) (api.Endpoint, error) {
	ep := &endpointImpl{local: f}
	if remoteAddr != nil {
		if err := ep.Connect(remoteAddr); err != nil {
			return nil, err
		}
	}
	return ep, nil
}

// Progress drains queued receive frames, dispatching each to its
// installed handler. Async handlers are never queued here — SendAM hands
// them to the interface's async thread pool (or a fresh goroutine when the
// pool rejects the task), a stand-in for a transport-owned callback
// thread — so Progress only ever invokes sync handlers.
func (f *ifaceImpl) Progress() int {
	n := 0
	for {
		select {
		case frame := <-f.rx:
			f.dispatch(frame)
			n++
		default:
			return n
		}
	}
}

func (f *ifaceImpl) dispatch(frame rxFrame) {
	f.mu.Lock()
	rec, ok := f.handlers[frame.id]
	f.mu.Unlock()
	if !ok {
		return
	}
	desc := descriptorPool.Get()
	desc.frame = frame
	desc.released = false
	disposition := api.DispositionOK
	if rec.Handler != nil {
		disposition, _ = rec.Handler(nil, frame.payload, desc)
	}
	if rec.Tracer != nil {
		rec.Tracer(frame.id, frame.payload)
	}
	// DispositionOK is a synchronous borrow: the handler never sees desc
	// again after it returns, so reclaim it here. DispositionInProgress
	// transfers ownership to the handler, which must call Release itself.
	if disposition == api.DispositionOK {
		desc.Release()
	}
}

func (f *ifaceImpl) Flush() error { return nil }

func (f *ifaceImpl) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	registry.Delete(f.id)
	return nil
}

var _ api.Interface = (*ifaceImpl)(nil)

type remoteKey struct {
	addr uint64
	len  uint64
}

func (k remoteKey) Fields() map[string]uint64 {
	return map[string]uint64{"addr": k.addr, "len": k.len}
}

var _ api.RemoteKey = remoteKey{}

type endpointImpl struct {
	local  *ifaceImpl
	mu     sync.Mutex
	remote *ifaceImpl
}

func (e *endpointImpl) Address() ([]byte, error) {
	id := e.local.id
	return id[:], nil
}

func (e *endpointImpl) Connect(remoteAddr []byte) error {
	if len(remoteAddr) != 16 {
		return api.ErrInvalidArgument
	}
	var id [16]byte
	copy(id[:], remoteAddr)
	v, ok := registry.Load(id)
	if !ok {
		return fmt.Errorf("fake: no interface registered for address %x: %w", id, api.ErrNotFound)
	}
	e.mu.Lock()
	e.remote = v.(*ifaceImpl)
	e.mu.Unlock()
	return nil
}

func (e *endpointImpl) SendAM(id api.AMID, headroom, payload []byte) error {
	e.mu.Lock()
	remote := e.remote
	e.mu.Unlock()
	if remote == nil {
		return api.ErrTransportClosed
	}
	remote.mu.Lock()
	closed := remote.closed
	rec, hasHandler := remote.handlers[id]
	remote.mu.Unlock()
	if closed {
		return api.ErrTransportClosed
	}

	hCopy := bufPool.Acquire(len(headroom))
	copy(hCopy, headroom)
	pCopy := bufPool.Acquire(len(payload))
	copy(pCopy, payload)
	frame := rxFrame{id: id, headroom: hCopy, payload: pCopy}

	if hasHandler && rec.Kind == api.CallbackAsync {
		if err := asyncPool.Submit(func() { remote.dispatch(frame) }); err != nil {
			go remote.dispatch(frame)
		}
		return nil
	}
	select {
	case remote.rx <- frame:
		return nil
	default:
		return api.ErrNoResource
	}
}

func (e *endpointImpl) Flush() error { return nil }

func (e *endpointImpl) Destroy() error { return nil }

var _ api.Endpoint = (*endpointImpl)(nil)
