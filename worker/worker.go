// Package worker binds the capability registry, interface pool, active
// message dispatch table, wakeup multiplexer, endpoint configuration
// cache, atomic resource selector, and reply-endpoint map into the single
// public Worker abstraction.
package worker

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/config"
	"github.com/coriolis-systems/workercore/control"
	"github.com/coriolis-systems/workercore/internal/asyncctx"
	"github.com/coriolis-systems/workercore/internal/atomicsel"
	"github.com/coriolis-systems/workercore/internal/capability"
	"github.com/coriolis-systems/workercore/internal/dispatch"
	"github.com/coriolis-systems/workercore/internal/epconfig"
	"github.com/coriolis-systems/workercore/internal/iface"
	"github.com/coriolis-systems/workercore/internal/replymap"
	"github.com/coriolis-systems/workercore/internal/reqpool"
	"github.com/coriolis-systems/workercore/internal/tracing"
	"github.com/coriolis-systems/workercore/internal/wakeup"
	"github.com/coriolis-systems/workercore/logging"
)

var uidCounter atomic.Uint64

// nextUID derives a 64-bit identity from w's address (its identity as a Go
// object) folded with a monotonic counter, so two workers never collide
// even if allocated at the same address after one is freed.
func nextUID(w *Worker) uint64 {
	addr := uint64(uintptr(unsafe.Pointer(w)))
	seq := uidCounter.Add(1)
	return addr ^ (seq << 32) ^ seq
}

// Worker is a scheduling/progress domain owning one or more transport
// interfaces.
type Worker struct {
	mu         sync.Locker
	threadMode api.ThreadMode
	lockKind   api.LockKind
	uid        uint64
	name       string
	cpuMask    api.CPUMask

	inprogress atomic.Int32
	destroyed  atomic.Bool

	reg       *capability.Registry
	ifaces    *iface.Pool
	installer *dispatch.Installer
	wake      *wakeup.Multiplexer
	epCache   *epconfig.Cache
	atomicTLS uint64
	replyMap  *replymap.Map
	reqPool   *reqpool.Pool
	async     *asyncctx.Context
	tracer    *tracing.Tracer

	listenMu  sync.Mutex
	listenEPs []api.Endpoint

	progressCalls atomic.Int64
	signalCount   atomic.Int64

	metrics *control.MetricsRegistry
	probes  *control.DebugProbes

	log logging.Logger
}

var (
	_ api.Control          = (*Worker)(nil)
	_ api.GracefulShutdown = (*Worker)(nil)
	_ api.Debug            = (*Worker)(nil)
)

// Create builds a Worker over drivers per cfg, in the order: thread mode,
// identity, reply map, resource registry, request pool, interface pool,
// wakeup multiplexer, endpoint-configuration cache, AM handler
// installation, atomic resource selection, async progress context. Any
// failure rolls back everything already built, in reverse order.
func Create(cfg config.Config, drivers []api.TransportDriver, log logging.Logger) (w *Worker, err error) {
	if log == nil {
		log = logging.Nop()
	}
	w = &Worker{
		log:     log,
		cpuMask: cfg.Params.CPUMask,
		metrics: control.NewMetricsRegistry(),
		probes:  control.NewDebugProbes(),
	}

	w.threadMode = cfg.Params.ThreadMode
	w.lockKind = cfg.Params.LockKind
	switch {
	case w.threadMode == api.ThreadModeSingle:
		w.mu = noopLock{}
	case w.lockKind == api.LockMutex:
		w.mu = &sync.Mutex{}
	default:
		w.mu = &spinlock{}
	}

	w.uid = nextUID(w)
	host, hostErr := os.Hostname()
	if hostErr != nil {
		host = "unknown-host"
	}
	w.name = fmt.Sprintf("%s:%d", host, os.Getpid())

	w.replyMap = replymap.New(nil, log)

	w.reg = capability.Build(drivers, cfg.TransportAllowList)
	numTLS := w.reg.NumTLS()

	var rollbacks []func()
	defer func() {
		if err != nil {
			for i := len(rollbacks) - 1; i >= 0; i-- {
				rollbacks[i]()
			}
		}
	}()

	w.reqPool = reqpool.New(cfg.RequestHeaderSize, cfg.Params.RequestTrailerSize)

	pool, openErr := iface.Open(w.reg, cfg.Params.CPUMask)
	if openErr != nil {
		err = fmt.Errorf("worker: open interfaces: %w", openErr)
		return nil, err
	}
	w.ifaces = pool
	rollbacks = append(rollbacks, pool.Close)

	handles := make([]api.WakeupHandle, numTLS)
	for i := 0; i < numTLS; i++ {
		handles[i] = pool.Wakeup(api.ResourceIndex(i))
	}
	w.wake = wakeup.New(handles)
	rollbacks = append(rollbacks, func() { _ = w.wake.Close() })

	limit := cfg.EPConfigLimit
	if limit == 0 {
		limit = cfg.Params.EPConfigLimit
	}
	if limit == 0 {
		limit = epconfig.DefaultLimit(numTLS)
	}
	w.epCache = epconfig.New(limit, nil)

	w.tracer = tracing.New()
	w.installer = dispatch.NewInstaller(cfg.Params.RequestedFeatures, dispatch.Table(), log)
	for i := 0; i < numTLS; i++ {
		idx := api.ResourceIndex(i)
		ifc := pool.Interface(idx)
		if instErr := w.installer.InstallOn(ifc, pool.Capability(idx)); instErr != nil {
			err = fmt.Errorf("worker: install AM handlers on resource %d: %w", idx, instErr)
			return nil, err
		}
		traceFn := w.tracer.TraceAM()
		for _, id := range w.installer.ActiveIDs() {
			if tracerErr := ifc.InstallAMTracer(id, traceFn); tracerErr != nil {
				err = fmt.Errorf("worker: install AM tracer for id %d on resource %d: %w", id, idx, tracerErr)
				return nil, err
			}
		}
	}
	rollbacks = append(rollbacks, func() {
		for _, ifc := range pool.All() {
			if ifc != nil {
				w.installer.DropAll(ifc)
			}
		}
	})
	w.RegisterDebugProbe("trace_spans", func() any {
		started, finished := w.tracer.Counts()
		return map[string]int64{"started": started, "finished": finished}
	})

	w.atomicTLS = atomicsel.Select(cfg.Params.AtomicMode, pool, cfg.Params.RequestedFeatures, log)

	w.async = asyncctx.Start(w.progressAsyncStep, cfg.Params.CPUMask)
	rollbacks = append(rollbacks, w.async.Stop)

	return w, nil
}

// progressAsyncStep is the async progress context's unit of work. Stub
// promotion itself (replyMap.ProgressStubs) must only run on the progress
// thread, since it flushes sends that dereference transport state — so
// this goroutine never calls it directly. Instead, whenever stubs are
// outstanding it nudges the worker's wakeup multiplexer, so a caller
// blocked in Wait returns and drives Progress (which calls ProgressStubs
// itself) rather than stub promotion waiting on an unrelated event to
// wake that caller up. It never runs application-installed AM handlers
// directly — those execute either synchronously inside Progress or on a
// transport-owned thread per the installed handler's CallbackKind.
func (w *Worker) progressAsyncStep() bool {
	_, pending := w.replyMap.Len()
	if pending == 0 {
		return false
	}
	_ = w.wake.Signal()
	return false
}

// Destroy tears the worker down: it removes every AM handler (installing
// the drop handler in its place) before closing any interface, then
// destroys reply-map endpoints, closes interfaces (and their wakeup
// handles), stops the async progress context, and releases the wakeup
// multiplexer. Best effort throughout; no step aborts the remaining
// teardown.
func (w *Worker) Destroy() {
	if !w.destroyed.CompareAndSwap(false, true) {
		return
	}
	if w.ifaces != nil {
		for _, ifc := range w.ifaces.All() {
			if ifc != nil {
				w.installer.DropAll(ifc)
			}
		}
	}
	w.listenMu.Lock()
	for _, ep := range w.listenEPs {
		if err := ep.Destroy(); err != nil {
			w.log.Warn("teardown: destroy listen endpoint failed", logging.F("err", err))
		}
	}
	w.listenEPs = nil
	w.listenMu.Unlock()

	w.replyMap.Close(func(ep api.Endpoint) {
		if err := ep.Destroy(); err != nil {
			w.log.Warn("teardown: destroy reply endpoint failed", logging.F("err", err))
		}
	})
	if w.ifaces != nil {
		w.ifaces.Close()
	}
	if w.async != nil {
		w.async.Stop()
	}
	if w.wake != nil {
		if err := w.wake.Close(); err != nil {
			w.log.Warn("teardown: close wakeup multiplexer failed", logging.F("err", err))
		}
	}
}

// Shutdown implements api.GracefulShutdown.
func (w *Worker) Shutdown() error {
	w.Destroy()
	return nil
}

// Query reports the worker's effective, queryable state.
func (w *Worker) Query() api.Attr {
	numTLS := 0
	if w.ifaces != nil {
		numTLS = w.ifaces.NumTLS()
	}
	return api.Attr{
		ThreadMode: w.threadMode,
		NumTLS:     numTLS,
		UID:        w.uid,
		Name:       w.name,
	}
}

// Progress drains transport events across every interface, invoking sync
// AM handlers and TX completion callbacks along the way, then runs
// stub-endpoint promotion (replyMap.ProgressStubs), which happens nowhere
// else. Not reentrant: a nested call from within a handler it invoked
// panics under ThreadModeSingle, and blocks on the worker lock under
// ThreadModeMulti.
func (w *Worker) Progress() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.inprogress.CompareAndSwap(0, 1) {
		panic("worker: progress is not reentrant")
	}
	defer w.inprogress.Store(0)

	n := w.progressCalls.Add(1)
	total := 0
	for _, ifc := range w.ifaces.All() {
		if ifc == nil {
			continue
		}
		total += ifc.Progress()
	}
	w.replyMap.ProgressStubs()
	w.metrics.Set("progress_calls", n)
	w.metrics.Set("last_progress_drained", total)
	return total
}

// GetEFD lazily builds the wakeup multiplexer and returns the read end of
// its self-pipe. That fd becomes readable on Signal only; interface
// readiness is not reported through it (Wait covers both). Safe to call
// repeatedly; the descriptor is cached after the first call.
func (w *Worker) GetEFD() (uintptr, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wake.FD()
}

// Arm requests notification on every per-interface wakeup handle and
// drains the self-pipe. Returns api.ErrBusy if events were already
// pending; the caller should re-progress instead of calling Wait.
func (w *Worker) Arm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := api.EventTXCompletion | api.EventRXAM | api.EventRXSignaledAM
	return w.wake.Arm(events)
}

// Wait arms the worker and blocks on the aggregating event descriptor
// until at least one event is ready. If Arm reports events were already
// pending, Wait returns immediately without blocking.
func (w *Worker) Wait() error {
	if err := w.Arm(); err != nil {
		if err == api.ErrBusy {
			return nil
		}
		return err
	}
	return w.wake.Wait()
}

// Signal wakes a blocked Wait from any thread by writing one byte to the
// self-pipe.
func (w *Worker) Signal() error {
	n := w.signalCount.Add(1)
	w.metrics.Set("signal_count", n)
	return w.wake.Signal()
}

// GetAddress publishes this worker's wire address: a length-prefixed
// concatenation of one standalone endpoint's address per interface. Each
// entry is tagged with its resource index so a peer's connect call can
// route to the matching interface. The core never interprets the
// per-interface address bytes themselves.
func (w *Worker) GetAddress() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []byte
	for i := 0; i < w.ifaces.NumTLS(); i++ {
		idx := api.ResourceIndex(i)
		ifc := w.ifaces.Interface(idx)
		if ifc == nil {
			continue
		}
		ep, err := ifc.NewEndpoint(nil)
		if err != nil {
			return nil, fmt.Errorf("worker: open listen endpoint on resource %d: %w", idx, err)
		}
		addr, err := ep.Address()
		if err != nil {
			_ = ep.Destroy()
			return nil, fmt.Errorf("worker: get address on resource %d: %w", idx, err)
		}
		w.listenMu.Lock()
		w.listenEPs = append(w.listenEPs, ep)
		w.listenMu.Unlock()

		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[0:4], uint32(idx))
		binary.BigEndian.PutUint32(hdr[4:8], uint32(len(addr)))
		out = append(out, hdr[:]...)
		out = append(out, addr...)
	}
	return out, nil
}

// ReleaseAddress is a no-op kept for symmetry with GetAddress: the listen
// endpoints GetAddress opens stay open until Destroy, and the returned
// byte slice needs no release.
func (w *Worker) ReleaseAddress(addr []byte) {}

// GetReplyEp returns peerUID's endpoint, creating and queuing against a
// stub placeholder if the wire-up protocol hasn't resolved it yet.
func (w *Worker) GetReplyEp(peerUID uuid.UUID) (api.Endpoint, api.Cancelable) {
	if ep, ok := w.replyMap.Resolve(peerUID); ok {
		return ep, nil
	}
	return w.replyMap.EnsureStub(peerUID, func(api.Endpoint) error { return nil })
}

// AllocateReply acquires a request-pool element for a reply to peerUID.
// Acquire never fails under normal operation; a failure here is a process
// invariant violation and is reported as fatal by panicking rather than
// through a Status-carrying error.
func (w *Worker) AllocateReply(peerUID uuid.UUID) api.RequestElement {
	el := w.reqPool.Acquire()
	if el == nil {
		panic("worker: request pool exhausted")
	}
	return el
}

// GetEPConfig deduplicates key against previously seen endpoint
// configurations, returning a small stable index into the worker's
// endpoint-configuration table.
func (w *Worker) GetEPConfig(key epconfig.Key) int {
	return w.epCache.GetOrInsert(key)
}

// PrintInfo renders a human-readable dump of the worker's capability
// records, AM dispatch occupancy, and atomic-resource selection to out.
func (w *Worker) PrintInfo(out *strings.Builder) {
	fmt.Fprintf(out, "worker %s uid=%#x thread_mode=%s num_tls=%d\n",
		w.name, w.uid, w.threadMode, w.ifaces.NumTLS())
	for i := 0; i < w.ifaces.NumTLS(); i++ {
		idx := api.ResourceIndex(i)
		desc := w.reg.Descriptor(idx)
		cap := w.ifaces.Capability(idx)
		atomicEnabled := w.atomicTLS&(1<<uint(i)) != 0
		fmt.Fprintf(out, "  [%d] %s/%s priority=%d bandwidth=%.0f overhead=%s atomic=%v wakeup=%v\n",
			idx, desc.TransportName, desc.DeviceName, cap.Priority, cap.Bandwidth,
			time.Duration(cap.Overhead), atomicEnabled, w.ifaces.Wakeup(idx) != nil)
	}
	ids := w.installer.ActiveIDs()
	fmt.Fprintf(out, "  active AM ids: %v\n", ids)
	resolved, pending := w.replyMap.Len()
	fmt.Fprintf(out, "  reply map: resolved=%d pending=%d\n", resolved, pending)
	fmt.Fprintf(out, "  request pool: %+v\n", w.reqPool.Stats())
}

// GetConfig implements api.Control.
func (w *Worker) GetConfig() map[string]any {
	return map[string]any{
		"thread_mode": w.threadMode.String(),
		"num_tls":     w.ifaces.NumTLS(),
		"atomic_tls":  w.atomicTLS,
	}
}

// Stats implements api.Control: it merges the metrics registry's snapshot
// with the reply map and request pool counters, then every registered
// debug probe's current value.
func (w *Worker) Stats() map[string]any {
	resolved, pending := w.replyMap.Len()
	out := w.metrics.GetSnapshot()
	out["reply_map_resolved"] = resolved
	out["reply_map_pending"] = pending
	out["request_pool"] = w.reqPool.Stats()
	for name, value := range w.probes.DumpState() {
		out[name] = value
	}
	return out
}

// RegisterDebugProbe implements api.Control and api.Debug: fn is invoked on
// every subsequent Stats or DumpState call and its result included under
// name.
func (w *Worker) RegisterDebugProbe(name string, fn func() any) {
	w.probes.RegisterProbe(name, fn)
}

// DumpState implements api.Debug, returning only the registered debug
// probes' current values without the metrics registry's counters.
func (w *Worker) DumpState() map[string]any {
	return w.probes.DumpState()
}
