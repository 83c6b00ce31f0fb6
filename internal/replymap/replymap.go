// Package replymap implements the worker's reply-endpoint map: active
// messages that must reply to a UUID the worker hasn't resolved to a real
// endpoint yet are queued against a stub placeholder, which is promoted to
// the real endpoint once it becomes known, on the worker's progress
// thread.
package replymap

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/coriolis-systems/workercore/api"
	"github.com/coriolis-systems/workercore/logging"
)

// Resolver attempts to resolve id to a live endpoint out-of-band (e.g. by
// consulting an in-flight connection-establishment handshake). It returns
// ok=false if id is still unresolved.
type Resolver func(id uuid.UUID) (ep api.Endpoint, ok bool)

type pendingSend struct {
	fn func(api.Endpoint) error
}

// stub is a placeholder for an endpoint this worker hasn't resolved yet.
// Sends queued against it run, in FIFO order, once the map promotes it to
// a real endpoint.
type stub struct {
	mu      sync.Mutex
	pending *queue.Queue
	done    chan struct{}
	err     error
}

func newStub() *stub { return &stub{pending: queue.New(), done: make(chan struct{})} }

// Cancel abandons the stub before promotion, failing every send already
// queued against it and any future EnsureStub call for the same id that
// observes this stub before it's replaced.
func (s *stub) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return s.err
	default:
	}
	s.err = api.ErrTransportClosed
	close(s.done)
	return s.err
}

var _ api.Cancelable = (*stub)(nil)

func (s *stub) Done() <-chan struct{} { return s.done }

func (s *stub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Map is the worker's UUID-to-endpoint reply table. Resolve and EnsureStub
// are safe under the worker's normal thread-safety mode; Promote and
// ProgressStubs must run only on the progress thread, since resolution
// dereferences transport state.
type Map struct {
	mu       sync.Mutex
	stubs    map[uuid.UUID]*stub
	real     map[uuid.UUID]api.Endpoint
	resolver Resolver
	log      logging.Logger
}

// New creates an empty Map. resolver may be nil if this worker never
// resolves stubs out-of-band and relies solely on explicit Promote calls.
func New(resolver Resolver, log logging.Logger) *Map {
	if log == nil {
		log = logging.Nop()
	}
	return &Map{
		stubs:    make(map[uuid.UUID]*stub),
		real:     make(map[uuid.UUID]api.Endpoint),
		resolver: resolver,
		log:      log,
	}
}

// Resolve returns id's endpoint if already promoted.
func (m *Map) Resolve(id uuid.UUID) (api.Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.real[id]
	return ep, ok
}

// EnsureStub returns id's resolved endpoint if known; otherwise it queues
// fn to run against id's stub (creating one if this is the first send to
// an unresolved id) and returns a Cancelable the caller can use to
// abandon the send before promotion.
func (m *Map) EnsureStub(id uuid.UUID, fn func(api.Endpoint) error) (api.Endpoint, api.Cancelable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ep, ok := m.real[id]; ok {
		return ep, nil
	}
	s, ok := m.stubs[id]
	if !ok {
		s = newStub()
		m.stubs[id] = s
	}
	s.mu.Lock()
	s.pending.Add(pendingSend{fn: fn})
	s.mu.Unlock()
	return nil, s
}

// Promote binds id to ep and flushes every send queued against its stub,
// in queue order; the sends of a stub that was cancelled are dropped
// instead. Must be called from the progress thread.
func (m *Map) Promote(id uuid.UUID, ep api.Endpoint) {
	m.mu.Lock()
	s, hadStub := m.stubs[id]
	m.real[id] = ep
	delete(m.stubs, id)
	m.mu.Unlock()

	if !hadStub {
		return
	}
	s.mu.Lock()
	canceled := s.err != nil
	pending := make([]pendingSend, 0, s.pending.Length())
	for s.pending.Length() > 0 {
		pending = append(pending, s.pending.Remove().(pendingSend))
	}
	s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}

	if canceled {
		return
	}
	for _, p := range pending {
		if err := p.fn(ep); err != nil {
			m.log.Warn("stub endpoint flush failed", logging.F("id", id), logging.F("err", err))
		}
	}
}

// ProgressStubs asks the resolver about every outstanding stub and
// promotes the ones it can now resolve. Called once per progress
// iteration on the progress thread; a nil resolver makes this a no-op.
func (m *Map) ProgressStubs() {
	if m.resolver == nil {
		return
	}
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.stubs))
	for id := range m.stubs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if ep, ok := m.resolver(id); ok {
			m.Promote(id, ep)
		}
	}
}

// Len reports the number of resolved and pending entries, for diagnostics.
func (m *Map) Len() (resolved, pending int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.real), len(m.stubs)
}

// Close destroys every resolved endpoint via destroy and cancels every
// outstanding stub, then empties the map. Called during worker teardown.
func (m *Map) Close(destroy func(api.Endpoint)) {
	m.mu.Lock()
	real := m.real
	stubs := m.stubs
	m.real = make(map[uuid.UUID]api.Endpoint)
	m.stubs = make(map[uuid.UUID]*stub)
	m.mu.Unlock()

	for _, ep := range real {
		if destroy != nil {
			destroy(ep)
		}
	}
	for _, s := range stubs {
		s.Cancel()
	}
}
