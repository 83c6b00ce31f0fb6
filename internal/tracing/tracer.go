// Package tracing implements api.Tracer/api.Span for active-message
// dispatch: every handler invocation traced via InstallAMTracer opens a
// span, tags it with the AM id and payload size, and finishes it once the
// handler returns. Kept process-local — Inject/Extract round-trip a span's
// tags through a plain map rather than any wire propagation format.
package tracing

import (
	"sync"
	"sync/atomic"

	"github.com/coriolis-systems/workercore/api"
)

type span struct {
	name     string
	mu       sync.Mutex
	tags     map[string]any
	logs     []map[string]any
	finished bool
}

func (s *span) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

func (s *span) SetTag(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[key] = value
}

func (s *span) Log(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, fields)
}

func (s *span) Context() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make(map[string]any, len(s.tags))
	for k, v := range s.tags {
		tags[k] = v
	}
	return map[string]any{"name": s.name, "tags": tags}
}

var _ api.Span = (*span)(nil)

// Tracer is a process-local api.Tracer that counts spans it starts and
// finishes, for introspection via DumpState/Stats.
type Tracer struct {
	started  atomic.Int64
	finished atomic.Int64
}

// New creates an empty Tracer.
func New() *Tracer { return &Tracer{} }

func (t *Tracer) StartSpan(name string, _ ...api.SpanOption) api.Span {
	t.started.Add(1)
	return &span{name: name, tags: map[string]any{}}
}

func (t *Tracer) Inject(s api.Span, carrier map[string]any) {
	carrier["trace"] = s.Context()
}

func (t *Tracer) Extract(carrier map[string]any) (api.Span, error) {
	ctx, _ := carrier["trace"].(map[string]any)
	name, _ := ctx["name"].(string)
	tags, _ := ctx["tags"].(map[string]any)
	if tags == nil {
		tags = map[string]any{}
	}
	return &span{name: name, tags: tags}, nil
}

// Counts reports how many spans this tracer has started and how many
// TraceAM spans it has finished; a span from StartSpan that its caller
// finishes is not counted as finished.
func (t *Tracer) Counts() (started, finished int64) {
	return t.started.Load(), t.finished.Load()
}

// TraceAM returns an api.AMTracerFunc that opens and immediately finishes
// one span per traced dispatch, tagged with the AM id and payload size.
func (t *Tracer) TraceAM() api.AMTracerFunc {
	return func(id api.AMID, payload []byte) {
		s := t.StartSpan("am.dispatch")
		s.SetTag("am_id", id)
		s.SetTag("bytes", len(payload))
		s.Finish()
		t.finished.Add(1)
	}
}

var _ api.Tracer = (*Tracer)(nil)
