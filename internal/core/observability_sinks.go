package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// lineLog appends records to an optional JSON-lines writer and retains them
// in memory for inspection. It backs both the audit recorder and the tracer.
type lineLog[T any] struct {
	mu   sync.Mutex
	enc  *json.Encoder
	kept []T
}

func newLineLog[T any](w io.Writer) *lineLog[T] {
	l := &lineLog[T]{}
	if w != nil {
		l.enc = json.NewEncoder(w)
	}
	return l
}

func (l *lineLog[T]) add(rec T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kept = append(l.kept, rec)
	if l.enc != nil {
		_ = l.enc.Encode(rec)
	}
}

func (l *lineLog[T]) snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.kept...)
}

// JSONAuditRecorder writes audit entries as JSON lines and retains them for
// inspection. A nil writer keeps entries in memory only.
type JSONAuditRecorder struct {
	log *lineLog[AuditEntry]
}

// NewJSONAuditRecorder constructs an audit recorder writing JSON lines to w.
func NewJSONAuditRecorder(w io.Writer) *JSONAuditRecorder {
	return &JSONAuditRecorder{log: newLineLog[AuditEntry](w)}
}

// Record implements AuditRecorder.
func (r *JSONAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	r.log.add(entry)
}

// Entries returns a copy of all recorded audit entries.
func (r *JSONAuditRecorder) Entries() []AuditEntry {
	return r.log.snapshot()
}

// TraceRecord is one finished span as written by the JSON tracer.
type TraceRecord struct {
	Operation string    `json:"operation"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Began     time.Time `json:"began"`
	ElapsedMS float64   `json:"elapsed_ms"`
}

// JSONTracer emits one TraceRecord per span as a JSON line and retains every
// record for inspection via Entries. A nil writer keeps records in memory only.
type JSONTracer struct {
	log *lineLog[TraceRecord]
}

// NewJSONTracer constructs a tracer writing finished spans as JSON lines to w.
func NewJSONTracer(w io.Writer) *JSONTracer {
	return &JSONTracer{log: newLineLog[TraceRecord](w)}
}

// Entries returns a copy of all finished spans.
func (t *JSONTracer) Entries() []TraceRecord {
	return t.log.snapshot()
}

// Start implements Tracer. The returned span captures its start time in a
// closure; the record is appended only when End runs.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	began := time.Now().UTC()
	return ctx, spanFunc(func(err error) {
		rec := TraceRecord{
			Operation: operation,
			Status:    "success",
			Began:     began,
			ElapsedMS: float64(time.Since(began)) / float64(time.Millisecond),
		}
		if err != nil {
			rec.Status = "error"
			rec.Error = err.Error()
		}
		t.log.add(rec)
	})
}

type spanFunc func(error)

func (f spanFunc) End(err error) { f(err) }

// OperationTally aggregates the outcomes of one registry operation.
type OperationTally struct {
	Success int64   `json:"success"`
	Error   int64   `json:"error"`
	TotalMS float64 `json:"total_ms"`
}

// ExpvarMetricsRecorder publishes per-operation tallies via expvar for
// deployments that prefer process-local metrics over a scrape endpoint.
type ExpvarMetricsRecorder struct {
	name    string
	mu      sync.Mutex
	tallies map[string]OperationTally
}

var expvarSeq atomic.Uint64

// NewExpvarMetricsRecorder constructs an expvar-backed recorder published
// under name. An empty name gets a generated unique one.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("registry_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, tallies: make(map[string]OperationTally)}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot returns a copy of the per-operation tallies.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationTally {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationTally, len(r.tallies))
	for op, tally := range r.tallies {
		out[op] = tally
	}
	return out
}

// Observe implements MetricsRecorder. Empty operation names are dropped.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	tally := r.tallies[operation]
	if success {
		tally.Success++
	} else {
		tally.Error++
	}
	tally.TotalMS += float64(duration) / float64(time.Millisecond)
	r.tallies[operation] = tally
	r.mu.Unlock()
}
