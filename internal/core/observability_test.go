package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ledgercore/pkg/domain"
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
}

func (r *captureAuditRecorder) Entries() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

type metricSample struct {
	operation string
	success   bool
	duration  time.Duration
}

type captureMetricsRecorder struct {
	mu      sync.Mutex
	samples []metricSample
}

func (r *captureMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	r.mu.Lock()
	r.samples = append(r.samples, metricSample{operation, success, duration})
	r.mu.Unlock()
}

type captureSpan struct {
	operation string
	tracer    *captureTracer
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	s.tracer.ended = append(s.tracer.ended, spanEnd{s.operation, err})
	s.tracer.mu.Unlock()
}

type spanEnd struct {
	operation string
	err       error
}

type captureTracer struct {
	mu      sync.Mutex
	started []string
	ended   []spanEnd
}

func (t *captureTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	t.mu.Lock()
	t.started = append(t.started, operation)
	t.mu.Unlock()
	return ctx, &captureSpan{operation: operation, tracer: t}
}

func TestRegistryEmitsAuditMetricsAndTraces(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	fixed := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	reg := NewInMemoryRegistry(testOwner, nil,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	lot := mustCreateLot(t, reg, testOwner, 10)
	if _, _, err := reg.CreateItem(ctx, "stranger", Item{Name: "x", LotID: lot.ID}); err == nil {
		t.Fatalf("expected denial")
	}

	entries := audit.Entries()
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d", len(entries))
	}
	ok, denied := entries[0], entries[1]
	if ok.Operation != "create_lot" || ok.Status != AuditStatusSuccess || ok.EntityID != lot.ID {
		t.Fatalf("success entry: %+v", ok)
	}
	if ok.Actor != testOwner || ok.Entity != KindLot || !ok.Timestamp.Equal(fixed) {
		t.Fatalf("success entry fields: %+v", ok)
	}
	if ok.ID == "" || ok.ID == denied.ID {
		t.Fatalf("audit ids not unique: %q %q", ok.ID, denied.ID)
	}
	if denied.Operation != "create_item" || denied.Status != AuditStatusError || denied.Error == "" {
		t.Fatalf("error entry: %+v", denied)
	}

	if len(metrics.samples) != 2 {
		t.Fatalf("metric samples = %d", len(metrics.samples))
	}
	if !metrics.samples[0].success || metrics.samples[1].success {
		t.Fatalf("metric outcomes: %+v", metrics.samples)
	}

	if len(tracer.started) != 2 || len(tracer.ended) != 2 {
		t.Fatalf("spans started=%d ended=%d", len(tracer.started), len(tracer.ended))
	}
	if tracer.ended[0].err != nil || tracer.ended[1].err == nil {
		t.Fatalf("span outcomes: %+v", tracer.ended)
	}
}

func TestJSONAuditRecorderWritesLines(t *testing.T) {
	var buf bytes.Buffer
	rec := NewJSONAuditRecorder(&buf)
	reg := NewInMemoryRegistry(testOwner, nil, WithAuditRecorder(rec))

	mustCreateLot(t, reg, testOwner, 1)
	mustCreateLot(t, reg, testOwner, 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d: %q", len(lines), buf.String())
	}
	var entry AuditEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Operation != "create_lot" || entry.Status != AuditStatusSuccess {
		t.Fatalf("decoded entry: %+v", entry)
	}
	if got := rec.Entries(); len(got) != 2 {
		t.Fatalf("retained entries = %d", len(got))
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	reg := NewInMemoryRegistry(testOwner, nil, WithTracer(tracer))

	mustCreateLot(t, reg, testOwner, 1)
	if _, _, err := reg.StartService(context.Background(), testOwner, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("start missing service: %v", err)
	}

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("spans = %d", len(entries))
	}
	if entries[0].Operation != "create_lot" || entries[0].Status != "success" {
		t.Fatalf("first span: %+v", entries[0])
	}
	if entries[1].Operation != "start_service" || entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("second span: %+v", entries[1])
	}
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Fatalf("encoded lines = %d", got)
	}
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()
	rec.Observe(ctx, "create_lot", true, 20*time.Millisecond)
	rec.Observe(ctx, "create_lot", true, 30*time.Millisecond)
	rec.Observe(ctx, "create_lot", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	tally := snap["create_lot"]
	if tally.TotalMS != 55 {
		t.Fatalf("total ms = %v", tally.TotalMS)
	}
	if tally.Success != 2 || tally.Error != 1 {
		t.Fatalf("tally = %+v", tally)
	}
	if _, ok := snap[""]; ok {
		t.Fatalf("empty operation recorded")
	}
	if rec.Name() == "" {
		t.Fatalf("generated name empty")
	}
}

func TestPrometheusMetricsRecorderObserves(t *testing.T) {
	promReg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(promReg)
	if err != nil {
		t.Fatalf("build recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "create_item", true, 10*time.Millisecond)
	rec.Observe(ctx, "create_item", false, 10*time.Millisecond)

	families, err := promReg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	if !found["ledgercore_registry_operation_duration_seconds"] {
		t.Fatalf("duration histogram missing: %v", found)
	}
	if !found["ledgercore_registry_operation_results_total"] {
		t.Fatalf("results counter missing: %v", found)
	}

	// Registering the same collectors twice must fail.
	if _, err := NewPrometheusMetricsRecorder(promReg); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
}
