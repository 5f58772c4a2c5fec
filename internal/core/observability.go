package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock supplies timestamps for audit entries. Transactions keep their own
// clock on the store.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditStatus labels the outcome of an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures one registry operation for the audit trail.
type AuditEntry struct {
	ID        string        `json:"id"`
	Operation string        `json:"operation"`
	Entity    ResourceKind  `json:"entity"`
	EntityID  uint64        `json:"entity_id,omitempty"`
	Actor     string        `json:"actor"`
	Status    AuditStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// AuditRecorder records operation audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes per-operation outcomes and latencies.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan finishes a traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// RegistryOption configures optional registry collaborators.
type RegistryOption func(*Registry)

// WithAuditRecorder wires an audit trail recorder.
func WithAuditRecorder(rec AuditRecorder) RegistryOption {
	return func(s *Registry) { s.audit = rec }
}

// WithMetricsRecorder wires a metrics recorder.
func WithMetricsRecorder(rec MetricsRecorder) RegistryOption {
	return func(s *Registry) { s.metrics = rec }
}

// WithTracer wires a tracer.
func WithTracer(tracer Tracer) RegistryOption {
	return func(s *Registry) { s.tracer = tracer }
}

// WithClock overrides the audit clock.
func WithClock(clock Clock) RegistryOption {
	return func(s *Registry) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// begin opens a span for op and returns the completion callback invoked with
// the outcome once the transaction settles.
func (s *Registry) begin(ctx context.Context, op string, kind ResourceKind, actor string) (context.Context, func(entityID uint64, err error)) {
	start := s.clock.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, op)
	}
	return ctx, func(entityID uint64, err error) {
		duration := s.clock.Now().Sub(start)
		if span != nil {
			span.End(err)
		}
		if s.metrics != nil {
			s.metrics.Observe(ctx, op, err == nil, duration)
		}
		if s.audit != nil {
			entry := AuditEntry{
				ID:        uuid.NewString(),
				Operation: op,
				Entity:    kind,
				EntityID:  entityID,
				Actor:     actor,
				Status:    AuditStatusSuccess,
				Duration:  duration,
				Timestamp: s.clock.Now(),
			}
			if err != nil {
				entry.Status = AuditStatusError
				entry.Error = err.Error()
			}
			s.audit.Record(ctx, entry)
		}
	}
}
