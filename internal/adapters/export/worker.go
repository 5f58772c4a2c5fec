// Package export runs asynchronous registry snapshot exports, archiving the
// full serialized state to a blob store.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledgercore/internal/blob"
	"ledgercore/internal/core"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record tracks an export request and its resulting archive.
type Record struct {
	ID          string     `json:"id"`
	RequestedBy string     `json:"requested_by"`
	Reason      string     `json:"reason,omitempty"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Key         string     `json:"key,omitempty"`
	SizeBytes   int64      `json:"size_bytes,omitempty"`
	URL         string     `json:"url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input represents an enqueue request for the worker.
type Input struct {
	RequestedBy string
	Reason      string
}

// SnapshotSource supplies the serialized registry state. All persistent store
// implementations satisfy it.
type SnapshotSource interface {
	ExportState() core.Snapshot
}

// Worker executes snapshot exports asynchronously.
type Worker struct {
	source SnapshotSource
	store  blob.Store
	audit  core.AuditRecorder

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs an export worker writing archives to store.
func NewWorker(source SnapshotSource, store blob.Store, audit core.AuditRecorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan string, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue schedules a snapshot export and returns the queued record.
func (w *Worker) Enqueue(_ context.Context, input Input) (Record, error) {
	if w.store == nil {
		return Record{}, fmt.Errorf("export blob store not configured")
	}
	if w.ctx.Err() != nil {
		return Record{}, fmt.Errorf("export worker stopped")
	}
	now := time.Now().UTC()
	record := Record{
		ID:          uuid.NewString(),
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = &record
	queued := record
	w.mu.Unlock()

	select {
	case w.queue <- record.ID:
	default:
		// The record must not linger as a phantom queued entry.
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return Record{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// List returns all export records, most recent first.
func (w *Worker) List() []Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Record, 0, len(w.jobs))
	for _, record := range w.jobs {
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (w *Worker) process(id string) {
	w.setStatus(id, StatusRunning, "")

	snapshot := w.source.ExportState()
	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		w.fail(id, fmt.Sprintf("encode snapshot: %v", err))
		return
	}

	key := "snapshots/" + id + ".json"
	metadata := map[string]string{
		"requested_by": w.requestedBy(id),
		"lots":         strconv.Itoa(len(snapshot.Lots)),
		"items":        strconv.Itoa(len(snapshot.Items)),
		"services":     strconv.Itoa(len(snapshot.Services)),
		"processes":    strconv.Itoa(len(snapshot.Processes)),
	}
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    metadata,
	})
	if err != nil {
		w.fail(id, fmt.Sprintf("store snapshot: %v", err))
		return
	}
	url := info.URL
	if signed, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil && signed != "" {
		url = signed
	}
	w.complete(id, key, info.Size, url)
}

func (w *Worker) requestedBy(id string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if record, ok := w.jobs[id]; ok {
		return record.RequestedBy
	}
	return ""
}

func (w *Worker) setStatus(id string, status Status, message string) {
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = time.Now().UTC()
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id, key string, size int64, url string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor string
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Key = key
		record.SizeBytes = size
		record.URL = url
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	w.record(actor, "", now)
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor string
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	w.record(actor, reason, now)
}

func (w *Worker) record(actor, errMsg string, at time.Time) {
	if w.audit == nil {
		return
	}
	entry := core.AuditEntry{
		ID:        uuid.NewString(),
		Operation: "export_snapshot",
		Actor:     actor,
		Status:    core.AuditStatusSuccess,
		Timestamp: at,
	}
	if errMsg != "" {
		entry.Status = core.AuditStatusError
		entry.Error = errMsg
	}
	w.audit.Record(w.ctx, entry)
}
