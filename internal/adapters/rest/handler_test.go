package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ledgercore/internal/adapters/export"
	"ledgercore/internal/blob"
	"ledgercore/internal/core"
)

const owner = "root"

func newTestHandler(t *testing.T) (*Handler, *core.Registry) {
	t.Helper()
	reg := core.NewInMemoryRegistry(owner, nil)
	return NewHandler(reg), reg
}

func do(t *testing.T, h http.Handler, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req.Header.Set(IdentityHeader, caller)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreateLotReturnsCreated(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodPost, "/api/v1/lots", owner, `{"cost":120}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	resource, ok := body["resource"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v", body)
	}
	if resource["id"].(float64) != 1 || resource["cost"].(float64) != 120 {
		t.Fatalf("resource = %v", resource)
	}
	if resource["created_by"].(string) != owner {
		t.Fatalf("created_by = %v", resource["created_by"])
	}
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodPost, "/api/v1/lots", "", `{"cost":1}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDomainErrorStatusCodes(t *testing.T) {
	ctx := context.Background()
	h, reg := newTestHandler(t)
	if _, _, err := reg.CreateLot(ctx, owner, core.Lot{}); err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	service, _, err := reg.CreateService(ctx, owner, core.Service{Provider: "acme"})
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if _, _, err := reg.CompleteService(ctx, owner, service.ID); err == nil {
		t.Fatalf("complete before start accepted")
	}

	cases := []struct {
		name   string
		method string
		path   string
		caller string
		body   string
		want   int
	}{
		{"no permission", http.MethodPost, "/api/v1/lots", "stranger", `{"cost":1}`, http.StatusForbidden},
		{"grant not owner", http.MethodPost, "/api/v1/permissions", "stranger", `{"identity":"bob","kind":"lot"}`, http.StatusForbidden},
		{"dangling lot", http.MethodPost, "/api/v1/items", owner, `{"name":"x","lot_id":99}`, http.StatusNotFound},
		{"string too long", http.MethodPost, "/api/v1/notes", owner, `{"content":"` + strings.Repeat("a", 65) + `"}`, http.StatusUnprocessableEntity},
		{"transportation without locations", http.MethodPost, "/api/v1/processes", owner, `{"kind":"transportation"}`, http.StatusUnprocessableEntity},
		{"unsupported process kind", http.MethodPost, "/api/v1/processes", owner, `{"kind":"smelting"}`, http.StatusUnprocessableEntity},
		{"grant unknown kind", http.MethodPost, "/api/v1/permissions", owner, `{"identity":"bob","kind":"widget"}`, http.StatusUnprocessableEntity},
		{"complete before start", http.MethodPost, "/api/v1/services/1/complete", owner, ``, http.StatusConflict},
		{"bad id", http.MethodGet, "/api/v1/lots/abc", owner, ``, http.StatusBadRequest},
		{"unknown collection", http.MethodPost, "/api/v1/widgets", owner, `{}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.caller, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d want %d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestReadsReturnSentinelAndCounts(t *testing.T) {
	ctx := context.Background()
	h, reg := newTestHandler(t)
	if _, _, err := reg.CreateLot(ctx, owner, core.Lot{Cost: 7}); err != nil {
		t.Fatalf("seed lot: %v", err)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/lots/count", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("count status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["count"].(float64) != 1 {
		t.Fatalf("count body = %v", body)
	}

	// Reads are ungated and absent ids return the zero-value sentinel.
	rec = do(t, h, http.MethodGet, "/api/v1/lots/42", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("sentinel status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	resource := body["resource"].(map[string]any)
	if resource["id"].(float64) != 0 {
		t.Fatalf("sentinel resource = %v", resource)
	}
}

func TestNoteAttachmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, reg := newTestHandler(t)
	if _, _, err := reg.CreateLot(ctx, owner, core.Lot{}); err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	note, _, err := reg.CreateNote(ctx, owner, core.Note{Content: "checked"})
	if err != nil {
		t.Fatalf("seed note: %v", err)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/lots/1/notes", owner, `{"note_id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("attach status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/lots/1/notes", "", ``)
	body := decodeBody(t, rec)
	ids := body["note_ids"].([]any)
	if len(ids) != 1 || ids[0].(float64) != float64(note.ID) {
		t.Fatalf("note ids = %v", ids)
	}
}

func TestComponentAndProcessSubresources(t *testing.T) {
	ctx := context.Background()
	h, reg := newTestHandler(t)
	lot, _, _ := reg.CreateLot(ctx, owner, core.Lot{})
	if _, _, err := reg.CreateItem(ctx, owner, core.Item{Name: "parent", LotID: lot.ID}); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if _, _, err := reg.CreateItem(ctx, owner, core.Item{Name: "child", LotID: lot.ID}); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if _, _, err := reg.CreateService(ctx, owner, core.Service{Provider: "acme"}); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if _, _, err := reg.CreateProcess(ctx, owner, core.Process{Kind: core.ProcessProduction}); err != nil {
		t.Fatalf("seed process: %v", err)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/items/1/components", owner, `{"component_id":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add component status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/api/v1/items/2/components", "", ``)
	body := decodeBody(t, rec)
	if body["is_component"].(bool) != true {
		t.Fatalf("component marker body = %v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/processes/1/services", owner, `{"service_id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign service status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/processes/1/items", owner, `{"item_id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign item status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/processes/1/items", owner, `{"wrong_field":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing field status = %d", rec.Code)
	}

	// Components only exist on items, services/items only on processes.
	rec = do(t, h, http.MethodGet, "/api/v1/lots/1/components", "", ``)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("lot components status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/items/1/services", "", ``)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("item services status = %d", rec.Code)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	h, reg := newTestHandler(t)
	if _, _, err := reg.CreateService(ctx, owner, core.Service{Provider: "acme"}); err != nil {
		t.Fatalf("seed service: %v", err)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/services/1/start", owner, ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	resource := body["resource"].(map[string]any)
	if resource["status"].(string) != string(core.ServiceStatusInProgress) {
		t.Fatalf("status after start = %v", resource["status"])
	}

	rec = do(t, h, http.MethodPost, "/api/v1/services/1/complete", owner, ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/services/1/start", owner, ``)
	if rec.Code != http.StatusConflict {
		t.Fatalf("restart status = %d", rec.Code)
	}

	// Lifecycle endpoints exist only for services and processes.
	rec = do(t, h, http.MethodPost, "/api/v1/lots/1/start", owner, ``)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("lot start status = %d", rec.Code)
	}
}

func TestGrantOpensKindForIdentity(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/v1/notes", "alice", `{"content":"hi"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("pre-grant status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/permissions", owner, `{"identity":"alice","kind":"note"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("grant status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/notes", "alice", `{"content":"hi"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("post-grant status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestExportEndpoints(t *testing.T) {
	h, reg := newTestHandler(t)

	// Exports 404 until a worker is attached.
	rec := do(t, h, http.MethodPost, "/api/v1/exports", owner, `{}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no worker status = %d", rec.Code)
	}

	source := reg.Store().(*core.MemoryStore)
	worker := export.NewWorker(source, blob.NewMemory(), nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()
	h.Exports = worker

	rec = do(t, h, http.MethodPost, "/api/v1/exports", owner, `{"reason":"audit"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	record := body["export"].(map[string]any)
	id := record["id"].(string)
	if record["requested_by"].(string) != owner {
		t.Fatalf("export record = %v", record)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/exports", "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if exports := decodeBody(t, rec)["exports"].([]any); len(exports) != 1 {
		t.Fatalf("exports = %v", exports)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/exports/"+id, "", ``)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/exports/missing", "", ``)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing export status = %d", rec.Code)
	}
}
