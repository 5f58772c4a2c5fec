// Package rest provides HTTP access to the registry: entity creation,
// permission grants, relationship attachment, lifecycle transitions, and
// reads. Caller identity travels in the X-Ledger-Identity header.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ledgercore/internal/adapters/export"
	"ledgercore/internal/core"
	"ledgercore/pkg/domain"
)

// IdentityHeader carries the caller identity on every request.
const IdentityHeader = "X-Ledger-Identity"

// Handler routes registry API requests.
type Handler struct {
	Registry *core.Registry
	Exports  *export.Worker
}

// NewHandler constructs a registry HTTP handler.
func NewHandler(registry *core.Registry) *Handler {
	return &Handler{Registry: registry}
}

var pathKinds = map[string]domain.ResourceKind{
	"lots":      domain.KindLot,
	"items":     domain.KindItem,
	"services":  domain.KindService,
	"notes":     domain.KindNote,
	"processes": domain.KindProcess,
	"locations": domain.KindLocation,
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		writeError(w, http.StatusInternalServerError, "registry not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if !strings.HasPrefix(path, "/api/v1/") {
		http.NotFound(w, r)
		return
	}
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")

	if segments[0] == "permissions" && len(segments) == 1 {
		h.handleGrant(w, r)
		return
	}
	if segments[0] == "exports" {
		h.handleExports(w, r, segments)
		return
	}
	kind, ok := pathKinds[segments[0]]
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch len(segments) {
	case 1:
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleCreate(w, r, kind)
	case 2:
		if segments[1] == "count" {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "count": h.Registry.ResourceCount(kind)})
			return
		}
		id, err := parseID(segments[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resource id")
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"resource": h.Registry.GetResource(kind, id)})
	case 3:
		id, err := parseID(segments[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resource id")
			return
		}
		h.handleSubresource(w, r, kind, id, segments[2])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleSubresource(w http.ResponseWriter, r *http.Request, kind domain.ResourceKind, id uint64, sub string) {
	switch sub {
	case "notes":
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"note_ids": h.Registry.ResourceNotes(kind, id)})
			return
		}
		h.handleAttachNote(w, r, kind, id)
	case "components":
		if kind != domain.KindItem {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{
				"component_ids": h.Registry.ItemComponents(id),
				"is_component":  h.Registry.IsComponent(id),
			})
			return
		}
		h.handleAddComponent(w, r, id)
	case "services":
		if kind != domain.KindProcess {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"service_ids": h.Registry.ProcessServices(id)})
			return
		}
		h.handleAssign(w, r, id, "service_id", h.Registry.AddServiceToProcess)
	case "items":
		if kind != domain.KindProcess {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"item_ids": h.Registry.ProcessItems(id)})
			return
		}
		h.handleAssign(w, r, id, "item_id", h.Registry.AddItemToProcess)
	case "start", "complete":
		h.handleTransition(w, r, kind, id, sub)
	default:
		http.NotFound(w, r)
	}
}

type createRequest struct {
	Cost              int64              `json:"cost,omitempty"`
	Name              string             `json:"name,omitempty"`
	Content           string             `json:"content,omitempty"`
	Provider          string             `json:"provider,omitempty"`
	Category          string             `json:"category,omitempty"`
	Kind              domain.ProcessKind `json:"kind,omitempty"`
	LotID             uint64             `json:"lot_id,omitempty"`
	CurrentLocationID uint64             `json:"current_location_id,omitempty"`
	OriginProcessID   uint64             `json:"origin_process_id,omitempty"`
	FromLocationID    uint64             `json:"from_location_id,omitempty"`
	ToLocationID      uint64             `json:"to_location_id,omitempty"`
	ExpectedStart     time.Time          `json:"expected_start,omitempty"`
	ExpectedEnd       time.Time          `json:"expected_end,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, kind domain.ResourceKind) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	ctx := r.Context()
	var (
		resource domain.Resource
		result   core.Result
		err      error
	)
	switch kind {
	case domain.KindLot:
		resource, result, err = h.Registry.CreateLot(ctx, caller, core.Lot{Cost: req.Cost})
	case domain.KindItem:
		resource, result, err = h.Registry.CreateItem(ctx, caller, core.Item{
			Name:              req.Name,
			LotID:             req.LotID,
			CurrentLocationID: req.CurrentLocationID,
			OriginProcessID:   req.OriginProcessID,
		})
	case domain.KindService:
		resource, result, err = h.Registry.CreateService(ctx, caller, core.Service{
			Cost:          req.Cost,
			Provider:      req.Provider,
			ExpectedStart: req.ExpectedStart,
			ExpectedEnd:   req.ExpectedEnd,
		})
	case domain.KindNote:
		resource, result, err = h.Registry.CreateNote(ctx, caller, core.Note{Content: req.Content})
	case domain.KindProcess:
		resource, result, err = h.Registry.CreateProcess(ctx, caller, core.Process{
			Kind:           req.Kind,
			FromLocationID: req.FromLocationID,
			ToLocationID:   req.ToLocationID,
			ExpectedStart:  req.ExpectedStart,
			ExpectedEnd:    req.ExpectedEnd,
		})
	case domain.KindLocation:
		resource, result, err = h.Registry.CreateLocation(ctx, caller, core.Location{Name: req.Name, Category: req.Category})
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"resource": resource, "warnings": result.Warnings()})
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Identity string              `json:"identity"`
		Kind     domain.ResourceKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if _, err := h.Registry.GrantPermission(r.Context(), caller, req.Identity, req.Kind); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"granted": true, "identity": req.Identity, "kind": req.Kind})
}

func (h *Handler) handleAttachNote(w http.ResponseWriter, r *http.Request, kind domain.ResourceKind, id uint64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		NoteID uint64 `json:"note_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if _, err := h.Registry.AttachNote(r.Context(), caller, kind, id, req.NoteID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"note_ids": h.Registry.ResourceNotes(kind, id)})
}

func (h *Handler) handleAddComponent(w http.ResponseWriter, r *http.Request, itemID uint64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		ComponentID uint64 `json:"component_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	result, err := h.Registry.AddComponent(r.Context(), caller, itemID, req.ComponentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"component_ids": h.Registry.ItemComponents(itemID),
		"warnings":      result.Warnings(),
	})
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request, processID uint64, field string, assign func(ctx context.Context, caller string, processID, id uint64) (core.Result, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	var req map[string]uint64
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	id, ok := req[field]
	if !ok {
		writeError(w, http.StatusBadRequest, field+" required")
		return
	}
	if _, err := assign(r.Context(), caller, processID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"process_id": processID, field: id})
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, kind domain.ResourceKind, id uint64, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	var (
		resource domain.Resource
		err      error
	)
	switch {
	case kind == domain.KindService && action == "start":
		resource, _, err = h.Registry.StartService(ctx, caller, id)
	case kind == domain.KindService && action == "complete":
		resource, _, err = h.Registry.CompleteService(ctx, caller, id)
	case kind == domain.KindProcess && action == "start":
		resource, _, err = h.Registry.StartProcess(ctx, caller, id)
	case kind == domain.KindProcess && action == "complete":
		resource, _, err = h.Registry.CompleteProcess(ctx, caller, id)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource": resource})
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, segments []string) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	switch {
	case len(segments) == 1 && r.Method == http.MethodPost:
		caller, ok := identity(w, r)
		if !ok {
			return
		}
		var req struct {
			Reason string `json:"reason"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		record, err := h.Exports.Enqueue(r.Context(), export.Input{RequestedBy: caller, Reason: req.Reason})
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
	case len(segments) == 1 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"exports": h.Exports.List()})
	case len(segments) == 2 && r.Method == http.MethodGet:
		record, ok := h.Exports.Get(segments[1])
		if !ok {
			writeError(w, http.StatusNotFound, "export not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"export": record})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get(IdentityHeader))
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "identity header required")
		return "", false
	}
	return caller, true
}

func parseID(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var violation domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrNoPermission):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidStatus):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &violation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStringTooLong), errors.Is(err, domain.ErrExceedsLimit),
		errors.Is(err, domain.ErrInvalidLocation), errors.Is(err, domain.ErrInvalidKind):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
