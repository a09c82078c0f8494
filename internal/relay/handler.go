// Package relay exposes the pipeline over HTTP: event ingestion gated by
// the shared consent manager, consent administration, and operational
// endpoints. It is a thin layer; all pipeline behavior lives in the
// dispatcher, manager, and queue.
package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"pulse/internal/consent/manager"
	"pulse/internal/consent/models"
	"pulse/internal/dispatch"
	"pulse/internal/queue"
	dErrors "pulse/pkg/domain-errors"
)

// Handler is the thin HTTP layer. It delegates to the dispatcher and the
// consent manager so transport concerns remain isolated.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	manager    *manager.Manager
	queue      *queue.Queue
	logger     *slog.Logger
}

// NewHandler wires the handler onto the shared pipeline components.
func NewHandler(d *dispatch.Dispatcher, mgr *manager.Manager, q *queue.Queue, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		manager:    mgr,
		queue:      q,
		logger:     logger,
	}
}

type eventRequest struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Category    string          `json:"category,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
	PageContext json.RawMessage `json:"pageContext,omitempty"`
}

type eventResponse struct {
	ID       string `json:"id,omitempty"`
	Admitted bool   `json:"admitted"`
}

// handleEvent admits a single event through the consent gate. A refused
// event is not an HTTP error: the page must never break because the visitor
// said no.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed event payload"))
		return
	}

	var pageContext any
	if len(req.PageContext) > 0 {
		if err := json.Unmarshal(req.PageContext, &pageContext); err != nil {
			writeError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed page context"))
			return
		}
	}

	var id uuid.UUID
	switch req.Type {
	case "pageview":
		id = h.dispatcher.Pageview(pageContext)
	case "track":
		if req.Name == "" {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "track events require a name"))
			return
		}
		category := models.CategoryAnalytics
		if req.Category != "" {
			category = models.Category(req.Category)
			if !category.IsValid() {
				writeError(w, dErrors.New(dErrors.CodeBadRequest, "unknown event category"))
				return
			}
		}
		id = h.dispatcher.TrackAs(category, req.Name, req.Properties, pageContext)
	default:
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "event type must be track or pageview"))
		return
	}

	resp := eventResponse{Admitted: id != uuid.Nil}
	if resp.Admitted {
		resp.ID = id.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type consentRequest struct {
	Kind       string          `json:"kind"`
	Categories map[string]bool `json:"categories,omitempty"`
}

// handleConsentEvent applies a consent transition.
func (h *Handler) handleConsentEvent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed consent payload"))
		return
	}
	kind := models.EventKind(req.Kind)
	if !kind.IsValid() {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "unknown consent event kind"))
		return
	}

	event := models.Event{Kind: kind}
	if len(req.Categories) > 0 {
		event.Categories = make(map[models.Category]bool, len(req.Categories))
		for name, on := range req.Categories {
			category := models.Category(name)
			if !category.IsValid() {
				writeError(w, dErrors.New(dErrors.CodeBadRequest, "unknown consent category"))
				return
			}
			event.Categories[category] = on
		}
	}

	record := h.manager.ProcessEvent(r.Context(), event)
	writeJSON(w, http.StatusOK, record)
}

// handleConsentState returns the current record.
func (h *Handler) handleConsentState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.State())
}

// handleFlush forces a drain, mainly for operators and tests.
func (h *Handler) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.Flush(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

type queueStateResponse struct {
	Size             int    `json:"size"`
	Paused           bool   `json:"paused"`
	OldestEventAgeMS *int64 `json:"oldestEventAgeMs"`
	Ready            bool   `json:"ready"`
}

// handleQueueState reports queue diagnostics.
func (h *Handler) handleQueueState(w http.ResponseWriter, r *http.Request) {
	state := h.queue.State()
	resp := queueStateResponse{
		Size:   state.Size,
		Paused: state.Paused,
		Ready:  h.dispatcher.Ready(),
	}
	if state.OldestEventAge != nil {
		ms := state.OldestEventAge.Milliseconds()
		resp.OldestEventAgeMS = &ms
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth is the liveness probe.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
