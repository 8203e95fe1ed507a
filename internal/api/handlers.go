// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package api provides the HTTP surface: suggestion queries, feedback
// intake, profile management and engine control.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/config"
	"github.com/tomtom215/fleetwright/internal/engine"
	"github.com/tomtom215/fleetwright/internal/feedback"
	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/models"
	"github.com/tomtom215/fleetwright/internal/weights"
)

// suggestionReader is the slice of the ledger the API reads from.
type suggestionReader interface {
	Get(ctx context.Context, id string) (*ledger.Suggestion, error)
	List(ctx context.Context, f ledger.Filter) ([]*ledger.Suggestion, int, error)
	Events(ctx context.Context, id string) ([]*ledger.Event, error)
}

// engineControl is the slice of the engine the API drives.
type engineControl interface {
	TriggerCycle(ctx context.Context, changed map[string]bool) error
	GetStatus() engine.Status
}

// feedbackPublisher hands decisions to the feedback pipeline.
type feedbackPublisher interface {
	PublishEvent(ctx context.Context, event *feedback.Event) error
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	ledger   suggestionReader
	engine   engineControl
	profiles weights.Store
	seed     weights.Defaults
	bus      feedbackPublisher
	cfg      config.APIConfig
	logger   zerolog.Logger

	// ready reports whether the backing store is reachable.
	ready func(ctx context.Context) error
}

// NewHandler creates the API handler set.
func NewHandler(led suggestionReader, eng engineControl, profiles weights.Store, seed weights.Defaults, bus feedbackPublisher, cfg config.APIConfig, ready func(ctx context.Context) error, logger zerolog.Logger) *Handler {
	return &Handler{
		ledger:   led,
		engine:   eng,
		profiles: profiles,
		seed:     seed,
		bus:      bus,
		cfg:      cfg,
		ready:    ready,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// suggestionListResponse pairs a page of suggestions with paging state.
type suggestionListResponse struct {
	Suggestions []*ledger.Suggestion `json:"suggestions"`
	Pagination  models.Pagination    `json:"pagination"`
}

// ListSuggestions handles GET /api/v1/suggestions.
// Filters: state, type, tenant, subject, page, page_size.
func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()

	filter := ledger.Filter{
		TenantID: q.Get("tenant"),
		Subject:  q.Get("subject"),
		Page:     getIntParam(r, "page", 1),
		PageSize: getIntParam(r, "page_size", h.cfg.DefaultPageSize),
	}
	if filter.PageSize > h.cfg.MaxPageSize {
		filter.PageSize = h.cfg.MaxPageSize
	}

	if s := q.Get("state"); s != "" {
		state := ledger.State(s)
		if !state.Terminal() && state != ledger.StateOpen {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown state "+sanitizeLogValue(s), nil)
			return
		}
		filter.State = state
	}
	if t := q.Get("type"); t != "" {
		parsed, err := models.ParseSuggestionType(t)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		filter.Type = parsed
	}

	suggestions, total, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to list suggestions", err)
		return
	}

	respondData(w, http.StatusOK, suggestionListResponse{
		Suggestions: suggestions,
		Pagination: models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalCount: total,
			HasMore:    filter.Page*filter.PageSize < total,
		},
	}, started)
}

// GetSuggestion handles GET /api/v1/suggestions/{id}.
func (h *Handler) GetSuggestion(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	s, err := h.ledger.Get(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "suggestion not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load suggestion", err)
		return
	}

	respondData(w, http.StatusOK, s, started)
}

// GetSuggestionEvents handles GET /api/v1/suggestions/{id}/events. The
// event sequence is the suggestion's full lifecycle history.
func (h *Handler) GetSuggestionEvents(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	events, err := h.ledger.Events(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "suggestion not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load events", err)
		return
	}

	respondData(w, http.StatusOK, events, started)
}

// feedbackRequest is the POST body for a suggestion decision.
type feedbackRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
	Actor  string `json:"actor"`
}

// PostFeedback handles POST /api/v1/suggestions/{id}/feedback. The decision
// is published to the feedback pipeline and applied asynchronously; the
// response acknowledges intake, not application.
func (h *Handler) PostFeedback(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", err)
		return
	}

	action := ledger.Action(req.Action)
	if !action.Valid() {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "action must be ACCEPT or DECLINE", nil)
		return
	}
	if req.Actor == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "actor is required", nil)
		return
	}

	// Reject decisions on unknown or already-terminal suggestions up front
	// so the caller learns synchronously. The pipeline re-checks under the
	// store transaction; this is only a fast path.
	s, err := h.ledger.Get(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "suggestion not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load suggestion", err)
		return
	}
	if s.State.Terminal() {
		respondError(w, http.StatusConflict, "STALE_SUGGESTION", "suggestion already "+string(s.State), nil)
		return
	}

	event := &feedback.Event{
		SuggestionID: id,
		Action:       action,
		Reason:       req.Reason,
		Actor:        req.Actor,
		Timestamp:    time.Now().UTC(),
	}
	if err := h.bus.PublishEvent(r.Context(), event); err != nil {
		respondError(w, http.StatusInternalServerError, "PUBLISH_ERROR", "failed to queue feedback", err)
		return
	}

	respondData(w, http.StatusAccepted, map[string]string{
		"suggestion_id": id,
		"action":        string(action),
		"status":        "queued",
	}, started)
}

// scopeFromQuery builds a Scope from tenant/dealer/customer query params.
func scopeFromQuery(r *http.Request) models.Scope {
	q := r.URL.Query()
	return models.Scope{
		TenantID:   q.Get("tenant"),
		DealerID:   q.Get("dealer"),
		CustomerID: q.Get("customer"),
	}
}

// GetProfile handles GET /api/v1/profiles. The profile is seeded on first
// access so callers always see concrete weights.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	scope := scopeFromQuery(r)
	if !scope.Valid() {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "tenant is required", nil)
		return
	}
	t, err := models.ParseSuggestionType(r.URL.Query().Get("type"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	profile, err := h.profiles.GetOrSeed(r.Context(), scope, t, h.seed)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load profile", err)
		return
	}

	respondData(w, http.StatusOK, profile, started)
}

// profileUpdateRequest is the PUT body for an operator override. The
// expected revision makes the write conditional: a concurrent update
// returns 409 rather than silently clobbering.
type profileUpdateRequest struct {
	Profile          weights.Profile `json:"profile"`
	ExpectedRevision uint64          `json:"expected_revision"`
}

// PutProfile handles PUT /api/v1/profiles.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", err)
		return
	}
	if err := req.Profile.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	err := h.profiles.Put(r.Context(), &req.Profile, req.ExpectedRevision)
	if errors.Is(err, weights.ErrConflict) {
		respondError(w, http.StatusConflict, "REVISION_CONFLICT", "profile was updated concurrently", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to store profile", err)
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"profile_key": req.Profile.Key(),
		"revision":    req.ExpectedRevision + 1,
	}, started)
}

// cycleRequest is the POST body for an on-demand cycle. Changed subjects
// force re-evaluation of open suggestions for those subjects.
type cycleRequest struct {
	ChangedSubjects []models.SubjectRef `json:"changed_subjects,omitempty"`
}

// TriggerCycle handles POST /api/v1/engine/cycle and blocks until the pass
// completes.
func (h *Handler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req cycleRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", err)
			return
		}
	}

	var changed map[string]bool
	if len(req.ChangedSubjects) > 0 {
		changed = make(map[string]bool, len(req.ChangedSubjects))
		for _, s := range req.ChangedSubjects {
			changed[s.Key()] = true
		}
	}

	if err := h.engine.TriggerCycle(r.Context(), changed); err != nil {
		respondError(w, http.StatusInternalServerError, "CYCLE_ERROR", "evaluation cycle failed", err)
		return
	}

	respondData(w, http.StatusOK, h.engine.GetStatus(), started)
}

// EngineStatus handles GET /api/v1/engine/status.
func (h *Handler) EngineStatus(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.engine.GetStatus(), time.Now())
}

// HealthLive handles GET /api/v1/health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "alive"}, time.Now())
}

// HealthReady handles GET /api/v1/health/ready. Ready means the backing
// store answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "NOT_READY", "store unavailable", err)
			return
		}
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ready"}, time.Now())
}
