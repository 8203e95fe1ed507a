// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetwright/internal/engine"
	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/fleet"
	"github.com/tomtom215/fleetwright/internal/models"
)

// FleetHandler exposes the subject and signal intake surface. Upstream
// systems push fleet state here; the engine consumes it on the next cycle.
type FleetHandler struct {
	registry *fleet.Registry
}

// NewFleetHandler creates the fleet intake handlers.
func NewFleetHandler(registry *fleet.Registry) *FleetHandler {
	return &FleetHandler{registry: registry}
}

// subjectRequest registers one subject for evaluation.
type subjectRequest struct {
	Scope   models.Scope      `json:"scope"`
	Subject models.SubjectRef `json:"subject"`
	Types   []string          `json:"types"`
}

// UpsertSubject handles PUT /api/v1/fleet/subjects.
func (h *FleetHandler) UpsertSubject(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", err)
		return
	}
	if !req.Scope.Valid() {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "scope tenant is required", nil)
		return
	}
	if !req.Subject.Valid() {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "subject must name equipment or a site", nil)
		return
	}
	if len(req.Types) == 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "at least one suggestion type is required", nil)
		return
	}

	types := make([]models.SuggestionType, 0, len(req.Types))
	for _, raw := range req.Types {
		t, err := models.ParseSuggestionType(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		types = append(types, t)
	}

	h.registry.UpsertSubject(engine.Subject{Scope: req.Scope, Ref: req.Subject}, types)

	respondData(w, http.StatusOK, map[string]string{
		"subject": req.Subject.Key(),
		"status":  "registered",
	}, started)
}

// signalRequest carries one signal observation.
type signalRequest struct {
	Kind       string  `json:"kind"`
	SubjectKey string  `json:"subject_key"`
	Value      float64 `json:"value"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// PostSignals handles POST /api/v1/fleet/signals with a batch of
// observations. The batch is applied in order; the first invalid entry
// rejects the whole request so partial pushes do not go unnoticed.
func (h *FleetHandler) PostSignals(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var reqs []signalRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", err)
		return
	}
	if len(reqs) == 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "empty signal batch", nil)
		return
	}

	parsed := make([]struct {
		kind factor.Kind
		req  signalRequest
	}, 0, len(reqs))
	for _, req := range reqs {
		kind, err := factor.ParseKind(req.Kind)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		if req.SubjectKey == "" {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "subject_key is required", nil)
			return
		}
		if req.Confidence < 0 || req.Confidence > 1 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "confidence must be in [0, 1]", nil)
			return
		}
		parsed = append(parsed, struct {
			kind factor.Kind
			req  signalRequest
		}{kind, req})
	}

	for _, p := range parsed {
		h.registry.Observe(p.kind, p.req.SubjectKey, factor.Sample{
			Value:      p.req.Value,
			Category:   p.req.Category,
			Confidence: p.req.Confidence,
		})
	}

	respondData(w, http.StatusAccepted, map[string]int{"observed": len(parsed)}, started)
}

// FleetStats handles GET /api/v1/fleet/stats.
func (h *FleetHandler) FleetStats(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.registry.Stats(), time.Now())
}
