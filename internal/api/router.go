// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fleetwright/internal/config"
)

// Router assembles the HTTP routes.
type Router struct {
	handler    *Handler
	fleet      *FleetHandler
	middleware *Middleware
}

// NewRouter creates a router for the given handler set.
func NewRouter(handler *Handler, fleet *FleetHandler, cfg config.APIConfig) *Router {
	return &Router{
		handler:    handler,
		fleet:      fleet,
		middleware: NewMiddleware(cfg),
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/suggestions", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics)

		r.Get("/", router.handler.ListSuggestions)
		r.Get("/{id}", router.handler.GetSuggestion)
		r.Get("/{id}/events", router.handler.GetSuggestionEvents)
		r.Post("/{id}/feedback", router.handler.PostFeedback)
	})

	r.Route("/api/v1/profiles", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics)

		r.Get("/", router.handler.GetProfile)
		r.Put("/", router.handler.PutProfile)
	})

	r.Route("/api/v1/fleet", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics)

		r.Put("/subjects", router.fleet.UpsertSubject)
		r.Post("/signals", router.fleet.PostSignals)
		r.Get("/stats", router.fleet.FleetStats)
	})

	r.Route("/api/v1/engine", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics)

		r.Get("/status", router.handler.EngineStatus)
		r.Post("/cycle", router.handler.TriggerCycle)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
