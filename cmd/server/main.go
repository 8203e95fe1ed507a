// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package main is the entry point for the Fleetwright server.
//
// Fleetwright turns raw fleet signals (demand forecasts, utilization,
// maintenance state, weather, contract terms) into scored, explained
// suggestions for rental fleet operators: rebalance equipment between
// sites, schedule preventive maintenance, adjust rates, or flag contracts
// for review. Operator feedback on each suggestion nudges the scoring
// weights, so the engine adapts to what each tenant actually accepts.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, environment (Koanf v2)
//  2. Store: embedded BadgerDB shared by the suggestion ledger and
//     weight profiles
//  3. Signal plane: fleet registry, normalizer, guarded provider set
//  4. Engine: cycle scheduler with candidate generation and scoring
//  5. Feedback bus: Watermill in-process pub/sub with retry and
//     poison-queue middleware
//  6. HTTP Server: REST API plus Prometheus metrics
//
// All long-running components run under a suture supervisor tree and are
// restarted with backoff on failure.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (HTTP_PORT, STORE_PATH, LOG_LEVEL, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests and messages to complete
//   - Closes the feedback bus and the store
//
// # Example Usage
//
// Development with an in-memory store:
//
//	export STORE_IN_MEMORY=true
//	export LOG_FORMAT=console
//	./fleetwright
//
// Production:
//
//	export STORE_PATH=/data/fleetwright
//	export HTTP_PORT=8620
//	./fleetwright
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/fleetwright/internal/api"
	"github.com/tomtom215/fleetwright/internal/config"
	"github.com/tomtom215/fleetwright/internal/engine"
	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/feedback"
	"github.com/tomtom215/fleetwright/internal/fleet"
	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/logging"
	"github.com/tomtom215/fleetwright/internal/store"
	"github.com/tomtom215/fleetwright/internal/supervisor"
	"github.com/tomtom215/fleetwright/internal/weights"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Fleetwright with supervisor tree")
	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Dur("cycle_interval", cfg.Engine.CycleInterval).
		Dur("reeval_interval", cfg.Engine.ReevalInterval).
		Msg("Configuration loaded")

	db, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	suggestionLedger := ledger.New(db, logging.Logger())
	profiles := weights.NewBadgerStore(db, logging.Logger())

	// Seed parameters for profiles that do not exist yet. Existing
	// profiles keep their learned weights across restarts.
	seed := weights.DefaultSeed()
	seed.RawThreshold = cfg.Scoring.RawThreshold
	seed.MinActionableScore = cfg.Scoring.MinActionableScore
	seed.LearningRate = cfg.Scoring.LearningRate

	transforms, err := cfg.Normalizer.KindTransforms()
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid normalizer configuration")
	}
	normalizer, err := factor.NewNormalizer(transforms)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build normalizer")
	}

	providers := factor.NewProviderSet(normalizer, factor.GuardConfig{
		Timeout:                 cfg.Providers.Timeout,
		RatePerSecond:           cfg.Providers.RatePerSecond,
		RateBurst:               cfg.Providers.RateBurst,
		BreakerFailureThreshold: cfg.Providers.BreakerFailureThreshold,
		BreakerTimeout:          cfg.Providers.BreakerTimeout,
	}, logging.Logger())

	// The registry is the in-process signal plane: upstream systems push
	// subjects and observations over the API, providers read them back
	// during scoring. Observations older than the evaluation window are
	// treated as unavailable.
	registry := fleet.NewRegistry(cfg.Engine.EvaluationWindow, time.Now, logging.Logger())
	registry.RegisterAll(providers)

	generator := engine.NewGenerator(
		registry,
		suggestionLedger,
		cfg.Engine.ReevalInterval,
		cfg.Engine.EvaluationWindow,
		logging.Logger(),
	)

	eng, err := engine.New(engine.Config{
		CycleInterval:    cfg.Engine.CycleInterval,
		ReevalInterval:   cfg.Engine.ReevalInterval,
		EvaluationWindow: cfg.Engine.EvaluationWindow,
		MaxParallel:      cfg.Engine.MaxParallel,
		ExplainTopN:      cfg.Engine.ExplainTopN,
	}, generator, providers, profiles, suggestionLedger, seed, time.Now, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create engine")
	}

	bus, err := feedback.NewBus(feedback.BusConfig{
		CloseTimeout:         cfg.Feedback.BusCloseTimeout,
		RetryMaxRetries:      cfg.Feedback.RetryMaxRetries,
		RetryInitialInterval: cfg.Feedback.RetryInitialInterval,
		RetryMaxInterval:     cfg.Feedback.RetryMaxInterval,
		RetryMultiplier:      2.0,
		OutputChannelBuffer:  cfg.Feedback.BusChannelBuffer,
	}, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create feedback bus")
	}

	nudger := feedback.NewNudger(profiles, seed, cfg.Feedback.NudgeMaxRetries, logging.Logger())

	feedbackHandler, err := feedback.NewHandler(suggestionLedger, nudger, bus.Publisher(), logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create feedback handler")
	}
	deferredHandler, err := feedback.NewDeferredHandler(nudger, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create deferred handler")
	}
	bus.RegisterHandlers(feedbackHandler, deferredHandler)
	logging.Info().Msg("Feedback pipeline wired")

	apiHandler := api.NewHandler(
		suggestionLedger,
		eng,
		profiles,
		seed,
		bus,
		cfg.API,
		store.Ping(db),
		logging.Logger(),
	)
	fleetHandler := api.NewFleetHandler(registry)
	router := api.NewRouter(apiHandler, fleetHandler, cfg.API)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Create structured logger for supervisor using our slog adapter
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddEngineService(eng)
	tree.AddEngineService(store.NewGCService(db))
	tree.AddMessagingService(bus)
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if err := bus.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing feedback bus")
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
