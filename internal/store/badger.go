// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package store opens and maintains the embedded Badger database shared by
// the suggestion ledger and the weight profile store.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/fleetwright/internal/config"
	"github.com/tomtom215/fleetwright/internal/logging"
)

// gcInterval is how often the value log garbage collector runs.
const gcInterval = 10 * time.Minute

// gcDiscardRatio is the rewrite threshold passed to RunValueLogGC.
const gcDiscardRatio = 0.5

// Open opens (or creates) the Badger database.
func Open(cfg config.StoreConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}

	// Badger's own logger is noisy; events worth surfacing are logged by
	// the callers.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("store opened")
	return db, nil
}

// Ping verifies the database still answers. Used by the readiness probe.
func Ping(db *badger.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db.IsClosed() {
			return errors.New("store closed")
		}
		return db.View(func(txn *badger.Txn) error {
			return ctx.Err()
		})
	}
}

// GCService runs Badger's value log garbage collection on a schedule. It
// satisfies suture.Service.
type GCService struct {
	db *badger.DB
}

// NewGCService creates the garbage collection service.
func NewGCService(db *badger.DB) *GCService {
	return &GCService{db: db}
}

// Serve runs GC until the context is canceled. ErrNoRewrite means there
// was nothing to collect and is not an error.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := s.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("value log gc failed")
			}
		}
	}
}

// String identifies the service in supervisor logs.
func (s *GCService) String() string {
	return "store-gc"
}
