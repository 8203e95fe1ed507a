// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package store

import (
	"context"
	"testing"

	"github.com/tomtom215/fleetwright/internal/config"
)

func TestOpenInMemory(t *testing.T) {
	t.Parallel()

	db, err := Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})

	ping := Ping(db)
	if err := ping(context.Background()); err != nil {
		t.Errorf("Ping on open store: %v", err)
	}
}

func TestOpenOnDisk(t *testing.T) {
	t.Parallel()

	db, err := Open(config.StoreConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := Ping(db)(context.Background()); err == nil {
		t.Error("Ping on closed store must fail")
	}
}

func TestGCServiceStopsOnCancel(t *testing.T) {
	t.Parallel()

	db, err := Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc := NewGCService(db)
	if svc.String() != "store-gc" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Serve err = %v, want context.Canceled", err)
	}
}
