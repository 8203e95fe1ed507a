// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package weights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/metrics"
	"github.com/tomtom215/fleetwright/internal/models"
)

// Store errors.
var (
	// ErrNotFound indicates no profile exists for the (scope, type) pair.
	ErrNotFound = errors.New("weight profile not found")

	// ErrConflict indicates the expected revision no longer matches.
	// The caller reloads the profile and retries (read-modify-write).
	ErrConflict = errors.New("weight profile revision conflict")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("weight profile store closed")
)

// Store persists weight profiles with optimistic concurrency.
type Store interface {
	// Get returns the profile for the pair, or ErrNotFound.
	Get(ctx context.Context, scope models.Scope, t models.SuggestionType) (*Profile, error)

	// GetOrSeed returns the profile, creating it from seed defaults on
	// first access.
	GetOrSeed(ctx context.Context, scope models.Scope, t models.SuggestionType, seed Defaults) (*Profile, error)

	// Put writes the profile if its stored revision still equals
	// expectedRevision (0 means "must not exist yet"). On success the
	// stored revision becomes expectedRevision+1. Returns ErrConflict on
	// mismatch.
	Put(ctx context.Context, profile *Profile, expectedRevision uint64) error

	// Close releases the underlying database.
	Close() error
}

// profileKeyPrefix namespaces profile entries in the shared badger keyspace.
const profileKeyPrefix = "profile:"

// BadgerStore implements Store on BadgerDB. Revision checks run inside a
// single transaction, which serializes concurrent writes per profile key.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewBadgerStore wraps an open badger database as a profile store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBadgerStore(db *badger.DB, logger zerolog.Logger) *BadgerStore {
	return &BadgerStore{
		db:     db,
		logger: logger.With().Str("component", "weights").Logger(),
	}
}

// Get returns the profile for the pair, or ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, scope models.Scope, t models.SuggestionType) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var profile Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profileKeyPrefix + ProfileKey(scope, t)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetOrSeed returns the profile, creating it from seed defaults on first
// access. Concurrent first accesses race benignly: the loser re-reads.
func (s *BadgerStore) GetOrSeed(ctx context.Context, scope models.Scope, t models.SuggestionType, seed Defaults) (*Profile, error) {
	profile, err := s.Get(ctx, scope, t)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	seeded := NewProfile(scope, t, seed)
	if err := s.Put(ctx, seeded, 0); err != nil {
		if errors.Is(err, ErrConflict) {
			return s.Get(ctx, scope, t)
		}
		return nil, err
	}
	metrics.WeightUpdates.WithLabelValues("seed").Inc()
	s.logger.Info().
		Str("scope", scope.Key()).
		Str("type", string(t)).
		Msg("seeded weight profile")
	return seeded, nil
}

// Put writes the profile under optimistic concurrency.
func (s *BadgerStore) Put(ctx context.Context, profile *Profile, expectedRevision uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	key := []byte(profileKeyPrefix + profile.Key())

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if expectedRevision != 0 {
				return ErrConflict
			}
		case err != nil:
			return err
		default:
			var stored Profile
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			if stored.Revision != expectedRevision {
				return ErrConflict
			}
		}

		profile.Revision = expectedRevision + 1
		profile.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		return txn.Set(key, data)
	})

	if errors.Is(err, ErrConflict) || errors.Is(err, badger.ErrConflict) {
		metrics.ProfileConflicts.Inc()
		return ErrConflict
	}
	return err
}

// Close releases the underlying database. The database may be shared with
// other stores; closing is the owner's responsibility in main.
func (s *BadgerStore) Close() error {
	return nil
}
