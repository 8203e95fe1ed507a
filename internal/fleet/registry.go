// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package fleet holds the in-memory registry of active subjects and their
// latest signal observations. Upstream systems (telematics, booking,
// forecasting) push into it over the API; the engine reads from it through
// the SubjectSource and Provider interfaces.
package fleet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/engine"
	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/models"
)

// defaultStaleness is how long an observation stays usable. Older samples
// are treated as unavailable so the engine degrades to neutral instead of
// scoring on dead data.
const defaultStaleness = time.Hour

// observation is one pushed signal sample with its arrival time.
type observation struct {
	sample     factor.Sample
	observedAt time.Time
}

// entry is a registered subject and the suggestion types it is eligible for.
type entry struct {
	subject engine.Subject
	types   map[models.SuggestionType]bool
}

// Registry is the thread-safe subject and signal store.
type Registry struct {
	mu        sync.RWMutex
	subjects  map[string]*entry                           // by subject key
	signals   map[factor.Kind]map[string]observation      // kind -> subject key
	staleness time.Duration
	clock     func() time.Time
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry. staleness <= 0 selects the
// default window; clock nil selects time.Now.
func NewRegistry(staleness time.Duration, clock func() time.Time, logger zerolog.Logger) *Registry {
	if staleness <= 0 {
		staleness = defaultStaleness
	}
	if clock == nil {
		clock = time.Now
	}
	signals := make(map[factor.Kind]map[string]observation, len(factor.Kinds()))
	for _, k := range factor.Kinds() {
		signals[k] = make(map[string]observation)
	}
	return &Registry{
		subjects:  make(map[string]*entry),
		signals:   signals,
		staleness: staleness,
		clock:     clock,
		logger:    logger.With().Str("component", "fleet").Logger(),
	}
}

// UpsertSubject registers or replaces a subject and the suggestion types
// it can be evaluated for.
func (r *Registry) UpsertSubject(subject engine.Subject, types []models.SuggestionType) {
	set := make(map[models.SuggestionType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}

	r.mu.Lock()
	r.subjects[subject.Ref.Key()] = &entry{subject: subject, types: set}
	r.mu.Unlock()

	r.logger.Debug().Str("subject", subject.Ref.Key()).Int("types", len(types)).Msg("subject registered")
}

// RemoveSubject drops a subject and its observations.
func (r *Registry) RemoveSubject(key string) {
	r.mu.Lock()
	delete(r.subjects, key)
	for _, byKey := range r.signals {
		delete(byKey, key)
	}
	r.mu.Unlock()
}

// Subjects implements engine.SubjectSource. Order is stable so candidate
// generation is deterministic.
func (r *Registry) Subjects(ctx context.Context, t models.SuggestionType) ([]engine.Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	subjects := make([]engine.Subject, 0, len(r.subjects))
	for _, e := range r.subjects {
		if e.types[t] {
			subjects = append(subjects, e.subject)
		}
	}
	r.mu.RUnlock()

	sort.Slice(subjects, func(i, j int) bool {
		return subjects[i].Ref.Key() < subjects[j].Ref.Key()
	})
	return subjects, nil
}

// Observe stores the latest sample for a (kind, subject) pair.
func (r *Registry) Observe(kind factor.Kind, subjectKey string, sample factor.Sample) {
	r.mu.Lock()
	r.signals[kind][subjectKey] = observation{sample: sample, observedAt: r.clock()}
	r.mu.Unlock()
}

// Provider returns the factor.Provider view for one kind. A missing or
// stale observation is reported as unavailable, which the provider set
// degrades to neutral.
func (r *Registry) Provider(kind factor.Kind) factor.Provider {
	return factor.ProviderFunc(func(ctx context.Context, subjectID string, _ factor.Window) (factor.Sample, error) {
		if err := ctx.Err(); err != nil {
			return factor.Sample{}, err
		}

		r.mu.RLock()
		obs, ok := r.signals[kind][subjectID]
		r.mu.RUnlock()

		if !ok || r.clock().Sub(obs.observedAt) > r.staleness {
			return factor.Sample{}, factor.ErrUnavailable
		}
		return obs.sample, nil
	})
}

// RegisterAll wires every factor kind's provider into the set.
func (r *Registry) RegisterAll(set *factor.ProviderSet) {
	for _, k := range factor.Kinds() {
		set.Register(k, r.Provider(k))
	}
}

// Stats summarizes the registry contents.
type Stats struct {
	Subjects     int `json:"subjects"`
	Observations int `json:"observations"`
}

// Stats returns the current registry size.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, byKey := range r.signals {
		total += len(byKey)
	}
	return Stats{Subjects: len(r.subjects), Observations: total}
}
