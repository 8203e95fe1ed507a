// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package engine evaluates fleet signals into ranked, explainable
// suggestions. One cycle generates candidates, resolves factor vectors,
// scores them against scoped weight profiles and appends the actionable
// winners to the ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/logging"
	"github.com/tomtom215/fleetwright/internal/metrics"
	"github.com/tomtom215/fleetwright/internal/weights"
)

// Config controls cycle scheduling and evaluation behavior.
type Config struct {
	// CycleInterval is the period between scheduled evaluation cycles.
	CycleInterval time.Duration

	// ReevalInterval is how long an OPEN suggestion blocks its
	// (subject, type) pair before re-evaluation is due.
	ReevalInterval time.Duration

	// EvaluationWindow is the forward-looking window length candidates
	// are evaluated over.
	EvaluationWindow time.Duration

	// MaxParallel bounds concurrent candidate scoring within a cycle.
	MaxParallel int

	// ExplainTopN is how many factors the explanation names.
	ExplainTopN int
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.CycleInterval <= 0 {
		return errors.New("cycle interval must be positive")
	}
	if c.ReevalInterval <= 0 {
		return errors.New("reeval interval must be positive")
	}
	if c.EvaluationWindow <= 0 {
		return errors.New("evaluation window must be positive")
	}
	if c.MaxParallel < 1 {
		return errors.New("max parallel must be at least 1")
	}
	return nil
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		CycleInterval:    15 * time.Minute,
		ReevalInterval:   6 * time.Hour,
		EvaluationWindow: 24 * time.Hour,
		MaxParallel:      8,
		ExplainTopN:      defaultExplainFactors,
	}
}

// CycleStats summarizes one completed evaluation cycle.
type CycleStats struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Candidates int           `json:"candidates"`
	Scored     int           `json:"scored"`
	Discarded  int           `json:"discarded"`
	Created    int           `json:"created"`
	Duplicates int           `json:"duplicates"`
	Expired    int           `json:"expired"`
}

// Status is the engine's externally visible state.
type Status struct {
	Running   bool        `json:"running"`
	LastCycle *CycleStats `json:"last_cycle,omitempty"`
	NextCycle time.Time   `json:"next_cycle"`
}

// cycleRequest is an on-demand cycle trigger with an optional set of
// subjects whose inputs changed materially since the last pass.
type cycleRequest struct {
	changed map[string]bool
	done    chan error
}

// Engine runs the evaluation loop. It owns no suggestion state beyond the
// current cycle; the ledger and weight store are the durable surfaces.
type Engine struct {
	cfg       Config
	generator *Generator
	providers *factor.ProviderSet
	store     weights.Store
	ledger    *ledger.Ledger
	seed      weights.Defaults
	clock     func() time.Time
	logger    zerolog.Logger

	trigger chan cycleRequest

	mu        sync.RWMutex
	running   bool
	lastCycle *CycleStats
	nextCycle time.Time
}

// New creates an engine. The clock is injectable for tests; pass nil for
// time.Now.
func New(cfg Config, generator *Generator, providers *factor.ProviderSet, store weights.Store, led *ledger.Ledger, seed weights.Defaults, clock func() time.Time, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cfg:       cfg,
		generator: generator,
		providers: providers,
		store:     store,
		ledger:    led,
		seed:      seed,
		clock:     clock,
		logger:    logger.With().Str("component", "engine").Logger(),
		trigger:   make(chan cycleRequest),
	}, nil
}

// Serve runs the cycle scheduler until the context is canceled. It
// satisfies suture.Service.
func (e *Engine) Serve(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	e.setRunning(true)
	defer e.setRunning(false)
	e.setNextCycle(e.clock().Add(e.cfg.CycleInterval))

	e.logger.Info().Dur("interval", e.cfg.CycleInterval).Msg("engine scheduler started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine scheduler stopping")
			return ctx.Err()

		case <-ticker.C:
			e.runCycleLogged(ctx, nil)
			e.setNextCycle(e.clock().Add(e.cfg.CycleInterval))

		case req := <-e.trigger:
			err := e.runCycleLogged(ctx, req.changed)
			if req.done != nil {
				req.done <- err
			}
		}
	}
}

// TriggerCycle runs one cycle immediately, outside the schedule. The
// changed set holds subject keys whose inputs moved materially; open
// suggestions for those subjects are re-evaluated even when the
// re-evaluation interval has not elapsed. Blocks until the cycle
// finishes or the context is canceled.
func (e *Engine) TriggerCycle(ctx context.Context, changed map[string]bool) error {
	req := cycleRequest{changed: changed, done: make(chan error, 1)}
	select {
	case e.trigger <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStatus returns the scheduler state and last cycle summary.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := Status{Running: e.running, NextCycle: e.nextCycle}
	if e.lastCycle != nil {
		cp := *e.lastCycle
		status.LastCycle = &cp
	}
	return status
}

func (e *Engine) runCycleLogged(ctx context.Context, changed map[string]bool) error {
	cycleID := uuid.NewString()
	ctx = logging.ContextWithCycleID(ctx, cycleID)

	stats, err := e.runCycle(ctx, changed)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		metrics.CyclesTotal.WithLabelValues("canceled").Inc()
		return err
	case err != nil:
		metrics.CyclesTotal.WithLabelValues("aborted").Inc()
		logging.Ctx(ctx).Error().Err(err).Msg("evaluation cycle aborted")
		return err
	}

	metrics.CyclesTotal.WithLabelValues("completed").Inc()
	metrics.CycleDuration.Observe(stats.Duration.Seconds())

	e.mu.Lock()
	e.lastCycle = stats
	e.mu.Unlock()

	logging.Ctx(ctx).Info().
		Int("candidates", stats.Candidates).
		Int("created", stats.Created).
		Int("discarded", stats.Discarded).
		Int("duplicates", stats.Duplicates).
		Int("expired", stats.Expired).
		Dur("duration", stats.Duration).
		Msg("evaluation cycle complete")
	return nil
}

// runCycle executes one full evaluation pass: expire stale suggestions,
// generate candidates, resolve factors, score, rank and append.
func (e *Engine) runCycle(ctx context.Context, changed map[string]bool) (*CycleStats, error) {
	now := e.clock()
	stats := &CycleStats{StartedAt: now}

	expired, err := e.ledger.ExpireBefore(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("expire sweep: %w", err)
	}
	stats.Expired = expired

	candidates, err := e.generator.Generate(ctx, now, changed)
	if err != nil {
		return nil, fmt.Errorf("generate candidates: %w", err)
	}
	stats.Candidates = len(candidates)

	scored, err := e.scoreAll(ctx, candidates)
	if err != nil {
		return nil, err
	}
	stats.Scored = len(scored)

	ranked := rank(scored)
	for _, sc := range ranked {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !sc.result.Actionable {
			stats.Discarded++
			metrics.CandidatesDiscarded.WithLabelValues(string(sc.candidate.Type)).Inc()
			continue
		}
		created, err := e.record(ctx, now, sc)
		if err != nil {
			return nil, err
		}
		if created {
			stats.Created++
		} else {
			stats.Duplicates++
		}
	}

	stats.Duration = e.clock().Sub(now)
	return stats, nil
}

// scoredCandidate pairs a candidate with its profile and score result for
// ranking.
type scoredCandidate struct {
	candidate *Candidate
	profile   *weights.Profile
	result    ScoreResult
}

// scoreAll resolves factor vectors and scores candidates on a bounded
// worker pool. Profiles are cached per cycle so every candidate in a cycle
// sees the same revision. A candidate whose vector cannot be built is
// skipped; an unreachable profile store aborts the cycle.
func (e *Engine) scoreAll(ctx context.Context, candidates []*Candidate) ([]scoredCandidate, error) {
	profiles, err := e.loadProfiles(ctx, candidates)
	if err != nil {
		return nil, err
	}

	type slot struct {
		sc scoredCandidate
		ok bool
	}
	results := make([]slot, len(candidates))
	sem := make(chan struct{}, e.cfg.MaxParallel)
	var wg sync.WaitGroup

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c *Candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			vector, err := e.providers.Resolve(ctx, c.Subject.Key(), c.Window)
			if err != nil {
				metrics.CandidatesSkipped.WithLabelValues(string(c.Type), "scoring_error").Inc()
				logging.Ctx(ctx).Warn().Err(err).
					Str("subject", c.Subject.Key()).
					Str("type", string(c.Type)).
					Msg("candidate skipped")
				return
			}
			c.Vector = vector

			profile := profiles[weights.ProfileKey(c.Scope, c.Type)]
			results[i] = slot{
				sc: scoredCandidate{candidate: c, profile: profile, result: Score(vector, profile)},
				ok: true,
			}
		}(i, c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, r := range results {
		if r.ok {
			scored = append(scored, r.sc)
		}
	}
	return scored, nil
}

// loadProfiles fetches each distinct (scope, type) profile once. A store
// failure here aborts the whole cycle rather than scoring against mixed
// or missing weights.
func (e *Engine) loadProfiles(ctx context.Context, candidates []*Candidate) (map[string]*weights.Profile, error) {
	profiles := make(map[string]*weights.Profile)
	for _, c := range candidates {
		key := weights.ProfileKey(c.Scope, c.Type)
		if _, ok := profiles[key]; ok {
			continue
		}
		profile, err := e.store.GetOrSeed(ctx, c.Scope, c.Type, e.seed)
		if err != nil {
			return nil, fmt.Errorf("load profile %s: %w", key, err)
		}
		profiles[key] = profile
	}
	return profiles, nil
}

// rank orders scored candidates deterministically: subject key, then score
// descending, then aggregate absolute weight descending. Two candidates on
// the same subject with equal scores resolve toward the profile backed by
// stronger total evidence.
func rank(scored []scoredCandidate) []scoredCandidate {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.candidate.Subject.Key() != b.candidate.Subject.Key() {
			return a.candidate.Subject.Key() < b.candidate.Subject.Key()
		}
		if a.result.Score != b.result.Score {
			return a.result.Score > b.result.Score
		}
		return a.profile.AggregateAbsWeight() > b.profile.AggregateAbsWeight()
	})
	return scored
}

// record supersedes the candidate's prior suggestion if one is due, then
// appends the new suggestion. A concurrent duplicate for the same open key
// is suppressed silently. Returns true when a suggestion was created.
func (e *Engine) record(ctx context.Context, now time.Time, sc scoredCandidate) (bool, error) {
	c := sc.candidate

	if c.PriorSuggestionID != "" {
		err := e.ledger.Expire(ctx, c.PriorSuggestionID, "superseded by re-evaluation")
		if err != nil && !errors.Is(err, ledger.ErrStaleSuggestion) {
			return false, fmt.Errorf("supersede %s: %w", c.PriorSuggestionID, err)
		}
	}

	s := &ledger.Suggestion{
		ID:            uuid.NewString(),
		Type:          c.Type,
		Scope:         c.Scope,
		Subject:       c.Subject,
		Score:         sc.result.Score,
		Confidence:    sc.result.Confidence,
		Contributions: sc.result.Contributions,
		Explanation:   Explain(sc.result.Contributions, e.cfg.ExplainTopN),
		State:         ledger.StateOpen,
		Window:        c.Window,
		CreatedAt:     now,
	}

	// The ledger owns the created/suppressed counters.
	err := e.ledger.Append(ctx, s)
	if errors.Is(err, ledger.ErrDuplicateOpen) {
		logging.Ctx(ctx).Debug().
			Str("key", s.OpenKey()).
			Msg("duplicate open suggestion suppressed")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("append suggestion: %w", err)
	}

	return true, nil
}

func (e *Engine) setRunning(v bool) {
	e.mu.Lock()
	e.running = v
	e.mu.Unlock()
}

func (e *Engine) setNextCycle(t time.Time) {
	e.mu.Lock()
	e.nextCycle = t
	e.mu.Unlock()
}
