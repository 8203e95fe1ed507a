// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package factor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fleetwright/internal/metrics"
)

// ErrUnavailable is returned by a Provider that has no data for the window.
// The provider set treats it as a neutral fallback, not a failure.
var ErrUnavailable = errors.New("signal provider unavailable")

// Provider is the inbound signal contract: given a subject and an evaluation
// window, return a raw sample or ErrUnavailable. Forecasting, anomaly
// scoring, and distance computation live behind this interface; only the
// numeric result is part of the engine's design.
type Provider interface {
	// Fetch returns the raw sample for the subject over the window.
	Fetch(ctx context.Context, subjectID string, window Window) (Sample, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, subjectID string, window Window) (Sample, error)

// Fetch implements Provider.
func (f ProviderFunc) Fetch(ctx context.Context, subjectID string, window Window) (Sample, error) {
	return f(ctx, subjectID, window)
}

// GuardConfig tunes the protective wrapping around each provider.
type GuardConfig struct {
	// Timeout bounds a single Fetch. A provider that does not respond within
	// the deadline is treated as unavailable, never as a reason to stall the
	// cycle.
	Timeout time.Duration

	// RatePerSecond limits Fetch calls per provider (0 = unlimited).
	RatePerSecond float64

	// RateBurst is the limiter burst size (defaults to 1 when rate limited).
	RateBurst int

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the circuit breaker.
	BreakerFailureThreshold uint32

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
}

// DefaultGuardConfig returns production defaults for provider guarding.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:                 2 * time.Second,
		RatePerSecond:           0,
		RateBurst:               1,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
	}
}

// guardedProvider wraps one provider with deadline, circuit breaker and
// rate limiter.
type guardedProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[Sample]
	limiter  *rate.Limiter
}

// ProviderSet resolves factor vectors for candidates. Every registered
// provider is wrapped so that unavailability degrades to the neutral value
// instead of failing the candidate.
type ProviderSet struct {
	providers  map[Kind]*guardedProvider
	normalizer *Normalizer
	config     GuardConfig
	logger     zerolog.Logger
}

// NewProviderSet creates an empty provider set.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewProviderSet(normalizer *Normalizer, cfg GuardConfig, logger zerolog.Logger) *ProviderSet {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultGuardConfig().Timeout
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = DefaultGuardConfig().BreakerFailureThreshold
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = DefaultGuardConfig().BreakerTimeout
	}
	return &ProviderSet{
		providers:  make(map[Kind]*guardedProvider),
		normalizer: normalizer,
		config:     cfg,
		logger:     logger.With().Str("component", "providers").Logger(),
	}
}

// Register adds a provider for a factor kind, replacing any previous one.
func (s *ProviderSet) Register(kind Kind, p Provider) {
	settings := gobreaker.Settings{
		Name:    "provider-" + kind.String(),
		Timeout: s.config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.config.BreakerFailureThreshold
		},
	}

	var limiter *rate.Limiter
	if s.config.RatePerSecond > 0 {
		burst := s.config.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.config.RatePerSecond), burst)
	}

	s.providers[kind] = &guardedProvider{
		provider: p,
		breaker:  gobreaker.NewCircuitBreaker[Sample](settings),
		limiter:  limiter,
	}

	s.logger.Info().Str("kind", kind.String()).Msg("registered signal provider")
}

// Kinds returns the kinds with a registered provider, in enumeration order.
func (s *ProviderSet) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.providers))
	for _, k := range Kinds() {
		if _, ok := s.providers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Resolve fetches and normalizes all registered factors for a subject.
// Provider failures of any sort (timeout, open breaker, unavailable, error)
// yield the neutral value for that kind; a malformed sample is returned as
// an error so the caller can skip the candidate.
func (s *ProviderSet) Resolve(ctx context.Context, subjectID string, window Window) (Vector, error) {
	vector := make(Vector, len(s.providers))

	for _, kind := range s.Kinds() {
		value, err := s.resolveOne(ctx, kind, subjectID, window)
		if err != nil {
			return nil, err
		}
		vector[kind] = value
	}

	return vector, nil
}

// resolveOne fetches a single factor, degrading to neutral on unavailability.
func (s *ProviderSet) resolveOne(ctx context.Context, kind Kind, subjectID string, window Window) (Value, error) {
	gp := s.providers[kind]

	if gp.limiter != nil && !gp.limiter.Allow() {
		s.fallback(kind, subjectID, "rate_limited", nil)
		return Neutral(kind), nil
	}

	start := time.Now()
	sample, err := gp.breaker.Execute(func() (Sample, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
		return gp.provider.Fetch(fetchCtx, subjectID, window)
	})
	metrics.RecordProviderFetch(kind.String(), time.Since(start))

	if err != nil {
		s.fallback(kind, subjectID, failureReason(err), err)
		return Neutral(kind), nil
	}

	value, err := s.normalizer.Normalize(kind, sample)
	if err != nil {
		// Malformed factor value: the candidate is skipped, not the cycle.
		return Value{}, err
	}
	return value, nil
}

// fallback logs and counts a provider failure that degraded to neutral.
func (s *ProviderSet) fallback(kind Kind, subjectID, reason string, err error) {
	metrics.ProviderFailures.WithLabelValues(kind.String(), reason).Inc()
	s.logger.Warn().
		Str("kind", kind.String()).
		Str("subject_id", subjectID).
		Str("reason", reason).
		Err(err).
		Msg("signal provider fell back to neutral")
}

// failureReason classifies a fetch error for metrics labels.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "error"
	}
}
