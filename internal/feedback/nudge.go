// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/metrics"
	"github.com/tomtom215/fleetwright/internal/models"
	"github.com/tomtom215/fleetwright/internal/weights"
)

// weightBound caps individual weights so a run of one-sided feedback
// cannot grow a single factor without limit.
const weightBound = 100.0

// defaultNudgeRetries bounds optimistic profile writes per event.
const defaultNudgeRetries = 5

// ErrRetriesExhausted indicates the profile kept moving under us for the
// whole retry budget. The nudge is deferred, not dropped.
var ErrRetriesExhausted = errors.New("profile update retries exhausted")

// Nudger applies feedback-proportional weight updates to scoped profiles
// with optimistic concurrency.
type Nudger struct {
	store      weights.Store
	seed       weights.Defaults
	maxRetries int
	logger     zerolog.Logger
}

// NewNudger creates a nudger. maxRetries <= 0 selects the default budget.
func NewNudger(store weights.Store, seed weights.Defaults, maxRetries int, logger zerolog.Logger) *Nudger {
	if maxRetries <= 0 {
		maxRetries = defaultNudgeRetries
	}
	return &Nudger{
		store:      store,
		seed:       seed,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "nudger").Logger(),
	}
}

// Apply nudges each factor weight in proportion to its share of the
// decided suggestion's contributions. ACCEPT reinforces the factors that
// argued for the suggestion, DECLINE pushes against them. Each write is
// revision-checked; a concurrent update triggers a re-read and retry up
// to the budget, after which ErrRetriesExhausted is returned.
func (n *Nudger) Apply(ctx context.Context, scope models.Scope, t models.SuggestionType, action ledger.Action, contributions []ledger.Contribution) error {
	total := 0.0
	for _, c := range contributions {
		total += math.Abs(c.Contribution)
	}
	if total == 0 {
		// Neutral suggestion, nothing to learn from.
		return nil
	}

	sign := 1.0
	if action == ledger.ActionDecline {
		sign = -1.0
	}

	for attempt := 0; attempt < n.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		profile, err := n.store.GetOrSeed(ctx, scope, t, n.seed)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}

		updated := profile.Clone()
		for _, c := range contributions {
			delta := profile.LearningRate * sign * (c.Contribution / total)
			w := updated.Weights[c.Kind] + delta
			updated.Weights[c.Kind] = clampWeight(w)
		}

		err = n.store.Put(ctx, updated, profile.Revision)
		if errors.Is(err, weights.ErrConflict) {
			n.logger.Debug().
				Str("profile", weights.ProfileKey(scope, t)).
				Int("attempt", attempt+1).
				Msg("profile moved during nudge, retrying")
			continue
		}
		if err != nil {
			return fmt.Errorf("store profile: %w", err)
		}

		metrics.WeightUpdates.WithLabelValues("feedback").Inc()
		return nil
	}

	return ErrRetriesExhausted
}

func clampWeight(w float64) float64 {
	if w > weightBound {
		return weightBound
	}
	if w < -weightBound {
		return -weightBound
	}
	return w
}
