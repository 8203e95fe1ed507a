// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package weights manages scoped weight profiles: the signed factor weights,
// activation thresholds and learning parameters that drive scoring, stored
// with a monotonic revision counter for optimistic-concurrency updates.
package weights

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/models"
)

// Profile holds the scoring weights for one (scope, suggestionType) pair.
// A profile is owned by exactly one scope and mutated only through the
// feedback adapter or an explicit administrative override.
type Profile struct {
	// Scope is the tenant/organizational owner of this profile.
	Scope models.Scope `json:"scope"`

	// Type is the suggestion type these weights score.
	Type models.SuggestionType `json:"type"`

	// Weights maps each factor kind to a signed real weight.
	Weights map[factor.Kind]float64 `json:"weights"`

	// RawThreshold is the weighted-sum value that maps onto the type's
	// minimum actionable score. Must be positive.
	RawThreshold float64 `json:"raw_threshold"`

	// MinActionableScore is the lowest 0-100 score worth surfacing for this
	// type. Candidates scoring below it are discarded.
	MinActionableScore float64 `json:"min_actionable_score"`

	// LearningRate is the feedback nudge step size.
	LearningRate float64 `json:"learning_rate"`

	// Revision is the monotonic counter for optimistic concurrency. It is
	// incremented on every successful Put.
	Revision uint64 `json:"revision"`

	// UpdatedAt is when the profile was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the profile invariants before a write is accepted.
func (p *Profile) Validate() error {
	if !p.Scope.Valid() {
		return fmt.Errorf("profile scope missing tenant id")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("invalid suggestion type %q", p.Type)
	}
	if p.RawThreshold <= 0 {
		return fmt.Errorf("raw threshold must be positive, got %g", p.RawThreshold)
	}
	if p.MinActionableScore <= 50 || p.MinActionableScore > 100 {
		return fmt.Errorf("min actionable score must be in (50, 100], got %g", p.MinActionableScore)
	}
	if p.LearningRate <= 0 || p.LearningRate > 0.5 {
		return fmt.Errorf("learning rate must be in (0, 0.5], got %g", p.LearningRate)
	}
	for kind, w := range p.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight for %s is not finite", kind)
		}
	}
	return nil
}

// Weight returns the signed weight for a kind (0 if unset).
func (p *Profile) Weight(kind factor.Kind) float64 {
	return p.Weights[kind]
}

// AggregateAbsWeight is the sum of absolute weights. Used as the tie-break
// between suggestion types scoring equal for the same subject: more
// signal-driven types win.
func (p *Profile) AggregateAbsWeight() float64 {
	var sum float64
	for _, w := range p.Weights {
		sum += math.Abs(w)
	}
	return sum
}

// Clone returns a deep copy. Scoring treats profiles as read-only within a
// cycle; clones keep feedback mutation away from in-flight readers.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Weights = make(map[factor.Kind]float64, len(p.Weights))
	for k, w := range p.Weights {
		cp.Weights[k] = w
	}
	return &cp
}

// Key returns the canonical storage key for the profile.
func (p *Profile) Key() string {
	return ProfileKey(p.Scope, p.Type)
}

// ProfileKey builds the canonical storage key for a (scope, type) pair.
func ProfileKey(scope models.Scope, t models.SuggestionType) string {
	return scope.Key() + "/" + string(t)
}

// Defaults carries the seed values for profiles created on first access.
type Defaults struct {
	Weights            map[factor.Kind]float64
	RawThreshold       float64
	MinActionableScore float64
	LearningRate       float64
}

// DefaultSeed returns the built-in seed profile parameters. Deployments
// override these per suggestion type through configuration.
func DefaultSeed() Defaults {
	return Defaults{
		Weights: map[factor.Kind]float64{
			factor.KindDemand:      40,
			factor.KindUtilization: 25,
			factor.KindHealth:      15,
			factor.KindProximity:   10,
			factor.KindSLARisk:     20,
			factor.KindInventory:   10,
			factor.KindCalendar:    5,
			factor.KindCarbon:      5,
		},
		RawThreshold:       30,
		MinActionableScore: 65,
		LearningRate:       0.05,
	}
}

// NewProfile creates an unsaved profile from seed defaults.
func NewProfile(scope models.Scope, t models.SuggestionType, seed Defaults) *Profile {
	weights := make(map[factor.Kind]float64, len(seed.Weights))
	for k, w := range seed.Weights {
		weights[k] = w
	}
	return &Profile{
		Scope:              scope,
		Type:               t,
		Weights:            weights,
		RawThreshold:       seed.RawThreshold,
		MinActionableScore: seed.MinActionableScore,
		LearningRate:       seed.LearningRate,
	}
}
