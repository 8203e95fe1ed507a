// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/metrics"
	"github.com/tomtom215/fleetwright/internal/models"
)

// Subject is one active entity the generator can pair with a suggestion type.
type Subject struct {
	Scope models.Scope
	Ref   models.SubjectRef
}

// SubjectSource enumerates the active subjects eligible for a suggestion
// type. The surrounding application implements it on top of its fleet
// inventory; tests use mocks.
type SubjectSource interface {
	// Subjects returns active subjects for the suggestion type: equipment
	// for maintenance/swap, sites or asset-type/site pairs for reposition
	// and rental types.
	Subjects(ctx context.Context, t models.SuggestionType) ([]Subject, error)
}

// Candidate is an ephemeral (subject, suggestionType) pair under evaluation
// in one cycle. It exists only during the pass and is never persisted.
type Candidate struct {
	Scope   models.Scope
	Subject models.SubjectRef
	Type    models.SuggestionType
	Window  factor.Window

	// Vector is populated by factor resolution before scoring.
	Vector factor.Vector

	// PriorSuggestionID is set when an existing OPEN suggestion is due for
	// re-evaluation; an actionable replacement supersedes it.
	PriorSuggestionID string
}

// openChecker is the slice of the ledger the generator depends on.
type openChecker interface {
	OpenInfo(ctx context.Context, scope models.Scope, subject models.SubjectRef, t models.SuggestionType) (*ledger.OpenInfo, error)
}

// Generator enumerates the candidates worth scoring in a cycle,
// deduplicated against already-open suggestions.
type Generator struct {
	source SubjectSource
	open   openChecker

	// reevalInterval is how long an OPEN suggestion blocks regeneration
	// before re-evaluation is due.
	reevalInterval time.Duration

	// window is the evaluation window length for new candidates.
	window time.Duration

	logger zerolog.Logger
}

// NewGenerator creates a candidate generator.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewGenerator(source SubjectSource, open openChecker, reevalInterval, window time.Duration, logger zerolog.Logger) *Generator {
	return &Generator{
		source:         source,
		open:           open,
		reevalInterval: reevalInterval,
		window:         window,
		logger:         logger.With().Str("component", "generator").Logger(),
	}
}

// Generate produces exactly one candidate per admitted (subject, type) pair
// for this cycle. A pair with an existing OPEN suggestion is skipped unless
// the re-evaluation interval has elapsed or the subject appears in changed
// (the material-change trigger); in that case the candidate carries the
// prior suggestion id so an actionable replacement can supersede it.
func (g *Generator) Generate(ctx context.Context, now time.Time, changed map[string]bool) ([]*Candidate, error) {
	window := factor.Window{Start: now, End: now.Add(g.window)}
	seen := make(map[string]bool)
	var candidates []*Candidate

	for _, t := range models.SuggestionTypes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		subjects, err := g.source.Subjects(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("enumerate subjects for %s: %w", t, err)
		}

		for _, subject := range subjects {
			key := ledger.OpenKey(subject.Scope, subject.Ref, t)
			if seen[key] {
				continue // no duplicate candidates within a cycle
			}
			seen[key] = true

			candidate, admit, err := g.admit(ctx, now, subject, t, window, changed)
			if err != nil {
				return nil, err
			}
			if !admit {
				metrics.CandidatesSkipped.WithLabelValues(string(t), "open_suggestion").Inc()
				continue
			}

			metrics.CandidatesGenerated.WithLabelValues(string(t)).Inc()
			candidates = append(candidates, candidate)
		}
	}

	g.logger.Debug().Int("candidates", len(candidates)).Msg("candidate generation complete")
	return candidates, nil
}

// admit applies the dedup rule for one (subject, type) pair.
func (g *Generator) admit(ctx context.Context, now time.Time, subject Subject, t models.SuggestionType, window factor.Window, changed map[string]bool) (*Candidate, bool, error) {
	info, err := g.open.OpenInfo(ctx, subject.Scope, subject.Ref, t)
	if err != nil {
		return nil, false, fmt.Errorf("open check for %s: %w", t, err)
	}

	candidate := &Candidate{
		Scope:   subject.Scope,
		Subject: subject.Ref,
		Type:    t,
		Window:  window,
	}

	if info == nil {
		return candidate, true, nil
	}

	reevalDue := now.Sub(info.CreatedAt) >= g.reevalInterval
	materialChange := changed[subject.Ref.Key()]
	if !reevalDue && !materialChange {
		return nil, false, nil
	}

	candidate.PriorSuggestionID = info.SuggestionID
	return candidate, true, nil
}
