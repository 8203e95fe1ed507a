// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package engine generates, scores and explains operational suggestions for
// a rented-equipment fleet. Scoring is a deterministic pure function of the
// candidate's factor vector and the scoped weight profile; no hidden state.
package engine

import (
	"math"
	"sort"

	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/weights"
)

// neutralScore is the 0-100 score a zero weighted sum maps to.
const neutralScore = 50.0

// ScoreResult is the output of scoring one candidate.
type ScoreResult struct {
	// RawScore is the unbounded weighted sum of contributions.
	RawScore float64

	// Score is RawScore mapped onto [0, 100]; 50 is neutral.
	Score float64

	// Confidence is the |weight|-weighted average of factor confidences.
	Confidence float64

	// Contributions is the exact signed decomposition of RawScore, ordered
	// by descending absolute magnitude (ties by factor enumeration order).
	Contributions []ledger.Contribution

	// Actionable reports whether the score clears the profile's minimum
	// actionable score. Most candidates do not; that is the expected
	// filtering outcome, not an error.
	Actionable bool
}

// Score applies a weight profile to a factor vector.
//
// Per factor: contribution = weight(kind) x normalized x confidence.
// rawScore is the sum of contributions. The affine map onto [0, 100] is
// calibrated so rawScore 0 lands on 50 and the profile's RawThreshold lands
// on its MinActionableScore, then clamped.
//
// Confidence is the average of per-factor confidences weighted by |weight|;
// zero-weight factors do not affect it, and each defaulted (neutral,
// confidence 0) factor pulls it down. A candidate whose confidence is 0 is
// never actionable regardless of the computed score.
func Score(vector factor.Vector, profile *weights.Profile) ScoreResult {
	var (
		rawScore  float64
		weightSum float64
		confSum   float64
	)

	contributions := make([]ledger.Contribution, 0, len(vector))

	// Iterate in Kind enumeration order for determinism.
	for _, kind := range factor.Kinds() {
		value, ok := vector[kind]
		if !ok {
			continue
		}

		w := profile.Weight(kind)
		if w == 0 {
			continue
		}

		c := w * value.Normalized * value.Confidence
		rawScore += c
		contributions = append(contributions, ledger.Contribution{Kind: kind, Contribution: c})

		aw := math.Abs(w)
		weightSum += aw
		confSum += aw * value.Confidence
	}

	confidence := 0.0
	if weightSum > 0 {
		confidence = confSum / weightSum
	}

	slope := (profile.MinActionableScore - neutralScore) / profile.RawThreshold
	score := clampScore(neutralScore + slope*rawScore)

	sortContributions(contributions)

	return ScoreResult{
		RawScore:      rawScore,
		Score:         score,
		Confidence:    confidence,
		Contributions: contributions,
		Actionable:    confidence > 0 && score >= profile.MinActionableScore,
	}
}

// sortContributions orders by descending |contribution|, ties broken by the
// factor enumeration order so explanations are deterministic.
func sortContributions(contributions []ledger.Contribution) {
	sort.SliceStable(contributions, func(i, j int) bool {
		ai, aj := math.Abs(contributions[i].Contribution), math.Abs(contributions[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return contributions[i].Kind < contributions[j].Kind
	})
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
