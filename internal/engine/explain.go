// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/tomtom215/fleetwright/internal/ledger"
)

// defaultExplainFactors is the number of top contributions rendered when the
// configuration does not say otherwise.
const defaultExplainFactors = 4

// Explain renders a deterministic, human-readable rationale from the signed
// factor contributions of a scored candidate. The top topN contributions by
// absolute magnitude become short directional clauses, ordered by descending
// magnitude, joined into a single sentence. Contributions must already be
// sorted (Score produces them sorted); ties were broken by factor
// enumeration order there.
func Explain(contributions []ledger.Contribution, topN int) string {
	if topN <= 0 {
		topN = defaultExplainFactors
	}

	clauses := make([]string, 0, topN)
	var totalAbs float64
	for _, c := range contributions {
		totalAbs += math.Abs(c.Contribution)
	}

	for _, c := range contributions {
		if len(clauses) == topN {
			break
		}
		if c.Contribution == 0 {
			continue
		}
		clauses = append(clauses, clause(c, totalAbs))
	}

	if len(clauses) == 0 {
		return "No factor moved this suggestion; neutral signals only."
	}

	sentence := strings.Join(clauses, ", ")
	return strings.ToUpper(sentence[:1]) + sentence[1:] + "."
}

// clause renders one contribution as "<kind> <adverb> <direction> (<value>)".
func clause(c ledger.Contribution, totalAbs float64) string {
	direction := "in favor"
	if c.Contribution < 0 {
		direction = "against"
	}

	share := 0.0
	if totalAbs > 0 {
		share = math.Abs(c.Contribution) / totalAbs
	}

	var adverb string
	switch {
	case share >= 0.5:
		adverb = "strongly"
	case share >= 0.2:
		adverb = "moderately"
	default:
		adverb = "slightly"
	}

	return fmt.Sprintf("%s %s %s (%+.1f)", c.Kind, adverb, direction, c.Contribution)
}
