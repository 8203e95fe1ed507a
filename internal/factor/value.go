// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package factor

import "time"

// Value is a normalized factor observation for one subject and window.
type Value struct {
	// Kind identifies the signal that produced this value.
	Kind Kind `json:"kind"`

	// Raw is the provider output before normalization. For categorical
	// signals this is the severity level index.
	Raw float64 `json:"raw"`

	// Normalized is the value mapped into [-1, 1]. Positive values push a
	// suggestion toward action, negative values away from it.
	Normalized float64 `json:"normalized"`

	// Confidence is the reliability of this observation in [0, 1].
	Confidence float64 `json:"confidence"`

	// Defaulted is true when the provider was unavailable and the value
	// was substituted with the neutral fallback.
	Defaulted bool `json:"defaulted,omitempty"`
}

// Neutral returns the fallback value emitted when a provider is unreachable
// or has no data for the window: normalized 0, confidence 0. Absence of one
// signal must never abort scoring of a candidate.
func Neutral(kind Kind) Value {
	return Value{
		Kind:       kind,
		Normalized: 0,
		Confidence: 0,
		Defaulted:  true,
	}
}

// Vector is an ordered set of factor values, at most one per kind.
// Iteration in Kind order keeps scoring deterministic.
type Vector map[Kind]Value

// Window is the evaluation window a factor observation covers.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Sample is the raw output of a signal provider before normalization.
type Sample struct {
	// Value is the provider's raw numeric output. For categorical providers
	// this is the name of the category, carried in Category instead.
	Value float64

	// Category is set for categorical providers (e.g. health states).
	Category string

	// Confidence is the provider's own reliability estimate in [0, 1].
	// Zero means the provider did not report one; the normalizer then
	// assumes full confidence for a delivered sample.
	Confidence float64
}
