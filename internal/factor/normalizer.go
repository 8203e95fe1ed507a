// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package factor

import (
	"fmt"
	"math"
	"strings"
)

// TransformKind selects the normalization transform for a factor kind.
type TransformKind string

const (
	// TransformLinear maps a bounded raw range onto [-1, 1] with clamping.
	TransformLinear TransformKind = "linear"

	// TransformSigmoid saturates unbounded magnitudes via tanh(raw/scale).
	TransformSigmoid TransformKind = "sigmoid"

	// TransformSeverity maps an ordered categorical severity table onto [-1, 1].
	TransformSeverity TransformKind = "severity"
)

// Transform is the per-kind normalization configuration.
type Transform struct {
	Kind TransformKind `json:"kind" koanf:"kind"`

	// Min and Max bound the raw range for linear transforms. Raw values at
	// Min map to -1, at Max to +1, clamped outside.
	Min float64 `json:"min,omitempty" koanf:"min"`
	Max float64 `json:"max,omitempty" koanf:"max"`

	// Scale divides the raw value before tanh for sigmoid transforms.
	Scale float64 `json:"scale,omitempty" koanf:"scale"`

	// Invert flips the sign of the normalized value. Used for kinds where a
	// high raw reading argues against action (e.g. proximity distance).
	Invert bool `json:"invert,omitempty" koanf:"invert"`

	// Severity is the ordered category table for severity transforms,
	// from most benign to most severe. Categories map evenly onto [-1, 1].
	Severity []string `json:"severity,omitempty" koanf:"severity"`
}

// Validate checks the transform parameters.
func (t Transform) Validate() error {
	switch t.Kind {
	case TransformLinear:
		if t.Max <= t.Min {
			return fmt.Errorf("linear transform requires max > min, got [%g, %g]", t.Min, t.Max)
		}
	case TransformSigmoid:
		if t.Scale <= 0 {
			return fmt.Errorf("sigmoid transform requires positive scale, got %g", t.Scale)
		}
	case TransformSeverity:
		if len(t.Severity) < 2 {
			return fmt.Errorf("severity transform requires at least 2 categories, got %d", len(t.Severity))
		}
	default:
		return fmt.Errorf("unknown transform kind %q", t.Kind)
	}
	return nil
}

// Normalizer converts raw provider samples into factor values on the common
// [-1, 1] scale using per-kind configured transforms.
type Normalizer struct {
	transforms map[Kind]Transform
}

// NewNormalizer builds a normalizer from per-kind transforms. Kinds without
// a configured transform fall back to DefaultTransforms.
func NewNormalizer(transforms map[Kind]Transform) (*Normalizer, error) {
	merged := DefaultTransforms()
	for kind, t := range transforms {
		merged[kind] = t
	}
	for kind, t := range merged {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transform for %s: %w", kind, err)
		}
	}
	return &Normalizer{transforms: merged}, nil
}

// DefaultTransforms returns the built-in per-kind transforms. These are
// starting points; deployments tune them through configuration.
func DefaultTransforms() map[Kind]Transform {
	return map[Kind]Transform{
		KindDemand:      {Kind: TransformSigmoid, Scale: 1.0},
		KindUtilization: {Kind: TransformLinear, Min: 0, Max: 1},
		KindHealth:      {Kind: TransformSeverity, Severity: []string{"healthy", "watch", "degraded", "failing"}},
		KindProximity:   {Kind: TransformSigmoid, Scale: 50.0, Invert: true}, // raw is km away
		KindSLARisk:     {Kind: TransformLinear, Min: 0, Max: 1},
		KindInventory:   {Kind: TransformSigmoid, Scale: 5.0},
		KindCalendar:    {Kind: TransformLinear, Min: -1, Max: 1},
		KindCarbon:      {Kind: TransformSigmoid, Scale: 100.0, Invert: true}, // raw is kg CO2e
	}
}

// Normalize converts a provider sample into a factor Value.
// A malformed sample (NaN, unknown category) is an error: the caller skips
// that candidate, it does not abort the cycle.
func (n *Normalizer) Normalize(kind Kind, sample Sample) (Value, error) {
	t, ok := n.transforms[kind]
	if !ok {
		return Value{}, fmt.Errorf("no transform configured for kind %s", kind)
	}

	raw := sample.Value
	var normalized float64

	switch t.Kind {
	case TransformLinear:
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return Value{}, fmt.Errorf("malformed raw value for %s: %g", kind, raw)
		}
		normalized = 2*(raw-t.Min)/(t.Max-t.Min) - 1
		normalized = clamp(normalized, -1, 1)

	case TransformSigmoid:
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return Value{}, fmt.Errorf("malformed raw value for %s: %g", kind, raw)
		}
		normalized = math.Tanh(raw / t.Scale)

	case TransformSeverity:
		idx, err := t.severityIndex(sample.Category)
		if err != nil {
			return Value{}, fmt.Errorf("kind %s: %w", kind, err)
		}
		raw = float64(idx)
		// Evenly spread categories over [-1, 1], most benign first.
		normalized = 2*float64(idx)/float64(len(t.Severity)-1) - 1
	}

	if t.Invert {
		normalized = -normalized
	}

	confidence := sample.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	if confidence < 0 || confidence > 1 {
		return Value{}, fmt.Errorf("confidence out of range for %s: %g", kind, confidence)
	}

	return Value{
		Kind:       kind,
		Raw:        raw,
		Normalized: normalized,
		Confidence: confidence,
	}, nil
}

// severityIndex resolves a category name to its position in the table.
func (t Transform) severityIndex(category string) (int, error) {
	for i, c := range t.Severity {
		if strings.EqualFold(c, category) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown severity category %q", category)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
