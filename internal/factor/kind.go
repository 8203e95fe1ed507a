// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package factor defines the signal factors that feed suggestion scoring:
// the fixed factor kinds, normalized factor values, the per-kind normalizer,
// and the guarded signal provider set that never fails a candidate.
package factor

import "fmt"

// Kind identifies one independently-sourced signal contributing to a score.
type Kind int

// The fixed factor enumeration. Order is significant: it is the deterministic
// tie-break order for explanations and the iteration order for scoring.
const (
	KindDemand Kind = iota
	KindUtilization
	KindHealth
	KindProximity
	KindSLARisk
	KindInventory
	KindCalendar
	KindCarbon

	kindCount
)

// Kinds returns all factor kinds in enumeration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// String returns the stable wire name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDemand:
		return "demand"
	case KindUtilization:
		return "utilization"
	case KindHealth:
		return "health"
	case KindProximity:
		return "proximity"
	case KindSLARisk:
		return "sla_risk"
	case KindInventory:
		return "inventory"
	case KindCalendar:
		return "calendar"
	case KindCarbon:
		return "carbon"
	default:
		return "unknown"
	}
}

// ParseKind converts a wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k := Kind(0); k < kindCount; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown factor kind %q", s)
}

// MarshalText implements encoding.TextMarshaler so kinds serialize as names.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
