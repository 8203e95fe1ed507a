// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package factor

import "testing"

func TestKindRoundTrip(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds() {
		name := k.String()
		if name == "unknown" {
			t.Fatalf("kind %d has no wire name", k)
		}
		parsed, err := ParseKind(name)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", name, err)
		}
		if parsed != k {
			t.Errorf("round trip for %q: got %d, want %d", name, parsed, k)
		}
	}
}

func TestParseKindUnknown(t *testing.T) {
	t.Parallel()

	if _, err := ParseKind("phlogiston"); err == nil {
		t.Error("expected error for unknown kind name")
	}
	if _, err := ParseKind(""); err == nil {
		t.Error("expected error for empty kind name")
	}
}

func TestKindTextMarshaling(t *testing.T) {
	t.Parallel()

	data, err := KindSLARisk.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(data) != "sla_risk" {
		t.Errorf("MarshalText = %q, want %q", data, "sla_risk")
	}

	var k Kind
	if err := k.UnmarshalText([]byte("carbon")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if k != KindCarbon {
		t.Errorf("UnmarshalText = %d, want %d", k, KindCarbon)
	}
	if err := k.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown kind text")
	}
}

func TestKindsEnumerationOrder(t *testing.T) {
	t.Parallel()

	kinds := Kinds()
	if len(kinds) != int(kindCount) {
		t.Fatalf("Kinds() returned %d kinds, want %d", len(kinds), kindCount)
	}
	for i, k := range kinds {
		if int(k) != i {
			t.Errorf("kind at index %d is %d, enumeration order broken", i, k)
		}
	}
}
