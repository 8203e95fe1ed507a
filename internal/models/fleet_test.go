// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package models

import "testing"

func TestParseSuggestionType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    SuggestionType
		wantErr bool
	}{
		{name: "reposition", input: "reposition", want: TypeReposition},
		{name: "maintenance", input: "maintenance", want: TypeMaintenance},
		{name: "extend rental", input: "extend_rental", want: TypeExtendRental},
		{name: "end rental", input: "end_rental", want: TypeEndRental},
		{name: "swap unit", input: "swap_unit", want: TypeSwapUnit},
		{name: "uppercase normalized", input: "REPOSITION", want: TypeReposition},
		{name: "surrounding whitespace", input: "  maintenance ", want: TypeMaintenance},
		{name: "unknown", input: "teleport", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSuggestionType(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSuggestionType(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSuggestionType(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSuggestionType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSuggestionTypesStableOrder(t *testing.T) {
	t.Parallel()

	first := SuggestionTypes()
	second := SuggestionTypes()
	if len(first) != len(second) {
		t.Fatalf("type list length changed between calls: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("type order not stable at index %d: %q vs %q", i, first[i], second[i])
		}
		if !first[i].Valid() {
			t.Errorf("enumerated type %q does not validate", first[i])
		}
	}
}

func TestScopeKeyAndValid(t *testing.T) {
	t.Parallel()

	scope := Scope{TenantID: "acme", DealerID: "east", CustomerID: "c42"}
	if got, want := scope.Key(), "acme/east/c42"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if !scope.Valid() {
		t.Error("scope with tenant should be valid")
	}

	if (Scope{DealerID: "east"}).Valid() {
		t.Error("scope without tenant should be invalid")
	}

	// Narrower and wider scopes must produce distinct keys.
	wide := Scope{TenantID: "acme"}
	if wide.Key() == scope.Key() {
		t.Error("tenant-wide and customer-narrow scopes collided")
	}
}

func TestSubjectRefKeyAndValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ref   SubjectRef
		key   string
		valid bool
	}{
		{
			name:  "equipment",
			ref:   SubjectRef{EquipmentID: "exc-100"},
			key:   "exc-100//",
			valid: true,
		},
		{
			name:  "site and asset type",
			ref:   SubjectRef{SiteID: "yard-7", AssetType: "excavator"},
			key:   "/yard-7/excavator",
			valid: true,
		},
		{
			name:  "empty",
			ref:   SubjectRef{},
			key:   "//",
			valid: false,
		},
		{
			name:  "asset type only",
			ref:   SubjectRef{AssetType: "excavator"},
			key:   "//excavator",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.ref.Key(); got != tt.key {
				t.Errorf("Key() = %q, want %q", got, tt.key)
			}
			if got := tt.ref.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}
