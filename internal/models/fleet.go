// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package models

import (
	"fmt"
	"strings"
)

// SuggestionType classifies the operational action a suggestion recommends.
type SuggestionType string

// Supported suggestion types.
const (
	TypeReposition   SuggestionType = "reposition"
	TypeMaintenance  SuggestionType = "maintenance"
	TypeExtendRental SuggestionType = "extend_rental"
	TypeEndRental    SuggestionType = "end_rental"
	TypeSwapUnit     SuggestionType = "swap_unit"
)

// SuggestionTypes returns all supported suggestion types in stable order.
func SuggestionTypes() []SuggestionType {
	return []SuggestionType{
		TypeReposition,
		TypeMaintenance,
		TypeExtendRental,
		TypeEndRental,
		TypeSwapUnit,
	}
}

// Valid reports whether the type is one of the supported suggestion types.
func (t SuggestionType) Valid() bool {
	switch t {
	case TypeReposition, TypeMaintenance, TypeExtendRental, TypeEndRental, TypeSwapUnit:
		return true
	default:
		return false
	}
}

// ParseSuggestionType converts a wire name into a SuggestionType.
func ParseSuggestionType(s string) (SuggestionType, error) {
	t := SuggestionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown suggestion type %q", s)
	}
	return t, nil
}

// Scope is the tenant/organizational boundary a weight profile and a
// suggestion belong to. TenantID is mandatory; dealer and customer narrow it.
type Scope struct {
	TenantID   string `json:"tenant_id"`
	DealerID   string `json:"dealer_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

// Key returns the canonical storage key for the scope.
func (s Scope) Key() string {
	return s.TenantID + "/" + s.DealerID + "/" + s.CustomerID
}

// Valid reports whether the scope carries the mandatory tenant identifier.
func (s Scope) Valid() bool {
	return s.TenantID != ""
}

// SubjectRef identifies what a suggestion is about: a piece of equipment,
// a site, or an asset-type/site pair depending on the suggestion type.
type SubjectRef struct {
	EquipmentID string `json:"equipment_id,omitempty"`
	SiteID      string `json:"site_id,omitempty"`
	AssetType   string `json:"asset_type,omitempty"`
}

// Key returns the canonical identity used for idempotent generation.
func (r SubjectRef) Key() string {
	return r.EquipmentID + "/" + r.SiteID + "/" + r.AssetType
}

// Valid reports whether the subject names at least one entity.
func (r SubjectRef) Valid() bool {
	return r.EquipmentID != "" || r.SiteID != ""
}
