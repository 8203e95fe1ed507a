// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package ledger records generated suggestions and their lifecycle in an
// append-only store. A suggestion is immutable once created; state changes
// are appended as new events referencing the suggestion id, never written
// destructively.
package ledger

import (
	"time"

	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/models"
)

// State is the lifecycle state of a suggestion.
type State string

// Lifecycle states. OPEN is initial; the other three are terminal.
const (
	StateOpen     State = "OPEN"
	StateAccepted State = "ACCEPTED"
	StateDeclined State = "DECLINED"
	StateExpired  State = "EXPIRED"
)

// Terminal reports whether no further transitions are permitted.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateDeclined || s == StateExpired
}

// CanTransition reports whether the transition s -> to is permitted.
func (s State) CanTransition(to State) bool {
	if s != StateOpen {
		return false
	}
	return to == StateAccepted || to == StateDeclined || to == StateExpired
}

// Action is a consumer decision on an open suggestion.
type Action string

// Feedback actions.
const (
	ActionAccept  Action = "ACCEPT"
	ActionDecline Action = "DECLINE"
)

// Valid reports whether the action is ACCEPT or DECLINE.
func (a Action) Valid() bool {
	return a == ActionAccept || a == ActionDecline
}

// State returns the terminal state the action produces.
func (a Action) State() State {
	if a == ActionAccept {
		return StateAccepted
	}
	return StateDeclined
}

// Contribution is one factor's signed share of a suggestion's raw score.
// The ordered contribution sequence is the exact decomposition used to
// produce the score, not an approximation.
type Contribution struct {
	Kind         factor.Kind `json:"kind"`
	Contribution float64     `json:"contribution"`
}

// Suggestion is one recorded operational recommendation.
type Suggestion struct {
	ID             string                `json:"id"`
	Type           models.SuggestionType `json:"type"`
	Scope          models.Scope          `json:"scope"`
	Subject        models.SubjectRef     `json:"subject"`
	Score          float64               `json:"score"`      // [0, 100]
	Confidence     float64               `json:"confidence"` // [0, 1]
	Contributions  []Contribution        `json:"factors"`    // ordered by |magnitude| desc
	Explanation    string                `json:"explanation"`
	State          State                 `json:"state"`
	Window         factor.Window         `json:"window"`
	CreatedAt      time.Time             `json:"created_at"`
	DecidedAt      *time.Time            `json:"decided_at,omitempty"`
	DecidedBy      string                `json:"decided_by,omitempty"`
	DecisionReason string                `json:"decision_reason,omitempty"`
}

// OpenKey is the idempotency key: at most one OPEN suggestion may exist per
// (scope, subject, suggestionType) at any time.
func (s *Suggestion) OpenKey() string {
	return OpenKey(s.Scope, s.Subject, s.Type)
}

// OpenKey builds the idempotency key for a (scope, subject, type) triple.
func OpenKey(scope models.Scope, subject models.SubjectRef, t models.SuggestionType) string {
	return scope.Key() + "|" + subject.Key() + "|" + string(t)
}

// EventType classifies ledger events.
type EventType string

// Ledger event types.
const (
	EventCreated EventType = "created"
	EventDecided EventType = "decided"
	EventExpired EventType = "expired"
)

// Event is one append-only ledger entry for a suggestion.
type Event struct {
	SuggestionID string    `json:"suggestion_id"`
	Seq          uint64    `json:"seq"`
	Type         EventType `json:"type"`
	State        State     `json:"state"`
	Actor        string    `json:"actor,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// OpenInfo describes the currently open suggestion for an idempotency key.
// The candidate generator uses it to decide whether re-evaluation is due.
type OpenInfo struct {
	SuggestionID string
	CreatedAt    time.Time
}

// Filter narrows List queries.
type Filter struct {
	State    State
	Type     models.SuggestionType
	TenantID string
	Subject  string // matches the subject key
	Page     int    // 1-based; 0 means first page
	PageSize int    // 0 means store default
}
