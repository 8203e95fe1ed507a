// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

// Package feedback consumes consumer decisions on open suggestions,
// records them in the ledger and nudges the scoped weight profile so
// future scoring reflects what operators actually accept.
package feedback

import (
	"errors"
	"time"

	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/models"
)

// Topics carried on the message bus.
const (
	// TopicReceived carries incoming feedback events from the API.
	TopicReceived = "feedback.received"

	// TopicDeferred carries weight nudges whose optimistic writes were
	// exhausted by concurrent profile updates. They are reapplied later,
	// never dropped.
	TopicDeferred = "feedback.deferred"

	// TopicPoison receives messages that failed all retries.
	TopicPoison = "dlq.feedback"
)

// Event is one consumer decision on an open suggestion.
type Event struct {
	SuggestionID string        `json:"suggestion_id" validate:"required,uuid4"`
	Action       ledger.Action `json:"action" validate:"required,oneof=ACCEPT DECLINE"`
	Reason       string        `json:"reason,omitempty" validate:"max=512"`
	Actor        string        `json:"actor" validate:"required,max=128"`
	Timestamp    time.Time     `json:"timestamp"`
}

// DeferredNudge is a weight update that could not be applied inline. It
// carries everything needed to retry without re-reading the suggestion.
type DeferredNudge struct {
	SuggestionID  string                `json:"suggestion_id"`
	Scope         models.Scope          `json:"scope"`
	Type          models.SuggestionType `json:"type"`
	Action        ledger.Action         `json:"action"`
	Contributions []ledger.Contribution `json:"contributions"`
	DeferredAt    time.Time             `json:"deferred_at"`
}

// PermanentError marks a message as non-retryable. The poison queue
// middleware routes it to the DLQ after the retry budget is spent.
type PermanentError struct {
	Message string
	Cause   error
}

// NewPermanentError creates a permanent error.
func NewPermanentError(message string, cause error) *PermanentError {
	return &PermanentError{Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// IsPermanentError reports whether the error is non-retryable.
func IsPermanentError(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
