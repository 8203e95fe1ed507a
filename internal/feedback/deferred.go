// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package feedback

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/metrics"
)

// DeferredHandler reapplies weight nudges that lost their optimistic write
// race on the first pass. The decision itself is already in the ledger, so
// this handler touches only the weight profile. Failures return an error
// and ride the router's retry backoff; the poison queue is the last stop.
type DeferredHandler struct {
	nudger *Nudger
	logger zerolog.Logger

	reapplied atomic.Int64
}

// NewDeferredHandler creates a handler for the deferred nudge topic.
func NewDeferredHandler(nudger *Nudger, logger zerolog.Logger) (*DeferredHandler, error) {
	if nudger == nil {
		return nil, errors.New("nudger required")
	}
	return &DeferredHandler{
		nudger: nudger,
		logger: logger.With().Str("component", "deferred_handler").Logger(),
	}, nil
}

// Handle reapplies one deferred nudge.
func (h *DeferredHandler) Handle(msg *message.Message) error {
	var nudge DeferredNudge
	if err := json.Unmarshal(msg.Payload, &nudge); err != nil {
		return NewPermanentError("parse deferred nudge", err)
	}

	ctx := msg.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	err := h.nudger.Apply(ctx, nudge.Scope, nudge.Type, nudge.Action, nudge.Contributions)
	if errors.Is(err, ErrRetriesExhausted) {
		// Still contended. Let the retry middleware back off and try again.
		return err
	}
	if err != nil {
		return err
	}

	h.reapplied.Add(1)
	metrics.FeedbackDeferred.Dec()
	metrics.FeedbackApplied.WithLabelValues(string(nudge.Action), "applied").Inc()
	h.logger.Debug().
		Str("suggestion_id", nudge.SuggestionID).
		Msg("deferred nudge reapplied")
	return nil
}

// Reapplied returns the number of deferred nudges applied so far.
func (h *DeferredHandler) Reapplied() int64 {
	return h.reapplied.Load()
}
