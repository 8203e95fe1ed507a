// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package feedback

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/metrics"
)

// decider is the slice of the ledger the handler depends on.
type decider interface {
	Decide(ctx context.Context, id string, action ledger.Action, actor, reason string) (*ledger.Suggestion, error)
}

// Handler consumes feedback events: it records the decision in the ledger,
// then nudges the scoped weight profile. Decision recording and weight
// adaptation are decoupled; a nudge that cannot land inline is deferred to
// its own topic rather than blocking or dropping the event.
type Handler struct {
	ledger   decider
	nudger   *Nudger
	deferred message.Publisher
	validate *validator.Validate
	logger   zerolog.Logger

	eventsReceived atomic.Int64
	eventsApplied  atomic.Int64
	eventsStale    atomic.Int64
	eventsDeferred atomic.Int64
	parseErrors    atomic.Int64
}

// NewHandler creates a feedback handler. The deferred publisher receives
// nudges whose optimistic writes were exhausted.
func NewHandler(led decider, nudger *Nudger, deferred message.Publisher, logger zerolog.Logger) (*Handler, error) {
	if led == nil {
		return nil, errors.New("ledger required")
	}
	if nudger == nil {
		return nil, errors.New("nudger required")
	}
	return &Handler{
		ledger:   led,
		nudger:   nudger,
		deferred: deferred,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "feedback_handler").Logger(),
	}, nil
}

// Handle processes one feedback message. Malformed or invalid payloads are
// permanent failures; a decision on an already-terminal suggestion is acked
// as stale since the first decision won.
func (h *Handler) Handle(msg *message.Message) error {
	h.eventsReceived.Add(1)

	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.parseErrors.Add(1)
		metrics.FeedbackApplied.WithLabelValues("unknown", "invalid").Inc()
		return NewPermanentError("parse feedback event", err)
	}
	if err := h.validate.Struct(&event); err != nil {
		h.parseErrors.Add(1)
		metrics.FeedbackApplied.WithLabelValues(string(event.Action), "invalid").Inc()
		return NewPermanentError("validate feedback event", err)
	}

	ctx := msg.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	decided, err := h.ledger.Decide(ctx, event.SuggestionID, event.Action, event.Actor, event.Reason)
	switch {
	case errors.Is(err, ledger.ErrStaleSuggestion):
		h.eventsStale.Add(1)
		metrics.FeedbackApplied.WithLabelValues(string(event.Action), "stale").Inc()
		h.logger.Debug().
			Str("suggestion_id", event.SuggestionID).
			Str("action", string(event.Action)).
			Msg("stale feedback ignored")
		return nil
	case errors.Is(err, ledger.ErrNotFound):
		metrics.FeedbackApplied.WithLabelValues(string(event.Action), "invalid").Inc()
		return NewPermanentError("unknown suggestion", err)
	case err != nil:
		return err // transient, retry
	}

	err = h.nudger.Apply(ctx, decided.Scope, decided.Type, event.Action, decided.Contributions)
	if errors.Is(err, ErrRetriesExhausted) {
		return h.deferNudge(ctx, &event, decided)
	}
	if err != nil {
		// The decision is already durable; failing here would replay it.
		// Defer the nudge instead.
		h.logger.Warn().Err(err).
			Str("suggestion_id", event.SuggestionID).
			Msg("weight nudge failed, deferring")
		return h.deferNudge(ctx, &event, decided)
	}

	h.eventsApplied.Add(1)
	metrics.FeedbackApplied.WithLabelValues(string(event.Action), "applied").Inc()
	return nil
}

// deferNudge hands the weight update to the deferred topic so it is
// reapplied later without replaying the already-recorded decision.
func (h *Handler) deferNudge(ctx context.Context, event *Event, decided *ledger.Suggestion) error {
	nudge := DeferredNudge{
		SuggestionID:  event.SuggestionID,
		Scope:         decided.Scope,
		Type:          decided.Type,
		Action:        event.Action,
		Contributions: decided.Contributions,
		DeferredAt:    time.Now().UTC(),
	}

	payload, err := json.Marshal(&nudge)
	if err != nil {
		return NewPermanentError("marshal deferred nudge", err)
	}

	out := message.NewMessage(event.SuggestionID, payload)
	out.SetContext(ctx)
	if err := h.deferred.Publish(TopicDeferred, out); err != nil {
		return err // retry the whole event, Decide will report stale and skip
	}

	h.eventsDeferred.Add(1)
	metrics.FeedbackApplied.WithLabelValues(string(event.Action), "deferred").Inc()
	metrics.FeedbackDeferred.Inc()
	return nil
}

// Stats returns handler counters.
func (h *Handler) Stats() HandlerStats {
	return HandlerStats{
		EventsReceived: h.eventsReceived.Load(),
		EventsApplied:  h.eventsApplied.Load(),
		EventsStale:    h.eventsStale.Load(),
		EventsDeferred: h.eventsDeferred.Load(),
		ParseErrors:    h.parseErrors.Load(),
	}
}

// HandlerStats holds runtime counters for the feedback handler.
type HandlerStats struct {
	EventsReceived int64
	EventsApplied  int64
	EventsStale    int64
	EventsDeferred int64
	ParseErrors    int64
}
