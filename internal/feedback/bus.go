// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// BusConfig holds router and retry configuration for the feedback bus.
type BusConfig struct {
	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// OutputChannelBuffer sizes the in-process pub/sub channels.
	OutputChannelBuffer int64
}

// DefaultBusConfig returns production defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		OutputChannelBuffer:  256,
	}
}

// Bus owns the in-process pub/sub and the router with the feedback and
// deferred-nudge handlers registered. Messages that fail all retries land
// on the poison topic instead of being lost.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger zerolog.Logger
}

// NewBus creates the pub/sub and the router with recovery, retry and
// poison-queue middleware installed. Handlers are attached separately with
// RegisterHandlers because the decision handler publishes deferred nudges
// back through this same bus.
func NewBus(cfg BusConfig, logger zerolog.Logger) (*Bus, error) {
	wmLogger := newLoggerAdapter(logger)

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: cfg.OutputChannelBuffer},
		wmLogger,
	)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          wmLogger,
	}
	router.AddMiddleware(retry.Middleware)

	// Innermost, so permanent failures skip the retry backoff and go
	// straight to the DLQ. Transient errors bubble up to Retry.
	poison, err := middleware.PoisonQueueWithFilter(pubsub, TopicPoison, IsPermanentError)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}
	router.AddMiddleware(poison)

	return &Bus{
		pubsub: pubsub,
		router: router,
		logger: logger.With().Str("component", "feedback_bus").Logger(),
	}, nil
}

// RegisterHandlers attaches the feedback pipeline: TopicReceived feeds the
// decision handler, TopicDeferred feeds the nudge reapplier. Must be called
// before Serve.
func (b *Bus) RegisterHandlers(handler *Handler, deferredHandler *DeferredHandler) {
	b.router.AddConsumerHandler("feedback_decisions", TopicReceived, b.pubsub, handler.Handle)
	b.router.AddConsumerHandler("deferred_nudges", TopicDeferred, b.pubsub, deferredHandler.Handle)
}

// Publisher returns the publisher side of the bus. The API and the
// feedback handler both publish through it.
func (b *Bus) Publisher() message.Publisher {
	return b.pubsub
}

// PublishEvent marshals and publishes a feedback event.
func (b *Bus) PublishEvent(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feedback event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(TopicReceived, msg); err != nil {
		return fmt.Errorf("publish feedback event: %w", err)
	}
	return nil
}

// Serve runs the router until the context is canceled. It satisfies
// suture.Service.
func (b *Bus) Serve(ctx context.Context) error {
	b.logger.Info().Msg("feedback bus started")
	return b.router.Run(ctx)
}

// Running returns a channel that closes once the router is running.
func (b *Bus) Running() <-chan struct{} {
	return b.router.Running()
}

// Close stops the router and the pub/sub, waiting up to CloseTimeout for
// in-flight messages.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.pubsub.Close()
}

// loggerAdapter bridges zerolog to watermill's logging interface.
type loggerAdapter struct {
	logger zerolog.Logger
}

func newLoggerAdapter(logger zerolog.Logger) watermill.LoggerAdapter {
	return &loggerAdapter{logger: logger.With().Str("component", "watermill").Logger()}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.logger.Error().Err(err), fields).Msg(msg)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.logger.Info(), fields).Msg(msg)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), fields).Msg(msg)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.logger.Trace(), fields).Msg(msg)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &loggerAdapter{logger: ctx.Logger()}
}

func (a *loggerAdapter) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
