// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/weights"
)

func testBusConfig() BusConfig {
	return BusConfig{
		CloseTimeout:         time.Second,
		RetryMaxRetries:      1,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
		RetryMultiplier:      2.0,
		OutputChannelBuffer:  16,
	}
}

// busFixture runs a full bus with a real handler chain on fakes.
type busFixture struct {
	bus     *Bus
	handler *Handler
	decider *fakeDecider
	store   *fakeStore
	cancel  context.CancelFunc
	done    chan struct{}
}

func newBusFixture(t *testing.T) *busFixture {
	t.Helper()

	bus, err := NewBus(testBusConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}

	decider := &fakeDecider{decided: decidedSuggestion()}
	store := newFakeStore()
	nudger := NewNudger(store, weights.DefaultSeed(), 3, zerolog.Nop())

	handler, err := NewHandler(decider, nudger, bus.Publisher(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	deferredHandler, err := NewDeferredHandler(nudger, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDeferredHandler: %v", err)
	}
	bus.RegisterHandlers(handler, deferredHandler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Serve(ctx)
	}()

	select {
	case <-bus.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("bus did not start")
	}

	fx := &busFixture{bus: bus, handler: handler, decider: decider, store: store, cancel: cancel, done: done}
	t.Cleanup(func() {
		fx.cancel()
		<-fx.done
		if err := fx.bus.Close(); err != nil {
			t.Errorf("close bus: %v", err)
		}
	})
	return fx
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBusDeliversFeedbackEvent(t *testing.T) {
	t.Parallel()

	fx := newBusFixture(t)

	event := &Event{
		SuggestionID: testSuggestionID,
		Action:       ledger.ActionAccept,
		Actor:        "dispatcher-7",
		Timestamp:    time.Now().UTC(),
	}
	if err := fx.bus.PublishEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	waitFor(t, func() bool { return fx.handler.Stats().EventsApplied == 1 })

	if fx.decider.calls.Load() != 1 {
		t.Errorf("Decide calls = %d, want 1", fx.decider.calls.Load())
	}
	if fx.store.PutCalls() != 1 {
		t.Errorf("nudge writes = %d, want 1", fx.store.PutCalls())
	}
}

func TestBusRoutesPermanentFailuresToPoison(t *testing.T) {
	t.Parallel()

	fx := newBusFixture(t)

	poisoned, err := fx.bus.pubsub.Subscribe(context.Background(), TopicPoison)
	if err != nil {
		t.Fatalf("subscribe poison: %v", err)
	}

	bad := message.NewMessage(watermill.NewUUID(), []byte("{not json"))
	if err := fx.bus.Publisher().Publish(TopicReceived, bad); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-poisoned:
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("malformed event never reached the poison topic")
	}

	if fx.handler.Stats().ParseErrors == 0 {
		t.Error("parse error counter not incremented")
	}
}

func TestBusDeliversDeferredNudges(t *testing.T) {
	t.Parallel()

	fx := newBusFixture(t)

	// Force the inline nudge to lose every optimistic write; the handler
	// defers it and the deferred consumer reapplies once contention clears.
	fx.store.SetConflicts(3)

	event := &Event{
		SuggestionID: testSuggestionID,
		Action:       ledger.ActionAccept,
		Actor:        "ops",
		Timestamp:    time.Now().UTC(),
	}
	if err := fx.bus.PublishEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	waitFor(t, func() bool { return fx.handler.Stats().EventsDeferred == 1 })
	waitFor(t, func() bool { return fx.store.PutCalls() > 3 })
}
