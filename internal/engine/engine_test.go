// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/metrics"
	"github.com/tomtom215/fleetwright/internal/models"
	"github.com/tomtom215/fleetwright/internal/weights"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(*Config) {}},
		{name: "zero cycle interval", mutate: func(c *Config) { c.CycleInterval = 0 }, wantErr: true},
		{name: "negative reeval interval", mutate: func(c *Config) { c.ReevalInterval = -time.Hour }, wantErr: true},
		{name: "zero window", mutate: func(c *Config) { c.EvaluationWindow = 0 }, wantErr: true},
		{name: "zero parallelism", mutate: func(c *Config) { c.MaxParallel = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// engineFixture wires a real ledger and weight store on in-memory badger
// with static providers, driven by a stub subject source.
type engineFixture struct {
	engine *Engine
	ledger *ledger.Ledger
	cancel context.CancelFunc
	done   chan struct{}
}

func newEngineFixture(t *testing.T, subjects []Subject) *engineFixture {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close badger: %v", err)
		}
	})

	led := ledger.New(db, zerolog.Nop())
	store := weights.NewBadgerStore(db, zerolog.Nop())

	normalizer, err := factor.NewNormalizer(nil)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	providers := factor.NewProviderSet(normalizer, factor.DefaultGuardConfig(), zerolog.Nop())
	// Strong demand with full confidence clears the seed threshold on its own:
	// 40 * tanh(3) * 1 = 39.8, above the raw threshold of 30.
	providers.Register(factor.KindDemand, factor.ProviderFunc(
		func(context.Context, string, factor.Window) (factor.Sample, error) {
			return factor.Sample{Value: 3, Confidence: 1}, nil
		}))
	providers.Register(factor.KindUtilization, factor.ProviderFunc(
		func(context.Context, string, factor.Window) (factor.Sample, error) {
			return factor.Sample{Value: 0.9, Confidence: 1}, nil
		}))

	source := &stubSource{forType: models.TypeReposition, subjects: subjects}
	gen := NewGenerator(source, led, 6*time.Hour, 24*time.Hour, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.CycleInterval = time.Hour // scheduler tick must not fire during the test
	eng, err := New(cfg, gen, providers, store, led, weights.DefaultSeed(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Serve(ctx)
	}()

	fx := &engineFixture{engine: eng, ledger: led, cancel: cancel, done: done}
	t.Cleanup(fx.stop)
	return fx
}

func (fx *engineFixture) stop() {
	fx.cancel()
	<-fx.done
}

func TestEngineCycleCreatesSuggestions(t *testing.T) {
	t.Parallel()

	subjects := []Subject{testSubject("exc-1"), testSubject("exc-2")}
	fx := newEngineFixture(t, subjects)
	ctx := context.Background()

	if err := fx.engine.TriggerCycle(ctx, nil); err != nil {
		t.Fatalf("TriggerCycle: %v", err)
	}

	open, total, err := fx.ledger.List(ctx, ledger.Filter{State: ledger.StateOpen})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 {
		t.Fatalf("open suggestions = %d, want 2", total)
	}
	for _, s := range open {
		if s.Type != models.TypeReposition {
			t.Errorf("suggestion type = %s, want reposition", s.Type)
		}
		if s.Score < 65 {
			t.Errorf("score = %g, expected actionable (>= 65)", s.Score)
		}
		if s.Confidence <= 0 {
			t.Errorf("confidence = %g, want positive", s.Confidence)
		}
		if s.Explanation == "" {
			t.Error("suggestion missing explanation")
		}
		if len(s.Contributions) == 0 {
			t.Error("suggestion missing contributions")
		}
	}
}

func TestEngineSecondCycleSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, []Subject{testSubject("exc-1")})
	ctx := context.Background()

	if err := fx.engine.TriggerCycle(ctx, nil); err != nil {
		t.Fatalf("first TriggerCycle: %v", err)
	}
	if err := fx.engine.TriggerCycle(ctx, nil); err != nil {
		t.Fatalf("second TriggerCycle: %v", err)
	}

	_, total, err := fx.ledger.List(ctx, ledger.Filter{State: ledger.StateOpen})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 {
		t.Errorf("open suggestions = %d, want 1 (open pair skipped)", total)
	}

	status := fx.engine.GetStatus()
	if status.LastCycle == nil {
		t.Fatal("status missing last cycle stats")
	}
	if status.LastCycle.Created != 0 {
		t.Errorf("second cycle created = %d, want 0", status.LastCycle.Created)
	}
}

func TestEngineMaterialChangeSupersedes(t *testing.T) {
	t.Parallel()

	subject := testSubject("exc-1")
	fx := newEngineFixture(t, []Subject{subject})
	ctx := context.Background()

	if err := fx.engine.TriggerCycle(ctx, nil); err != nil {
		t.Fatalf("first TriggerCycle: %v", err)
	}
	first, _, err := fx.ledger.List(ctx, ledger.Filter{State: ledger.StateOpen})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("open after first cycle = %d, want 1", len(first))
	}

	changed := map[string]bool{subject.Ref.Key(): true}
	if err := fx.engine.TriggerCycle(ctx, changed); err != nil {
		t.Fatalf("changed TriggerCycle: %v", err)
	}

	prior, err := fx.ledger.Get(ctx, first[0].ID)
	if err != nil {
		t.Fatalf("Get prior: %v", err)
	}
	if prior.State != ledger.StateExpired {
		t.Errorf("prior state = %s, want EXPIRED (superseded)", prior.State)
	}

	open, total, err := fx.ledger.List(ctx, ledger.Filter{State: ledger.StateOpen})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 {
		t.Fatalf("open after supersede = %d, want 1", total)
	}
	if open[0].ID == first[0].ID {
		t.Error("replacement must be a new suggestion")
	}
}

// No t.Parallel(): the counters are process-global, so this test must not
// overlap the parallel tests while it measures deltas. The ledger owns the
// created/suppressed counters; recording a suggestion must move each by
// exactly one.
func TestEngineRecordCountsOnce(t *testing.T) {
	fx := newEngineFixture(t, []Subject{testSubject("exc-1")})
	ctx := context.Background()

	createdBefore := testutil.ToFloat64(metrics.SuggestionsCreated.WithLabelValues(string(models.TypeReposition)))
	suppressedBefore := testutil.ToFloat64(metrics.DuplicateSuppressed)

	if err := fx.engine.TriggerCycle(ctx, nil); err != nil {
		t.Fatalf("first TriggerCycle: %v", err)
	}
	if err := fx.engine.TriggerCycle(ctx, nil); err != nil {
		t.Fatalf("second TriggerCycle: %v", err)
	}

	created := testutil.ToFloat64(metrics.SuggestionsCreated.WithLabelValues(string(models.TypeReposition)))
	if got := created - createdBefore; got != 1 {
		t.Errorf("suggestions_created delta = %g, want exactly 1", got)
	}
	// The generator skips the open pair before any append, so the
	// suppression counter stays put.
	suppressed := testutil.ToFloat64(metrics.DuplicateSuppressed)
	if got := suppressed - suppressedBefore; got != 0 {
		t.Errorf("duplicate_suppressed delta = %g, want 0", got)
	}
}

func TestEngineStatusReportsRunning(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	if err := fx.engine.TriggerCycle(ctx, nil); err != nil {
		t.Fatalf("TriggerCycle: %v", err)
	}

	status := fx.engine.GetStatus()
	if !status.Running {
		t.Error("engine should report running while Serve is active")
	}
	if status.NextCycle.IsZero() {
		t.Error("next cycle time should be set")
	}

	fx.stop()
	status = fx.engine.GetStatus()
	if status.Running {
		t.Error("engine should report stopped after Serve returns")
	}
}
