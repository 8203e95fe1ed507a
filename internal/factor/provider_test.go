// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package factor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestProviderSet(t *testing.T) *ProviderSet {
	t.Helper()
	return NewProviderSet(newTestNormalizer(t), DefaultGuardConfig(), zerolog.Nop())
}

func staticProvider(sample Sample) Provider {
	return ProviderFunc(func(ctx context.Context, subjectID string, window Window) (Sample, error) {
		return sample, nil
	})
}

func failingProvider(err error) Provider {
	return ProviderFunc(func(ctx context.Context, subjectID string, window Window) (Sample, error) {
		return Sample{}, err
	})
}

func TestResolveNormalizesRegisteredKinds(t *testing.T) {
	t.Parallel()

	set := newTestProviderSet(t)
	set.Register(KindUtilization, staticProvider(Sample{Value: 1}))
	set.Register(KindHealth, staticProvider(Sample{Category: "degraded", Confidence: 0.5}))

	vector, err := set.Resolve(context.Background(), "exc-100//", Window{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(vector) != 2 {
		t.Fatalf("vector has %d entries, want 2", len(vector))
	}

	util := vector[KindUtilization]
	if util.Normalized != 1 || util.Confidence != 1 || util.Defaulted {
		t.Errorf("utilization = %+v, want normalized 1, confidence 1", util)
	}

	health := vector[KindHealth]
	if math.Abs(health.Normalized-1.0/3.0) > normEpsilon || health.Confidence != 0.5 {
		t.Errorf("health = %+v, want normalized 1/3, confidence 0.5", health)
	}
}

func TestResolveUnavailableDegradesToNeutral(t *testing.T) {
	t.Parallel()

	set := newTestProviderSet(t)
	set.Register(KindDemand, failingProvider(ErrUnavailable))

	vector, err := set.Resolve(context.Background(), "exc-100//", Window{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	v := vector[KindDemand]
	if !v.Defaulted || v.Normalized != 0 || v.Confidence != 0 {
		t.Errorf("unavailable provider should yield neutral, got %+v", v)
	}
}

func TestResolveProviderErrorDegradesToNeutral(t *testing.T) {
	t.Parallel()

	set := newTestProviderSet(t)
	set.Register(KindInventory, failingProvider(errors.New("forecaster down")))

	vector, err := set.Resolve(context.Background(), "exc-100//", Window{})
	if err != nil {
		t.Fatalf("Resolve should not fail on a provider error: %v", err)
	}
	if !vector[KindInventory].Defaulted {
		t.Errorf("erroring provider should yield neutral, got %+v", vector[KindInventory])
	}
}

func TestResolveTimeoutDegradesToNeutral(t *testing.T) {
	t.Parallel()

	cfg := DefaultGuardConfig()
	cfg.Timeout = 10 * time.Millisecond
	set := NewProviderSet(newTestNormalizer(t), cfg, zerolog.Nop())
	set.Register(KindDemand, ProviderFunc(func(ctx context.Context, subjectID string, window Window) (Sample, error) {
		<-ctx.Done()
		return Sample{}, ctx.Err()
	}))

	vector, err := set.Resolve(context.Background(), "exc-100//", Window{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !vector[KindDemand].Defaulted {
		t.Errorf("slow provider should yield neutral, got %+v", vector[KindDemand])
	}
}

func TestResolveMalformedSampleFailsCandidate(t *testing.T) {
	t.Parallel()

	set := newTestProviderSet(t)
	set.Register(KindUtilization, staticProvider(Sample{Value: math.NaN()}))

	if _, err := set.Resolve(context.Background(), "exc-100//", Window{}); err == nil {
		t.Error("malformed sample should surface as an error")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cfg := DefaultGuardConfig()
	cfg.BreakerFailureThreshold = 2
	set := NewProviderSet(newTestNormalizer(t), cfg, zerolog.Nop())

	calls := 0
	set.Register(KindDemand, ProviderFunc(func(ctx context.Context, subjectID string, window Window) (Sample, error) {
		calls++
		return Sample{}, errors.New("remote down")
	}))

	for i := 0; i < 5; i++ {
		if _, err := set.Resolve(context.Background(), "exc-100//", Window{}); err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
	}

	// After the threshold the breaker short-circuits without hitting the
	// provider again.
	if calls > 2 {
		t.Errorf("provider called %d times, breaker should have opened after 2", calls)
	}
}

func TestRateLimitDegradesToNeutral(t *testing.T) {
	t.Parallel()

	cfg := DefaultGuardConfig()
	cfg.RatePerSecond = 1
	cfg.RateBurst = 1
	set := NewProviderSet(newTestNormalizer(t), cfg, zerolog.Nop())
	set.Register(KindUtilization, staticProvider(Sample{Value: 1}))

	first, err := set.Resolve(context.Background(), "exc-100//", Window{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first[KindUtilization].Defaulted {
		t.Fatal("first call should pass the limiter")
	}

	second, err := set.Resolve(context.Background(), "exc-100//", Window{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !second[KindUtilization].Defaulted {
		t.Error("second immediate call should be rate limited to neutral")
	}
}

func TestKindsReturnsEnumerationOrder(t *testing.T) {
	t.Parallel()

	set := newTestProviderSet(t)
	set.Register(KindCarbon, staticProvider(Sample{Value: 1}))
	set.Register(KindDemand, staticProvider(Sample{Value: 1}))
	set.Register(KindHealth, staticProvider(Sample{Category: "watch"}))

	got := set.Kinds()
	want := []Kind{KindDemand, KindHealth, KindCarbon}
	if len(got) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Kinds()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
