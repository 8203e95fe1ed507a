// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/engine"
	"github.com/tomtom215/fleetwright/internal/factor"
	"github.com/tomtom215/fleetwright/internal/models"
)

// fakeClock is a manually advanced clock for staleness tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func fleetSubject(equipmentID string) engine.Subject {
	return engine.Subject{
		Scope: models.Scope{TenantID: "acme"},
		Ref:   models.SubjectRef{EquipmentID: equipmentID},
	}
}

func TestSubjectsFilterByType(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(time.Hour, nil, zerolog.Nop())
	reg.UpsertSubject(fleetSubject("exc-2"), []models.SuggestionType{models.TypeReposition})
	reg.UpsertSubject(fleetSubject("exc-1"), []models.SuggestionType{models.TypeReposition, models.TypeMaintenance})
	reg.UpsertSubject(fleetSubject("exc-3"), []models.SuggestionType{models.TypeSwapUnit})

	repo, err := reg.Subjects(context.Background(), models.TypeReposition)
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if len(repo) != 2 {
		t.Fatalf("reposition subjects = %d, want 2", len(repo))
	}
	// Stable key order.
	if repo[0].Ref.EquipmentID != "exc-1" || repo[1].Ref.EquipmentID != "exc-2" {
		t.Errorf("subjects out of order: %v, %v", repo[0].Ref, repo[1].Ref)
	}

	maint, err := reg.Subjects(context.Background(), models.TypeMaintenance)
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if len(maint) != 1 || maint[0].Ref.EquipmentID != "exc-1" {
		t.Errorf("maintenance subjects = %v", maint)
	}
}

func TestUpsertSubjectReplacesTypes(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(time.Hour, nil, zerolog.Nop())
	subject := fleetSubject("exc-1")
	reg.UpsertSubject(subject, []models.SuggestionType{models.TypeReposition})
	reg.UpsertSubject(subject, []models.SuggestionType{models.TypeMaintenance})

	repo, _ := reg.Subjects(context.Background(), models.TypeReposition)
	if len(repo) != 0 {
		t.Error("replaced subject must lose its old type eligibility")
	}
	maint, _ := reg.Subjects(context.Background(), models.TypeMaintenance)
	if len(maint) != 1 {
		t.Error("replaced subject must gain its new type eligibility")
	}
	if reg.Stats().Subjects != 1 {
		t.Errorf("subjects = %d, want 1 after upsert", reg.Stats().Subjects)
	}
}

func TestProviderServesFreshObservation(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now().UTC()}
	reg := NewRegistry(time.Hour, clock.Now, zerolog.Nop())

	reg.Observe(factor.KindDemand, "exc-1//", factor.Sample{Value: 2.5, Confidence: 0.9})

	provider := reg.Provider(factor.KindDemand)
	sample, err := provider.Fetch(context.Background(), "exc-1//", factor.Window{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if sample.Value != 2.5 || sample.Confidence != 0.9 {
		t.Errorf("sample = %+v", sample)
	}
}

func TestProviderStaleObservationUnavailable(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now().UTC()}
	reg := NewRegistry(time.Hour, clock.Now, zerolog.Nop())

	reg.Observe(factor.KindDemand, "exc-1//", factor.Sample{Value: 2.5, Confidence: 0.9})
	clock.Advance(61 * time.Minute)

	provider := reg.Provider(factor.KindDemand)
	_, err := provider.Fetch(context.Background(), "exc-1//", factor.Window{})
	if !errors.Is(err, factor.ErrUnavailable) {
		t.Fatalf("stale Fetch err = %v, want ErrUnavailable", err)
	}

	// A fresh push revives the subject.
	reg.Observe(factor.KindDemand, "exc-1//", factor.Sample{Value: 3, Confidence: 1})
	if _, err := provider.Fetch(context.Background(), "exc-1//", factor.Window{}); err != nil {
		t.Errorf("Fetch after refresh: %v", err)
	}
}

func TestProviderMissingObservationUnavailable(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(time.Hour, nil, zerolog.Nop())
	provider := reg.Provider(factor.KindUtilization)

	_, err := provider.Fetch(context.Background(), "exc-1//", factor.Window{})
	if !errors.Is(err, factor.ErrUnavailable) {
		t.Fatalf("Fetch err = %v, want ErrUnavailable", err)
	}
}

func TestRemoveSubjectClearsObservations(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(time.Hour, nil, zerolog.Nop())
	subject := fleetSubject("exc-1")
	reg.UpsertSubject(subject, []models.SuggestionType{models.TypeReposition})
	reg.Observe(factor.KindDemand, subject.Ref.Key(), factor.Sample{Value: 1})
	reg.Observe(factor.KindHealth, subject.Ref.Key(), factor.Sample{Category: "watch"})

	reg.RemoveSubject(subject.Ref.Key())

	stats := reg.Stats()
	if stats.Subjects != 0 || stats.Observations != 0 {
		t.Errorf("stats after remove = %+v, want empty", stats)
	}

	subjects, _ := reg.Subjects(context.Background(), models.TypeReposition)
	if len(subjects) != 0 {
		t.Error("removed subject must not be enumerated")
	}
}

func TestRegisterAllCoversEveryKind(t *testing.T) {
	t.Parallel()

	normalizer, err := factor.NewNormalizer(nil)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	set := factor.NewProviderSet(normalizer, factor.DefaultGuardConfig(), zerolog.Nop())

	reg := NewRegistry(time.Hour, nil, zerolog.Nop())
	reg.RegisterAll(set)

	if got, want := len(set.Kinds()), len(factor.Kinds()); got != want {
		t.Errorf("registered kinds = %d, want %d", got, want)
	}
}
