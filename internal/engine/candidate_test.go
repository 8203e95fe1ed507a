// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/ledger"
	"github.com/tomtom215/fleetwright/internal/models"
)

// stubSource returns the same subjects for a single suggestion type.
type stubSource struct {
	forType  models.SuggestionType
	subjects []Subject
	err      error
}

func (s *stubSource) Subjects(_ context.Context, t models.SuggestionType) ([]Subject, error) {
	if s.err != nil {
		return nil, s.err
	}
	if t != s.forType {
		return nil, nil
	}
	return s.subjects, nil
}

// stubOpen maps open keys to their OpenInfo.
type stubOpen struct {
	infos map[string]*ledger.OpenInfo
}

func (s *stubOpen) OpenInfo(_ context.Context, scope models.Scope, subject models.SubjectRef, t models.SuggestionType) (*ledger.OpenInfo, error) {
	return s.infos[ledger.OpenKey(scope, subject, t)], nil
}

func testSubject(equipmentID string) Subject {
	return Subject{
		Scope: models.Scope{TenantID: "acme"},
		Ref:   models.SubjectRef{EquipmentID: equipmentID},
	}
}

func newTestGenerator(source SubjectSource, open openChecker) *Generator {
	return NewGenerator(source, open, 6*time.Hour, 24*time.Hour, zerolog.Nop())
}

func TestGenerateAdmitsWithoutOpenSuggestion(t *testing.T) {
	t.Parallel()

	source := &stubSource{
		forType:  models.TypeReposition,
		subjects: []Subject{testSubject("exc-1"), testSubject("exc-2")},
	}
	gen := newTestGenerator(source, &stubOpen{})

	now := time.Now().UTC()
	candidates, err := gen.Generate(context.Background(), now, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(candidates))
	}
	for _, c := range candidates {
		if c.Type != models.TypeReposition {
			t.Errorf("candidate type = %s, want reposition", c.Type)
		}
		if c.PriorSuggestionID != "" {
			t.Error("fresh candidate must not carry a prior suggestion id")
		}
		if !c.Window.Start.Equal(now) || !c.Window.End.Equal(now.Add(24*time.Hour)) {
			t.Errorf("window = %+v", c.Window)
		}
	}
}

func TestGenerateSkipsRecentOpenSuggestion(t *testing.T) {
	t.Parallel()

	subject := testSubject("exc-1")
	now := time.Now().UTC()
	key := ledger.OpenKey(subject.Scope, subject.Ref, models.TypeReposition)

	source := &stubSource{forType: models.TypeReposition, subjects: []Subject{subject}}
	open := &stubOpen{infos: map[string]*ledger.OpenInfo{
		key: {SuggestionID: "sugg-1", CreatedAt: now.Add(-time.Hour)},
	}}
	gen := newTestGenerator(source, open)

	candidates, err := gen.Generate(context.Background(), now, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("candidates = %d, want 0 while an open suggestion is fresh", len(candidates))
	}
}

func TestGenerateReevaluatesAfterInterval(t *testing.T) {
	t.Parallel()

	subject := testSubject("exc-1")
	now := time.Now().UTC()
	key := ledger.OpenKey(subject.Scope, subject.Ref, models.TypeReposition)

	source := &stubSource{forType: models.TypeReposition, subjects: []Subject{subject}}
	open := &stubOpen{infos: map[string]*ledger.OpenInfo{
		key: {SuggestionID: "sugg-1", CreatedAt: now.Add(-7 * time.Hour)},
	}}
	gen := newTestGenerator(source, open)

	candidates, err := gen.Generate(context.Background(), now, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 after reeval interval", len(candidates))
	}
	if candidates[0].PriorSuggestionID != "sugg-1" {
		t.Errorf("prior id = %q, want sugg-1", candidates[0].PriorSuggestionID)
	}
}

func TestGenerateMaterialChangeOverridesInterval(t *testing.T) {
	t.Parallel()

	subject := testSubject("exc-1")
	now := time.Now().UTC()
	key := ledger.OpenKey(subject.Scope, subject.Ref, models.TypeReposition)

	source := &stubSource{forType: models.TypeReposition, subjects: []Subject{subject}}
	open := &stubOpen{infos: map[string]*ledger.OpenInfo{
		key: {SuggestionID: "sugg-1", CreatedAt: now.Add(-time.Minute)},
	}}
	gen := newTestGenerator(source, open)

	changed := map[string]bool{subject.Ref.Key(): true}
	candidates, err := gen.Generate(context.Background(), now, changed)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(candidates) != 1 || candidates[0].PriorSuggestionID != "sugg-1" {
		t.Fatalf("material change must admit with prior id, got %+v", candidates)
	}
}

func TestGenerateDeduplicatesWithinCycle(t *testing.T) {
	t.Parallel()

	subject := testSubject("exc-1")
	source := &stubSource{
		forType:  models.TypeMaintenance,
		subjects: []Subject{subject, subject},
	}
	gen := newTestGenerator(source, &stubOpen{})

	candidates, err := gen.Generate(context.Background(), time.Now().UTC(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("candidates = %d, want 1 per (subject, type) pair", len(candidates))
	}
}

func TestGenerateSourceErrorAborts(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("inventory offline")
	gen := newTestGenerator(&stubSource{err: wantErr}, &stubOpen{})

	_, err := gen.Generate(context.Background(), time.Now().UTC(), nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("Generate err = %v, want wrapped %v", err, wantErr)
	}
}
