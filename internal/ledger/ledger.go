// Fleetwright - Rental Fleet Operations Suggestion Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwright

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetwright/internal/metrics"
	"github.com/tomtom215/fleetwright/internal/models"
)

// Ledger errors.
var (
	// ErrNotFound indicates no suggestion exists for the id.
	ErrNotFound = errors.New("suggestion not found")

	// ErrDuplicateOpen indicates an OPEN suggestion already exists for the
	// idempotency key. Generation treats this as a silent suppression, not
	// an error condition.
	ErrDuplicateOpen = errors.New("open suggestion already exists for key")

	// ErrStaleSuggestion indicates a decision referenced a suggestion that
	// is already in a terminal state. No weight mutation is performed.
	ErrStaleSuggestion = errors.New("suggestion already decided or expired")
)

// Key prefixes in the badger keyspace. Events are append-only; the snapshot
// is a read model derived from them.
const (
	prefixSuggestion = "sugg:"
	prefixEvent      = "suggev:"
	prefixOpen       = "open:"
)

const defaultPageSize = 50

// Ledger is the append-only suggestion record. All writes for one
// idempotency key serialize through badger transactions: two concurrent
// appends for the same key cannot both create an OPEN suggestion.
type Ledger struct {
	db     *badger.DB
	logger zerolog.Logger
}

// New wraps an open badger database as a suggestion ledger.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(db *badger.DB, logger zerolog.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Append records a freshly scored suggestion in state OPEN. It enforces the
// idempotency invariant: if an OPEN suggestion already exists for the same
// (scope, subject, type) key, ErrDuplicateOpen is returned and nothing is
// written.
func (l *Ledger) Append(ctx context.Context, s *Suggestion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ID == "" {
		return fmt.Errorf("suggestion id is required")
	}

	s.State = StateOpen
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	openKey := []byte(prefixOpen + s.OpenKey())

	err := l.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(openKey); err == nil {
			return ErrDuplicateOpen
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := putJSON(txn, suggestionKey(s.ID), s); err != nil {
			return err
		}
		if err := txn.Set(openKey, []byte(s.ID)); err != nil {
			return err
		}
		return putJSON(txn, eventKey(s.ID, 1), &Event{
			SuggestionID: s.ID,
			Seq:          1,
			Type:         EventCreated,
			State:        StateOpen,
			At:           s.CreatedAt,
		})
	})

	if errors.Is(err, badger.ErrConflict) {
		// A concurrent append won the key; same outcome as the index hit.
		err = ErrDuplicateOpen
	}
	if errors.Is(err, ErrDuplicateOpen) {
		metrics.DuplicateSuppressed.Inc()
		return err
	}
	if err != nil {
		return fmt.Errorf("append suggestion: %w", err)
	}

	metrics.SuggestionsCreated.WithLabelValues(string(s.Type)).Inc()
	l.logger.Info().
		Str("suggestion_id", s.ID).
		Str("type", string(s.Type)).
		Float64("score", s.Score).
		Float64("confidence", s.Confidence).
		Msg("suggestion recorded")
	return nil
}

// Decide applies an ACCEPT/DECLINE transition. It returns the suggestion as
// it stood before the transition (the feedback adapter needs the recorded
// contributions) or ErrStaleSuggestion when the state is already terminal.
func (l *Ledger) Decide(ctx context.Context, id string, action Action, actor, reason string) (*Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !action.Valid() {
		return nil, fmt.Errorf("invalid action %q", action)
	}

	var decided Suggestion
	now := time.Now().UTC()

	err := l.db.Update(func(txn *badger.Txn) error {
		s, err := getSuggestion(txn, id)
		if err != nil {
			return err
		}

		target := action.State()
		if !s.State.CanTransition(target) {
			return ErrStaleSuggestion
		}

		seq, err := nextEventSeq(txn, id)
		if err != nil {
			return err
		}

		s.State = target
		s.DecidedAt = &now
		s.DecidedBy = actor
		s.DecisionReason = reason
		decided = *s

		if err := putJSON(txn, suggestionKey(id), s); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixOpen + s.OpenKey())); err != nil {
			return err
		}
		return putJSON(txn, eventKey(id, seq), &Event{
			SuggestionID: id,
			Seq:          seq,
			Type:         EventDecided,
			State:        target,
			Actor:        actor,
			Reason:       reason,
			At:           now,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.SuggestionsDecided.WithLabelValues(string(decided.Type), string(decided.State)).Inc()
	l.logger.Info().
		Str("suggestion_id", id).
		Str("state", string(decided.State)).
		Str("actor", actor).
		Msg("suggestion decided")
	return &decided, nil
}

// Expire transitions one OPEN suggestion into EXPIRED with a reason. Used
// when a re-evaluation supersedes an open suggestion. Returns
// ErrStaleSuggestion when the state is already terminal.
func (l *Ledger) Expire(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var expiredType models.SuggestionType
	err := l.db.Update(func(txn *badger.Txn) error {
		s, err := getSuggestion(txn, id)
		if err != nil {
			return err
		}
		if !s.State.CanTransition(StateExpired) {
			return ErrStaleSuggestion
		}

		seq, err := nextEventSeq(txn, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		s.State = StateExpired
		s.DecidedAt = &now
		s.DecisionReason = reason
		expiredType = s.Type

		if err := putJSON(txn, suggestionKey(id), s); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixOpen + s.OpenKey())); err != nil {
			return err
		}
		return putJSON(txn, eventKey(id, seq), &Event{
			SuggestionID: id,
			Seq:          seq,
			Type:         EventExpired,
			State:        StateExpired,
			Reason:       reason,
			At:           now,
		})
	})
	if err != nil {
		return err
	}

	metrics.SuggestionsExpired.WithLabelValues(string(expiredType)).Inc()
	return nil
}

// ExpireBefore transitions every OPEN suggestion whose evaluation window
// ended before cutoff into EXPIRED. Returns the number expired. Run once per
// evaluation cycle.
func (l *Ledger) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	open, err := l.listOpenIDs(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range open {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		err := l.db.Update(func(txn *badger.Txn) error {
			s, err := getSuggestion(txn, id)
			if err != nil {
				return err
			}
			if s.State != StateOpen || !s.Window.End.Before(cutoff) {
				return nil
			}

			seq, err := nextEventSeq(txn, id)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			s.State = StateExpired
			s.DecidedAt = &now

			if err := putJSON(txn, suggestionKey(id), s); err != nil {
				return err
			}
			if err := txn.Delete([]byte(prefixOpen + s.OpenKey())); err != nil {
				return err
			}
			if err := putJSON(txn, eventKey(id, seq), &Event{
				SuggestionID: id,
				Seq:          seq,
				Type:         EventExpired,
				State:        StateExpired,
				At:           now,
			}); err != nil {
				return err
			}

			metrics.SuggestionsExpired.WithLabelValues(string(s.Type)).Inc()
			expired++
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			// Concurrent decision beat the sweep; nothing to expire.
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire %s: %w", id, err)
		}
	}

	if expired > 0 {
		l.logger.Info().Int("count", expired).Msg("expired stale suggestions")
	}
	return expired, nil
}

// Get returns a suggestion by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var s *Suggestion
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		s, err = getSuggestion(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenInfo returns the currently open suggestion for an idempotency key, or
// nil when none is open.
func (l *Ledger) OpenInfo(ctx context.Context, scope models.Scope, subject models.SubjectRef, t models.SuggestionType) (*OpenInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var info *OpenInfo
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixOpen + OpenKey(scope, subject, t)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}

		s, err := getSuggestion(txn, id)
		if err != nil {
			return err
		}
		info = &OpenInfo{SuggestionID: s.ID, CreatedAt: s.CreatedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// List returns suggestions matching the filter, newest first, with the total
// match count for pagination.
func (l *Ledger) List(ctx context.Context, f Filter) ([]*Suggestion, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var matches []*Suggestion
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSuggestion)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var s Suggestion
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			}); err != nil {
				return err
			}
			if matchesFilter(&s, f) {
				matches = append(matches, &s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	start := (page - 1) * size
	if start >= total {
		return []*Suggestion{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

// Events returns the append-only event history for a suggestion in order.
func (l *Ledger) Events(ctx context.Context, id string) ([]*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []*Event
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEvent + id + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var ev Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return err
			}
			events = append(events, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// listOpenIDs collects the ids of all OPEN suggestions from the open index.
func (l *Ledger) listOpenIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixOpen)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// matchesFilter applies the List filter to one suggestion.
func matchesFilter(s *Suggestion, f Filter) bool {
	if f.State != "" && s.State != f.State {
		return false
	}
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if f.TenantID != "" && s.Scope.TenantID != f.TenantID {
		return false
	}
	if f.Subject != "" && !strings.EqualFold(s.Subject.Key(), f.Subject) {
		return false
	}
	return true
}

// getSuggestion loads a suggestion snapshot inside a transaction.
func getSuggestion(txn *badger.Txn, id string) (*Suggestion, error) {
	item, err := txn.Get(suggestionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var s Suggestion
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &s)
	}); err != nil {
		return nil, err
	}
	return &s, nil
}

// nextEventSeq finds the next event sequence number for a suggestion.
func nextEventSeq(txn *badger.Txn, id string) (uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixEvent + id + ":")
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var max uint64
	for it.Rewind(); it.Valid(); it.Next() {
		key := string(it.Item().Key())
		var seq uint64
		if _, err := fmt.Sscanf(key[len(prefixEvent+id+":"):], "%d", &seq); err == nil && seq > max {
			max = seq
		}
	}
	return max + 1, nil
}

func suggestionKey(id string) []byte {
	return []byte(prefixSuggestion + id)
}

func eventKey(id string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", prefixEvent, id, seq))
}

func putJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return txn.Set(key, data)
}
