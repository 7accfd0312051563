package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/deckmesh/core"
)

// record keeps one deck's projection and event sequence together so a single
// lock covers both.
type record struct {
	deck   *core.Deck
	slides map[int]*core.Slide
	events []core.Event
}

// InMemoryStore is a volatile core.Store implementation storing decks in a
// process-local map. It is safe for concurrent access. Each returned deck or
// slide is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu    sync.RWMutex
	decks map[string]*record
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{decks: make(map[string]*record)}
}

// CreateDeck stores a clone of the deck. Fails if the id already exists.
func (s *InMemoryStore) CreateDeck(_ context.Context, d *core.Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decks[d.ID]; ok {
		return fmt.Errorf("deck %s: %w", d.ID, core.ErrConflict)
	}
	s.decks[d.ID] = &record{deck: d.Clone(), slides: make(map[int]*core.Slide)}
	return nil
}

// Deck returns a clone of the deck or core.ErrNotFound.
func (s *InMemoryStore) Deck(_ context.Context, id string) (*core.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.decks[id]
	if !ok {
		return nil, fmt.Errorf("deck %s: %w", id, core.ErrNotFound)
	}
	return rec.deck.Clone(), nil
}

// Slides returns the deck's slides in deck order.
func (s *InMemoryStore) Slides(_ context.Context, deckID string) ([]core.Slide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.decks[deckID]
	if !ok {
		return nil, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	out := make([]core.Slide, 0, len(rec.slides))
	for _, sl := range rec.slides {
		out = append(out, *sl.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// Slide returns one slide by (deck id, order).
func (s *InMemoryStore) Slide(_ context.Context, deckID string, order int) (*core.Slide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.decks[deckID]
	if !ok {
		return nil, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	sl, ok := rec.slides[order]
	if !ok {
		return nil, fmt.Errorf("slide %s/%d: %w", deckID, order, core.ErrNotFound)
	}
	return sl.Clone(), nil
}

// ListDecks returns clones of all decks, newest first.
func (s *InMemoryStore) ListDecks(_ context.Context) ([]core.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Deck, 0, len(s.decks))
	for _, rec := range s.decks {
		out = append(out, *rec.deck.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteDeck removes the deck, its slides and its event sequence.
func (s *InMemoryStore) DeleteDeck(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decks[id]; !ok {
		return fmt.Errorf("deck %s: %w", id, core.ErrNotFound)
	}
	delete(s.decks, id)
	return nil
}

// Append implements core.EventLog.
func (s *InMemoryStore) Append(_ context.Context, deckID string, typ core.EventType, payload any) (core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.decks[deckID]
	if !ok {
		return core.Event{}, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	return s.appendLocked(rec, typ, payload)
}

// ReadFrom implements core.EventLog.
func (s *InMemoryStore) ReadFrom(_ context.Context, deckID string, from int64) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.decks[deckID]
	if !ok {
		return nil, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	var out []core.Event
	for _, ev := range rec.events {
		if ev.Version > from {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Transition implements the compare-and-set status change.
func (s *InMemoryStore) Transition(_ context.Context, deckID string, from []core.Status, to core.Status, typ core.EventType, payload any) (core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.decks[deckID]
	if !ok {
		return core.Event{}, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	if !statusIn(rec.deck.Status, from) {
		return core.Event{}, fmt.Errorf("deck %s is %s: %w", deckID, rec.deck.Status, core.ErrConflict)
	}
	rec.deck.Status = to
	ev, err := s.appendLocked(rec, typ, payload)
	if err != nil {
		return core.Event{}, err
	}
	return ev, nil
}

// ApplyPlan persists the plan, creates slide placeholders and moves the deck
// to generating in one atomic step.
func (s *InMemoryStore) ApplyPlan(_ context.Context, deckID string, plan *core.DeckPlan) (core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.decks[deckID]
	if !ok {
		return core.Event{}, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	if rec.deck.Status != core.StatusPlanning {
		return core.Event{}, fmt.Errorf("deck %s is %s: %w", deckID, rec.deck.Status, core.ErrConflict)
	}

	ev, err := s.appendLocked(rec, core.EventPlanUpdated, core.PlanUpdatedPayload{
		SlideCount: len(plan.Slides),
		Title:      plan.Title,
		Topic:      plan.Topic,
		Audience:   plan.Audience,
		Theme:      plan.Theme,
	})
	if err != nil {
		return core.Event{}, err
	}

	rec.deck.Plan = plan.Clone()
	rec.deck.Status = core.StatusGenerating
	if plan.Title != "" {
		rec.deck.Title = plan.Title
	}
	for _, spec := range plan.Slides {
		rec.slides[spec.Order] = &core.Slide{
			ID:        uuid.NewString(),
			DeckID:    deckID,
			Order:     spec.Order,
			Title:     spec.Title,
			Status:    core.SlidePending,
			CreatedAt: ev.Timestamp,
			UpdatedAt: ev.Timestamp,
		}
	}
	return ev, nil
}

// AddSlideContent commits rendered slide content idempotently.
func (s *InMemoryStore) AddSlideContent(_ context.Context, deckID string, order int, content core.SlideContent, trigger int64) (core.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.decks[deckID]
	if !ok {
		return core.Event{}, false, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	sl, ok := rec.slides[order]
	if !ok {
		return core.Event{}, false, fmt.Errorf("slide %s/%d: %w", deckID, order, core.ErrNotFound)
	}
	if sl.Rendered() && trigger <= sl.AppliedVersion {
		// Retried or redelivered task: the work already happened.
		return core.Event{}, false, nil
	}
	ev, err := s.writeSlideLocked(rec, sl, content, core.EventSlideAdded)
	if err != nil {
		return core.Event{}, false, err
	}
	return ev, true, nil
}

// ReplaceSlideContent overwrites slide content on an explicit edit.
func (s *InMemoryStore) ReplaceSlideContent(_ context.Context, deckID string, order int, content core.SlideContent) (core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.decks[deckID]
	if !ok {
		return core.Event{}, fmt.Errorf("deck %s: %w", deckID, core.ErrNotFound)
	}
	sl, ok := rec.slides[order]
	if !ok {
		return core.Event{}, fmt.Errorf("slide %s/%d: %w", deckID, order, core.ErrNotFound)
	}
	return s.writeSlideLocked(rec, sl, content, core.EventSlideUpdated)
}

// writeSlideLocked commits content and its event; caller holds the write lock.
func (s *InMemoryStore) writeSlideLocked(rec *record, sl *core.Slide, content core.SlideContent, typ core.EventType) (core.Event, error) {
	ev, err := s.appendLocked(rec, typ, core.SlidePayload{
		SlideID:     sl.ID,
		Order:       sl.Order,
		Title:       content.Title,
		HTMLContent: content.HTML,
	})
	if err != nil {
		return core.Event{}, err
	}
	html := content.HTML
	sl.HTMLContent = &html
	if content.Title != "" {
		sl.Title = content.Title
	}
	if content.Notes != "" {
		notes := content.Notes
		sl.Notes = &notes
	}
	sl.Layout = content.Layout
	sl.Status = core.SlideRendered
	sl.AppliedVersion = ev.Version
	sl.UpdatedAt = ev.Timestamp
	return ev, nil
}

// appendLocked assigns the next version and records the event; caller must
// already hold the write lock.
func (s *InMemoryStore) appendLocked(rec *record, typ core.EventType, payload any) (core.Event, error) {
	ev, err := core.NewEvent(rec.deck.ID, typ, payload)
	if err != nil {
		return core.Event{}, err
	}
	ev.Version = rec.deck.Version + 1
	rec.deck.Version = ev.Version
	rec.deck.UpdatedAt = ev.Timestamp
	rec.events = append(rec.events, ev)
	return ev, nil
}

func statusIn(s core.Status, set []core.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
