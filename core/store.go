package core

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates a missing deck or slide.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a compare-and-set precondition failed, e.g. a
	// concurrent run already performed the transition.
	ErrConflict = errors.New("conflict")
	// ErrInvalidRequest indicates a malformed client request, rejected before
	// any record is created.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDeckTerminal indicates an operation on a deck that already reached a
	// terminal state.
	ErrDeckTerminal = errors.New("deck is in a terminal state")
)

// EventLog is the append-only, versioned record of deck progress. Append
// atomically assigns the next version for the deck; ReadFrom replays
// persisted events with version > from in ascending order. Restart a replay
// by calling ReadFrom again with the last version seen.
type EventLog interface {
	Append(ctx context.Context, deckID string, typ EventType, payload any) (Event, error)
	ReadFrom(ctx context.Context, deckID string, from int64) ([]Event, error)
}

// Store persists decks, slides and the canonical event log. Every mutation
// that the pipeline observes externally appends its event in the same atomic
// unit as the record write, so the projection and the log cannot diverge.
//
// Implementations must make Transition, ApplyPlan, AddSlideContent and
// ReplaceSlideContent safe under concurrent duplicate triggers: losers get
// ErrConflict (Transition, ApplyPlan, ReplaceSlideContent) or a silent skip
// (AddSlideContent).
type Store interface {
	EventLog

	CreateDeck(ctx context.Context, d *Deck) error
	Deck(ctx context.Context, id string) (*Deck, error)
	Slides(ctx context.Context, deckID string) ([]Slide, error)
	Slide(ctx context.Context, deckID string, order int) (*Slide, error)
	ListDecks(ctx context.Context) ([]Deck, error)
	DeleteDeck(ctx context.Context, id string) error

	// Transition performs a compare-and-set status change from any of the
	// given states and appends the event atomically.
	Transition(ctx context.Context, deckID string, from []Status, to Status, typ EventType, payload any) (Event, error)

	// ApplyPlan persists the plan and its slide placeholders, moves the deck
	// from planning to generating and appends PlanUpdated, all atomically.
	// Returns ErrConflict if the deck is not in the planning state.
	ApplyPlan(ctx context.Context, deckID string, plan *DeckPlan) (Event, error)

	// AddSlideContent commits rendered content for a slide and appends
	// SlideAdded. The write is idempotent: when content is already present
	// and trigger does not exceed the slide's applied version the call
	// reports applied=false and nothing changes.
	AddSlideContent(ctx context.Context, deckID string, order int, content SlideContent, trigger int64) (ev Event, applied bool, err error)

	// ReplaceSlideContent unconditionally replaces a slide's content on an
	// explicit edit and appends SlideUpdated.
	ReplaceSlideContent(ctx context.Context, deckID string, order int, content SlideContent) (Event, error)
}
