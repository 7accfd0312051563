package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates the observable state transitions of a deck.
type EventType string

const (
	// EventDeckStarted is emitted when the pipeline picks up a pending deck.
	EventDeckStarted EventType = "DeckStarted"
	// EventPlanUpdated is emitted once the plan and slide placeholders are persisted.
	EventPlanUpdated EventType = "PlanUpdated"
	// EventSlideAdded is emitted when a slide's content is committed for the first time.
	EventSlideAdded EventType = "SlideAdded"
	// EventSlideUpdated is emitted when an edit replaces a slide's content.
	EventSlideUpdated EventType = "SlideUpdated"
	// EventDeckCompleted is emitted exactly once when all slide tasks succeed.
	EventDeckCompleted EventType = "DeckCompleted"
	// EventDeckFailed is emitted when a stage exhausts its retries.
	EventDeckFailed EventType = "DeckFailed"
	// EventDeckCancelled is emitted when a cancellation request is observed.
	EventDeckCancelled EventType = "DeckCancelled"
	// EventHeartbeat is a live-only keepalive frame; it is never persisted
	// and always carries version 0.
	EventHeartbeat EventType = "Heartbeat"
)

// Event is an immutable, versioned progress record for one deck. Versions are
// assigned by the event log at append time, are gapless and start at 1;
// together (DeckID, Version) totally order everything that happened to a
// deck. After emission an event should be treated as read-only.
type Event struct {
	DeckID    string          `json:"deck_id"`
	Version   int64           `json:"version"`
	Type      EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent creates an unversioned event with the payload marshaled to JSON.
// The store assigns the version during append.
func NewEvent(deckID string, typ EventType, payload any) (Event, error) {
	ev := Event{
		DeckID:    deckID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		ev.Payload = data
	}
	return ev, nil
}

// NewHeartbeat creates a live-only keepalive event for a deck stream.
func NewHeartbeat(deckID string) Event {
	now := time.Now().UTC()
	data, _ := json.Marshal(HeartbeatPayload{TS: now.Unix()})
	return Event{DeckID: deckID, Type: EventHeartbeat, Timestamp: now, Payload: data}
}

// DecodePayload unmarshals the payload into out.
func (e Event) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s v%d has no payload", e.Type, e.Version)
	}
	return json.Unmarshal(e.Payload, out)
}

// DeckStartedPayload accompanies EventDeckStarted.
type DeckStartedPayload struct {
	Title string `json:"title"`
	Topic string `json:"topic"`
}

// PlanUpdatedPayload accompanies EventPlanUpdated.
type PlanUpdatedPayload struct {
	SlideCount int    `json:"slide_count"`
	Title      string `json:"title"`
	Topic      string `json:"topic"`
	Audience   string `json:"audience,omitempty"`
	Theme      string `json:"theme,omitempty"`
}

// SlidePayload accompanies EventSlideAdded and EventSlideUpdated. Order is
// the deck-order index clients use to place the slide regardless of the
// arrival order of events.
type SlidePayload struct {
	SlideID     string `json:"slide_id"`
	Order       int    `json:"order"`
	Title       string `json:"title"`
	HTMLContent string `json:"html_content"`
}

// DeckCompletedPayload accompanies EventDeckCompleted.
type DeckCompletedPayload struct {
	SlideCount int `json:"slide_count"`
}

// DeckFailedPayload accompanies EventDeckFailed. Reason identifies the stage,
// e.g. "planning" or "slide:2".
type DeckFailedPayload struct {
	Reason string `json:"reason"`
}

// HeartbeatPayload accompanies EventHeartbeat.
type HeartbeatPayload struct {
	TS int64 `json:"ts"`
}
