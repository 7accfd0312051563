package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/deckmesh/core"
)

// DeckBuilder provides a fluent helper for constructing decks in tests.
// Example:
//
//	deck := NewDeckBuilder().Topic("espresso").Slides(3).Status(core.StatusGenerating).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type DeckBuilder struct {
	id         string
	topic      string
	audience   string
	slideCount int
	quality    core.Quality
	status     core.Status
	version    int64
	plan       *core.DeckPlan
}

// NewDeckBuilder creates a builder with a generated ID and default topic.
func NewDeckBuilder() *DeckBuilder {
	return &DeckBuilder{
		id:         uuid.NewString(),
		topic:      "test topic",
		slideCount: 3,
		quality:    core.QualityStandard,
		status:     core.StatusPending,
	}
}

// ID overrides the generated deck ID (chainable).
func (b *DeckBuilder) ID(id string) *DeckBuilder { b.id = id; return b }

// Topic sets the deck topic (chainable).
func (b *DeckBuilder) Topic(t string) *DeckBuilder { b.topic = t; return b }

// Audience sets the target audience (chainable).
func (b *DeckBuilder) Audience(a string) *DeckBuilder { b.audience = a; return b }

// Slides sets the requested slide count (chainable).
func (b *DeckBuilder) Slides(n int) *DeckBuilder { b.slideCount = n; return b }

// Quality sets the quality tier (chainable).
func (b *DeckBuilder) Quality(q core.Quality) *DeckBuilder { b.quality = q; return b }

// Status sets the lifecycle status (chainable).
func (b *DeckBuilder) Status(s core.Status) *DeckBuilder { b.status = s; return b }

// Version sets the last event version (chainable).
func (b *DeckBuilder) Version(v int64) *DeckBuilder { b.version = v; return b }

// WithPlan attaches a generated plan with the builder's slide count (chainable).
func (b *DeckBuilder) WithPlan() *DeckBuilder {
	b.plan = Plan(b.topic, b.slideCount)
	return b
}

// Build materializes the deck.
func (b *DeckBuilder) Build() *core.Deck {
	now := time.Now().UTC()
	return &core.Deck{
		ID:         b.id,
		Title:      b.topic,
		Topic:      b.topic,
		Audience:   b.audience,
		Quality:    b.quality,
		SlideCount: b.slideCount,
		Status:     b.status,
		Version:    b.version,
		Plan:       b.plan,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Plan generates a dense n-slide plan for a topic.
func Plan(topic string, n int) *core.DeckPlan {
	plan := &core.DeckPlan{Title: topic, Topic: topic}
	for i := 1; i <= n; i++ {
		plan.Slides = append(plan.Slides, core.SlideSpec{
			Order:   i,
			Title:   fmt.Sprintf("Slide %d", i),
			Outline: fmt.Sprintf("Outline for slide %d about %s", i, topic),
		})
	}
	return plan
}
