package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the lifecycle states of a deck. A deck starts in
// StatusPending and is driven forward by the pipeline; the three terminal
// states (completed, failed, cancelled) admit no further transitions.
type Status string

const (
	// StatusPending marks a deck that has been accepted but not yet picked up.
	StatusPending Status = "pending"
	// StatusPlanning marks a deck whose plan is being generated.
	StatusPlanning Status = "planning"
	// StatusGenerating marks a deck whose slides are being rendered.
	StatusGenerating Status = "generating"
	// StatusCompleted marks a fully generated deck.
	StatusCompleted Status = "completed"
	// StatusFailed marks a deck whose pipeline exhausted its retries.
	StatusFailed Status = "failed"
	// StatusCancelled marks a deck cancelled on explicit request.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further state transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// NonTerminalStatuses lists every state a cancellation may transition from.
func NonTerminalStatuses() []Status {
	return []Status{StatusPending, StatusPlanning, StatusGenerating}
}

// Quality selects the model tier used for a deck's generation. Tiers map to
// concrete model names via configuration; the scheduler bound is global and
// independent of the tier.
type Quality string

const (
	// QualityDraft favors speed over polish.
	QualityDraft Quality = "draft"
	// QualityStandard is the default tier.
	QualityStandard Quality = "standard"
	// QualityPremium favors the strongest configured model.
	QualityPremium Quality = "premium"
)

// MaxSlideCount bounds how many slides a single request may ask for.
const MaxSlideCount = 20

// CreateRequest is the client-facing request that seeds a new deck.
type CreateRequest struct {
	Topic           string  `json:"topic"`
	Audience        string  `json:"audience,omitempty"`
	Theme           string  `json:"theme,omitempty"`
	ColorPreference string  `json:"color_preference,omitempty"`
	SlideCount      int     `json:"slide_count"`
	Quality         Quality `json:"quality,omitempty"`
}

// Validate rejects malformed requests before any deck record is created.
// Errors wrap ErrInvalidRequest so callers can classify them.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("%w: topic must not be empty", ErrInvalidRequest)
	}
	if r.SlideCount <= 0 {
		return fmt.Errorf("%w: slide_count must be positive", ErrInvalidRequest)
	}
	if r.SlideCount > MaxSlideCount {
		return fmt.Errorf("%w: slide_count must not exceed %d", ErrInvalidRequest, MaxSlideCount)
	}
	switch r.Quality {
	case "", QualityDraft, QualityStandard, QualityPremium:
	default:
		return fmt.Errorf("%w: unknown quality tier %q", ErrInvalidRequest, r.Quality)
	}
	return nil
}

// Deck is the presentation being generated. Version tracks the last accepted
// event for the deck; the record itself is a materialized projection of the
// event log used for fast point reads.
type Deck struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Topic           string    `json:"topic"`
	Audience        string    `json:"audience,omitempty"`
	Theme           string    `json:"theme,omitempty"`
	ColorPreference string    `json:"color_preference,omitempty"`
	Quality         Quality   `json:"quality"`
	SlideCount      int       `json:"slide_count"`
	Status          Status    `json:"status"`
	Version         int64     `json:"version"`
	Plan            *DeckPlan `json:"plan,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewDeck creates a pending deck from a validated request.
func NewDeck(req CreateRequest) *Deck {
	now := time.Now().UTC()
	quality := req.Quality
	if quality == "" {
		quality = QualityStandard
	}
	return &Deck{
		ID:              uuid.NewString(),
		Title:           req.Topic,
		Topic:           req.Topic,
		Audience:        req.Audience,
		Theme:           req.Theme,
		ColorPreference: req.ColorPreference,
		Quality:         quality,
		SlideCount:      req.SlideCount,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy so callers cannot mutate store-internal state.
func (d *Deck) Clone() *Deck {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Plan = d.Plan.Clone()
	return &cp
}

// DeckPlan is the structured breakdown of a deck request produced by the
// planning stage. Slide specs carry the dense 1..N presentation order that is
// fixed for the lifetime of the deck.
type DeckPlan struct {
	Title    string      `json:"title"`
	Topic    string      `json:"topic"`
	Audience string      `json:"audience,omitempty"`
	Theme    string      `json:"theme,omitempty"`
	Slides   []SlideSpec `json:"slides"`
}

// Clone returns a deep copy of the plan.
func (p *DeckPlan) Clone() *DeckPlan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Slides = append([]SlideSpec(nil), p.Slides...)
	return &cp
}

// Normalize sorts slide specs and rewrites their orders to a dense 1..N
// sequence. Model output occasionally skips or repeats indices; the deck
// order contract requires density.
func (p *DeckPlan) Normalize() {
	sort.SliceStable(p.Slides, func(i, j int) bool { return p.Slides[i].Order < p.Slides[j].Order })
	for i := range p.Slides {
		p.Slides[i].Order = i + 1
	}
}

// Validate checks the structural invariants of a plan after normalization.
func (p *DeckPlan) Validate() error {
	if p == nil || len(p.Slides) == 0 {
		return fmt.Errorf("%w: plan has no slides", ErrInvalidRequest)
	}
	for i, s := range p.Slides {
		if s.Order != i+1 {
			return fmt.Errorf("%w: slide orders are not dense", ErrInvalidRequest)
		}
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("%w: slide %d has no title", ErrInvalidRequest, s.Order)
		}
	}
	return nil
}

// SlideSpec is one planned slide before rendering.
type SlideSpec struct {
	Order   int    `json:"order"`
	Title   string `json:"title"`
	Outline string `json:"outline"`
	Notes   string `json:"notes,omitempty"`
}

// SlideStatus tracks the rendering state of a single slide.
type SlideStatus string

const (
	// SlidePending marks a placeholder slide awaiting content.
	SlidePending SlideStatus = "pending"
	// SlideRendered marks a slide whose content has been persisted.
	SlideRendered SlideStatus = "rendered"
)

// Slide is one page of a deck. Identity is the (DeckID, Order) pair; Order is
// fixed by the plan. HTMLContent stays nil until the render step commits,
// making "already rendered" checks trivial for the idempotency guard.
type Slide struct {
	ID             string      `json:"id"`
	DeckID         string      `json:"deck_id"`
	Order          int         `json:"order"`
	Title          string      `json:"title"`
	Layout         string      `json:"layout,omitempty"`
	HTMLContent    *string     `json:"html_content,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
	Status         SlideStatus `json:"status"`
	AppliedVersion int64       `json:"applied_version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the slide.
func (s *Slide) Clone() *Slide {
	if s == nil {
		return nil
	}
	cp := *s
	if s.HTMLContent != nil {
		v := *s.HTMLContent
		cp.HTMLContent = &v
	}
	if s.Notes != nil {
		v := *s.Notes
		cp.Notes = &v
	}
	return &cp
}

// Rendered reports whether slide content has been committed.
func (s *Slide) Rendered() bool { return s.HTMLContent != nil }

// SlideContent is the rendered output committed to a slide in one write.
type SlideContent struct {
	Title  string `json:"title"`
	Layout string `json:"layout,omitempty"`
	HTML   string `json:"html"`
	Notes  string `json:"notes,omitempty"`
}
