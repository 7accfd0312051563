package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequestValidate(t *testing.T) {
	valid := CreateRequest{Topic: "espresso", SlideCount: 5}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"empty topic", CreateRequest{Topic: "  ", SlideCount: 3}},
		{"zero slide count", CreateRequest{Topic: "espresso", SlideCount: 0}},
		{"negative slide count", CreateRequest{Topic: "espresso", SlideCount: -1}},
		{"slide count over max", CreateRequest{Topic: "espresso", SlideCount: MaxSlideCount + 1}},
		{"unknown quality", CreateRequest{Topic: "espresso", SlideCount: 3, Quality: "ultra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestNewDeckDefaults(t *testing.T) {
	deck := NewDeck(CreateRequest{Topic: "espresso", SlideCount: 4})

	assert.NotEmpty(t, deck.ID)
	assert.Equal(t, "espresso", deck.Topic)
	assert.Equal(t, "espresso", deck.Title)
	assert.Equal(t, QualityStandard, deck.Quality)
	assert.Equal(t, StatusPending, deck.Status)
	assert.Zero(t, deck.Version)
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range NonTerminalStatuses() {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestDeckPlanNormalize(t *testing.T) {
	plan := &DeckPlan{Slides: []SlideSpec{
		{Order: 7, Title: "Close"},
		{Order: 2, Title: "Open"},
		{Order: 4, Title: "Middle"},
	}}
	plan.Normalize()

	require.Len(t, plan.Slides, 3)
	assert.Equal(t, []string{"Open", "Middle", "Close"}, []string{plan.Slides[0].Title, plan.Slides[1].Title, plan.Slides[2].Title})
	for i, s := range plan.Slides {
		assert.Equal(t, i+1, s.Order)
	}
	assert.NoError(t, plan.Validate())
}

func TestDeckPlanValidate(t *testing.T) {
	var nilPlan *DeckPlan
	assert.ErrorIs(t, nilPlan.Validate(), ErrInvalidRequest)

	empty := &DeckPlan{}
	assert.ErrorIs(t, empty.Validate(), ErrInvalidRequest)

	sparse := &DeckPlan{Slides: []SlideSpec{{Order: 1, Title: "a"}, {Order: 3, Title: "b"}}}
	assert.ErrorIs(t, sparse.Validate(), ErrInvalidRequest)

	untitled := &DeckPlan{Slides: []SlideSpec{{Order: 1, Title: " "}}}
	assert.ErrorIs(t, untitled.Validate(), ErrInvalidRequest)
}

func TestDeckCloneIsDeep(t *testing.T) {
	deck := NewDeck(CreateRequest{Topic: "espresso", SlideCount: 2})
	deck.Plan = &DeckPlan{Title: "t", Slides: []SlideSpec{{Order: 1, Title: "a"}}}

	cp := deck.Clone()
	cp.Plan.Slides[0].Title = "mutated"
	cp.Title = "mutated"

	assert.Equal(t, "a", deck.Plan.Slides[0].Title)
	assert.Equal(t, "espresso", deck.Title)
}

func TestSlideCloneAndRendered(t *testing.T) {
	sl := &Slide{ID: "s1", Order: 1, Status: SlidePending}
	assert.False(t, sl.Rendered())

	html := "<h1>hi</h1>"
	sl.HTMLContent = &html
	assert.True(t, sl.Rendered())

	cp := sl.Clone()
	*cp.HTMLContent = "mutated"
	assert.Equal(t, "<h1>hi</h1>", *sl.HTMLContent)
}
