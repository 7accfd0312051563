package deckmesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deckmesh/core"
	"github.com/hupe1980/deckmesh/internal/testutil"
	"github.com/hupe1980/deckmesh/model"
)

func TestGenerateSync(t *testing.T) {
	mock := model.NewMockCompleter()
	testutil.ScriptHappyPath(mock, "Espresso", 3)
	mesh := New(mock)

	deck, events, err := mesh.GenerateSync(context.Background(), core.CreateRequest{
		Topic:      "the history of espresso",
		SlideCount: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, deck.Status)
	assert.Equal(t, int64(6), deck.Version)
	require.Len(t, events, 6)
	assert.Equal(t, core.EventDeckStarted, events[0].Type)
	assert.Equal(t, core.EventDeckCompleted, events[len(events)-1].Type)

	slides, err := mesh.Slides(context.Background(), deck.ID)
	require.NoError(t, err)
	require.Len(t, slides, 3)
	for _, sl := range slides {
		assert.True(t, sl.Rendered())
	}
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	mock := model.NewMockCompleter()
	testutil.ScriptHappyPath(mock, "Espresso", 2)
	mesh := New(mock)

	deck, err := mesh.Orchestrator().Start(context.Background(), core.CreateRequest{Topic: "espresso", SlideCount: 2})
	require.NoError(t, err)

	sub := mesh.Subscribe(deck.ID)
	defer sub.Cancel()

	require.NoError(t, mesh.Orchestrator().Run(context.Background(), deck.ID))

	var got []core.EventType
	for ev := range sub.Events() {
		got = append(got, ev.Type)
		if ev.Type == core.EventDeckCompleted {
			break
		}
	}
	assert.Equal(t, core.EventDeckStarted, got[0])
	assert.Equal(t, core.EventDeckCompleted, got[len(got)-1])
}

func TestTierCompleterRouting(t *testing.T) {
	standard := model.NewMockCompleter()
	testutil.ScriptHappyPath(standard, "Espresso", 2)
	premium := model.NewMockCompleter()
	testutil.ScriptHappyPath(premium, "Espresso", 2)

	mesh := New(standard, func(o *Options) {
		o.TierCompleters = map[core.Quality]model.Completer{core.QualityPremium: premium}
	})

	_, _, err := mesh.GenerateSync(context.Background(), core.CreateRequest{
		Topic:      "espresso",
		SlideCount: 2,
		Quality:    core.QualityPremium,
	})
	require.NoError(t, err)

	assert.Positive(t, premium.Calls(), "premium tier should route to its completer")
	assert.Zero(t, standard.Calls())
}

func TestGenerateSyncRejectsInvalidRequest(t *testing.T) {
	mesh := New(model.NewMockCompleter())
	_, _, err := mesh.GenerateSync(context.Background(), core.CreateRequest{Topic: "", SlideCount: 3})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}
