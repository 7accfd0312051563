package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deckmesh/core"
	"github.com/hupe1980/deckmesh/gateway"
	"github.com/hupe1980/deckmesh/internal/testutil"
	"github.com/hupe1980/deckmesh/model"
	"github.com/hupe1980/deckmesh/pipeline"
	"github.com/hupe1980/deckmesh/store"
)

func newTestServer(t *testing.T) (http.Handler, *pipeline.Orchestrator, *store.InMemoryStore) {
	t.Helper()
	mock := model.NewMockCompleter()
	testutil.ScriptHappyPath(mock, "Espresso", 3)
	st := store.NewInMemoryStore()
	orch := pipeline.New(st, gateway.New(mock))

	handler, err := New(Config{Orchestrator: orch, Store: st})
	require.NoError(t, err)
	return handler, orch, st
}

func completedDeck(t *testing.T, orch *pipeline.Orchestrator) *core.Deck {
	t.Helper()
	ctx := context.Background()
	deck, err := orch.Start(ctx, core.CreateRequest{Topic: "espresso", SlideCount: 3})
	require.NoError(t, err)
	require.NoError(t, orch.Run(ctx, deck.ID))
	return deck
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler, _, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateDeckAccepted(t *testing.T) {
	handler, _, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/v1/decks", `{"topic":"espresso","slide_count":3}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp DeckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "espresso", resp.Topic)
	assert.Equal(t, string(core.StatusPending), resp.Status)
}

func TestCreateDeckRejectsInvalidRequest(t *testing.T) {
	handler, _, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/v1/decks", `{"topic":"espresso","slide_count":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestGetDeckWithSlides(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck := completedDeck(t, orch)

	rec := doJSON(t, handler, http.MethodGet, "/v1/decks/"+deck.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp DeckDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(core.StatusCompleted), resp.Status)
	require.Len(t, resp.Slides, 3)
	for i, sl := range resp.Slides {
		assert.Equal(t, i+1, sl.Order)
		require.NotNil(t, sl.HTMLContent)
	}
}

func TestGetDeckNotFound(t *testing.T) {
	handler, _, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/v1/decks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDecks(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	completedDeck(t, orch)

	rec := doJSON(t, handler, http.MethodGet, "/v1/decks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []DeckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
}

func TestCancelDeckAccepted(t *testing.T) {
	handler, orch, st := newTestServer(t)
	deck, err := orch.Start(context.Background(), core.CreateRequest{Topic: "espresso", SlideCount: 3})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/v1/decks/"+deck.ID+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got, err := st.Deck(context.Background(), deck.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, got.Status)
}

func TestCancelDeckNotFound(t *testing.T) {
	handler, _, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodPost, "/v1/decks/missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDeckConflictsWhileActive(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck, err := orch.Start(context.Background(), core.CreateRequest{Topic: "espresso", SlideCount: 3})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodDelete, "/v1/decks/"+deck.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestDeleteTerminalDeck(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck := completedDeck(t, orch)

	rec := doJSON(t, handler, http.MethodDelete, "/v1/decks/"+deck.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodGet, "/v1/decks/"+deck.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditSlide(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck := completedDeck(t, orch)

	rec := doJSON(t, handler, http.MethodPost, "/v1/decks/"+deck.ID+"/slides/2", `{"instruction":"shorter"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SlideResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Order)
	require.NotNil(t, resp.HTMLContent)
	assert.Equal(t, "<h1>Revised</h1>", *resp.HTMLContent)
}

func TestEditSlideConflictsOnPendingDeck(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck, err := orch.Start(context.Background(), core.CreateRequest{Topic: "espresso", SlideCount: 3})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/v1/decks/"+deck.ID+"/slides/1", `{"instruction":"shorter"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestEventStreamBackfillsAndCloses(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck := completedDeck(t, orch)

	// The deck is terminal, so the handler returns right after the backfill.
	rec := doJSON(t, handler, http.MethodGet, "/v1/decks/"+deck.ID+"/events?from=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "id: 1\nevent: DeckStarted")
	assert.Contains(t, body, "event: PlanUpdated")
	assert.Contains(t, body, "event: SlideAdded")
	assert.Contains(t, body, "id: 6\nevent: DeckCompleted")
	assert.NotContains(t, body, "event: Heartbeat")
}

func TestEventStreamHonorsWatermark(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck := completedDeck(t, orch)

	rec := doJSON(t, handler, http.MethodGet, "/v1/decks/"+deck.ID+"/events?from=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, "event: DeckStarted")
	assert.NotContains(t, body, "event: SlideAdded")
	assert.Contains(t, body, "id: 6\nevent: DeckCompleted")
}

func TestEventStreamLastEventIDHeader(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck := completedDeck(t, orch)

	req := httptest.NewRequest(http.MethodGet, "/v1/decks/"+deck.ID+"/events", nil)
	req.Header.Set("Last-Event-ID", "5")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "event: PlanUpdated")
	assert.Contains(t, body, "event: DeckCompleted")
}

func TestEventStreamRejectsInvalidWatermark(t *testing.T) {
	handler, orch, _ := newTestServer(t)
	deck := completedDeck(t, orch)

	rec := doJSON(t, handler, http.MethodGet, "/v1/decks/"+deck.ID+"/events?from=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventStreamUnknownDeck(t *testing.T) {
	handler, _, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/v1/decks/missing/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
