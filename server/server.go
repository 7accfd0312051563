// Package server exposes the deckmesh HTTP API: deck CRUD operations over
// huma/chi plus a raw SSE route for the per-deck event stream.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/hupe1980/deckmesh/core"
	"github.com/hupe1980/deckmesh/logging"
	"github.com/hupe1980/deckmesh/pipeline"
)

// DefaultHeartbeatInterval paces keepalive frames on idle event streams.
const DefaultHeartbeatInterval = 15 * time.Second

// Config for the HTTP API handler.
type Config struct {
	Orchestrator *pipeline.Orchestrator
	Store        core.Store
	Logger       logging.Logger
	BasePath     string
	// HeartbeatInterval paces SSE keepalive frames; zero selects the default.
	HeartbeatInterval time.Duration
	AllowedOrigins    []string
}

type apiErrorBody struct {
	Code    string `json:"code" example:"conflict"`
	Message string `json:"message" example:"deck abc is completed"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type server struct {
	orch      *pipeline.Orchestrator
	store     core.Store
	logger    logging.Logger
	heartbeat time.Duration
}

// New returns an HTTP handler exposing the deckmesh API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Orchestrator == nil || cfg.Store == nil {
		return nil, errors.New("server: orchestrator and store are required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	s := &server{
		orch:      cfg.Orchestrator,
		store:     cfg.Store,
		logger:    cfg.Logger,
		heartbeat: cfg.HeartbeatInterval,
	}
	if s.logger == nil {
		s.logger = logging.NoOpLogger{}
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeatInterval
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
	}))

	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	hcfg := huma.DefaultConfig("DeckMesh API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	s.registerDecks(group)
	s.registerSlides(group)

	// SSE does not fit huma's request/response model; register it on the
	// router directly.
	router.Get(basePath+"/decks/{deck_id}/events", s.handleEvents)

	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type deckPath struct {
	DeckID string `path:"deck_id"`
}

func (s *server) registerDecks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-deck",
		Method:        http.MethodPost,
		Path:          "/decks",
		Summary:       "Create a deck and start generation",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateDeckRequest `json:"body"`
	}) (*struct {
		Body DeckResponse `json:"body"`
	}, error) {
		deck, err := s.orch.Generate(ctx, createRequest(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeckResponse `json:"body"`
		}{Body: deckResponse(deck)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decks",
		Method:      http.MethodGet,
		Path:        "/decks",
		Summary:     "List decks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []DeckResponse `json:"body"`
	}, error) {
		decks, err := s.store.ListDecks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]DeckResponse, 0, len(decks))
		for i := range decks {
			out = append(out, deckResponse(&decks[i]))
		}
		return &struct {
			Body []DeckResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-deck",
		Method:      http.MethodGet,
		Path:        "/decks/{deck_id}",
		Summary:     "Get a deck with its slides",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *deckPath) (*struct {
		Body DeckDetailResponse `json:"body"`
	}, error) {
		deck, err := s.store.Deck(ctx, input.DeckID)
		if err != nil {
			return nil, handleError(err)
		}
		slides, err := s.store.Slides(ctx, input.DeckID)
		if err != nil {
			return nil, handleError(err)
		}
		detail := DeckDetailResponse{DeckResponse: deckResponse(deck), Slides: make([]SlideResponse, 0, len(slides))}
		for _, sl := range slides {
			detail.Slides = append(detail.Slides, slideResponse(sl))
		}
		return &struct {
			Body DeckDetailResponse `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-deck",
		Method:        http.MethodPost,
		Path:          "/decks/{deck_id}/cancel",
		Summary:       "Request cancellation of a deck's generation",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *deckPath) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if _, err := s.store.Deck(ctx, input.DeckID); err != nil {
			return nil, handleError(err)
		}
		if err := s.orch.Cancel(ctx, input.DeckID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "cancelling"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-deck",
		Method:        http.MethodDelete,
		Path:          "/decks/{deck_id}",
		Summary:       "Delete a deck, its slides and its event log",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *deckPath) (*struct{}, error) {
		deck, err := s.store.Deck(ctx, input.DeckID)
		if err != nil {
			return nil, handleError(err)
		}
		if !deck.Status.Terminal() {
			return nil, newAPIError(http.StatusConflict, "conflict", "deck is still generating, cancel it first")
		}
		if err := s.store.DeleteDeck(ctx, input.DeckID); err != nil {
			return nil, handleError(err)
		}
		s.orch.Broker().CloseDeck(input.DeckID)
		return &struct{}{}, nil
	})
}

func (s *server) registerSlides(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "edit-slide",
		Method:      http.MethodPost,
		Path:        "/decks/{deck_id}/slides/{order}",
		Summary:     "Regenerate one slide of a completed deck",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		DeckID string `path:"deck_id"`
		Order  int    `path:"order"`
		Body   EditSlideRequest
	}) (*struct {
		Body SlideResponse `json:"body"`
	}, error) {
		sl, err := s.orch.EditSlide(ctx, input.DeckID, input.Order, input.Body.Instruction)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SlideResponse `json:"body"`
		}{Body: slideResponse(*sl)}, nil
	})
}

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

func handleError(err error) huma.StatusError {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, core.ErrDeckTerminal):
		return newAPIError(http.StatusConflict, "deck_terminal", err.Error())
	case errors.Is(err, core.ErrInvalidRequest):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
	}
}
