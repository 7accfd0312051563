// Package deckmesh provides a high-level façade over the generation pipeline
// and its services (store, gateway, scheduler, fan-out broker) enabling rapid
// construction of presentation-generation systems. Most applications interact
// with this package by:
//  1. Creating a DeckMesh via New() with a model.Completer (optionally
//     overriding the default in-memory store and other services)
//  2. Starting deck generation asynchronously (Generate) or synchronously
//     (GenerateSync)
//  3. Subscribing to a deck's event stream and/or replaying its history
//
// The façade delegates orchestration to pipeline.Orchestrator while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply the
// durable SQLite store and a structured logger.
package deckmesh

import (
	"context"

	"github.com/hupe1980/deckmesh/core"
	"github.com/hupe1980/deckmesh/fanout"
	"github.com/hupe1980/deckmesh/gateway"
	"github.com/hupe1980/deckmesh/logging"
	"github.com/hupe1980/deckmesh/model"
	"github.com/hupe1980/deckmesh/pipeline"
	"github.com/hupe1980/deckmesh/schedule"
	"github.com/hupe1980/deckmesh/store"
)

// Options configures the DeckMesh instance.
type Options struct {
	// Store persists decks, slides and the event log (defaults to the
	// in-memory implementation if not provided).
	Store core.Store

	// TierCompleters overrides the default completer per quality tier.
	TierCompleters map[core.Quality]model.Completer

	// Concurrency limits simultaneously running slide tasks across all
	// decks. Set to 0 for the scheduler default.
	Concurrency int

	// EventBufferSize sets the per-subscription channel buffer for live
	// event fan-out. Larger buffers reduce drops for slow consumers.
	EventBufferSize int

	// GatewayOptions tunes retry, timeout and sampling behavior of every
	// constructed gateway.
	GatewayOptions []func(o *gateway.Options)

	// Catalog overrides the built-in layout catalog.
	Catalog []pipeline.LayoutTemplate

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// DeckMesh is the high-level façade aggregating the orchestrator and services.
type DeckMesh struct {
	opts   Options
	store  core.Store
	broker *fanout.Broker
	orch   *pipeline.Orchestrator
}

// New creates a new DeckMesh instance over a completer with optional
// overrides. Any unset service is initialized with an in-memory default.
func New(completer model.Completer, optFns ...func(o *Options)) *DeckMesh {
	opts := Options{
		Store:           store.NewInMemoryStore(),
		EventBufferSize: fanout.DefaultBufferSize,
		Logger:          logging.NoOpLogger{},
		Catalog:         pipeline.DefaultCatalog,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	gwOpts := append([]func(o *gateway.Options){func(o *gateway.Options) {
		o.Logger = opts.Logger
	}}, opts.GatewayOptions...)

	gw := gateway.New(completer, gwOpts...)
	tiers := make(map[core.Quality]*gateway.Gateway, len(opts.TierCompleters))
	for tier, c := range opts.TierCompleters {
		tiers[tier] = gateway.New(c, gwOpts...)
	}

	broker := fanout.NewBroker(func(o *fanout.Options) {
		o.BufferSize = opts.EventBufferSize
	})
	orch := pipeline.New(opts.Store, gw, func(o *pipeline.Options) {
		o.Scheduler = schedule.New(opts.Concurrency)
		o.Broker = broker
		o.Logger = opts.Logger
		o.Catalog = opts.Catalog
		o.TierGateways = tiers
	})

	return &DeckMesh{opts: opts, store: opts.Store, broker: broker, orch: orch}
}

// Orchestrator exposes the underlying pipeline orchestrator.
func (m *DeckMesh) Orchestrator() *pipeline.Orchestrator { return m.orch }

// Store exposes the underlying store.
func (m *DeckMesh) Store() core.Store { return m.store }

// Generate starts a deck and runs its pipeline in the background, returning
// the accepted deck immediately.
func (m *DeckMesh) Generate(ctx context.Context, req core.CreateRequest) (*core.Deck, error) {
	return m.orch.Generate(ctx, req)
}

// GenerateSync is a synchronous helper that starts a deck, runs its pipeline
// to a terminal state and returns the final deck together with the full
// event history.
func (m *DeckMesh) GenerateSync(ctx context.Context, req core.CreateRequest) (*core.Deck, []core.Event, error) {
	deck, err := m.orch.Start(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	if err := m.orch.Run(ctx, deck.ID); err != nil {
		return nil, nil, err
	}

	events, err := m.store.ReadFrom(ctx, deck.ID, 0)
	if err != nil {
		return nil, nil, err
	}
	final, err := m.store.Deck(ctx, deck.ID)
	if err != nil {
		return nil, nil, err
	}
	return final, events, nil
}

// Cancel requests cancellation of a deck's generation.
func (m *DeckMesh) Cancel(ctx context.Context, deckID string) error {
	return m.orch.Cancel(ctx, deckID)
}

// EditSlide regenerates one slide of a completed deck under an instruction.
func (m *DeckMesh) EditSlide(ctx context.Context, deckID string, order int, instruction string) (*core.Slide, error) {
	return m.orch.EditSlide(ctx, deckID, order, instruction)
}

// Deck returns the current state of a deck.
func (m *DeckMesh) Deck(ctx context.Context, deckID string) (*core.Deck, error) {
	return m.store.Deck(ctx, deckID)
}

// Slides returns a deck's slides in deck order.
func (m *DeckMesh) Slides(ctx context.Context, deckID string) ([]core.Slide, error) {
	return m.store.Slides(ctx, deckID)
}

// History replays the persisted events of a deck with version > from.
func (m *DeckMesh) History(ctx context.Context, deckID string, from int64) ([]core.Event, error) {
	return m.store.ReadFrom(ctx, deckID, from)
}

// Subscribe attaches a live listener to a deck's event stream. Combine with
// History and de-duplicate by version for a gapless view.
func (m *DeckMesh) Subscribe(deckID string) *fanout.Subscription {
	return m.broker.Subscribe(deckID)
}
