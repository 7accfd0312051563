package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/deckmesh/core"
	"github.com/hupe1980/deckmesh/fanout"
	"github.com/hupe1980/deckmesh/gateway"
	"github.com/hupe1980/deckmesh/logging"
	"github.com/hupe1980/deckmesh/schedule"
)

// Options holds configuration overrides passed to New().
type Options struct {
	// Scheduler bounds concurrent slide tasks across all running decks.
	Scheduler *schedule.Scheduler
	// Broker receives every durably appended event for live fan-out.
	Broker *fanout.Broker
	// Logger receives pipeline progress records.
	Logger logging.Logger
	// Catalog is the layout catalog offered to the layout-selection step.
	Catalog []LayoutTemplate
	// TierGateways overrides the default gateway per quality tier.
	TierGateways map[core.Quality]*gateway.Gateway
}

// Orchestrator drives decks through the generation pipeline. Safe for
// concurrent use; at most one run per deck is active in-process at a time.
type Orchestrator struct {
	store   core.Store
	gateway *gateway.Gateway
	tiers   map[core.Quality]*gateway.Gateway
	broker  *fanout.Broker
	sched   *schedule.Scheduler
	catalog []LayoutTemplate
	logger  logging.Logger

	mu     sync.Mutex
	active map[string]*runState
}

type runState struct {
	cancel    context.CancelFunc
	requested atomic.Bool
}

// New constructs an Orchestrator over a store and a default gateway.
func New(store core.Store, gw *gateway.Gateway, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Scheduler: schedule.New(0),
		Broker:    fanout.NewBroker(),
		Logger:    logging.NoOpLogger{},
		Catalog:   DefaultCatalog,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		store:   store,
		gateway: gw,
		tiers:   opts.TierGateways,
		broker:  opts.Broker,
		sched:   opts.Scheduler,
		catalog: opts.Catalog,
		logger:  opts.Logger,
		active:  make(map[string]*runState),
	}
}

// Broker exposes the fan-out broker so callers can subscribe to live events.
func (o *Orchestrator) Broker() *fanout.Broker { return o.broker }

// Start validates the request and persists a new pending deck. The pipeline
// does not run until Run is called for the returned deck.
func (o *Orchestrator) Start(ctx context.Context, req core.CreateRequest) (*core.Deck, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	deck := core.NewDeck(req)
	if err := o.store.CreateDeck(ctx, deck); err != nil {
		return nil, err
	}
	o.logger.Info("deck accepted deck=%s topic=%q slides=%d quality=%s", deck.ID, deck.Topic, deck.SlideCount, deck.Quality)
	return deck, nil
}

// Generate starts a deck and launches its pipeline run in the background.
// The run is detached from the caller's context so an HTTP request ending
// does not abort generation.
func (o *Orchestrator) Generate(ctx context.Context, req core.CreateRequest) (*core.Deck, error) {
	deck, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := o.Run(context.Background(), deck.ID); err != nil {
			o.logger.Error("pipeline run ended with error deck=%s err=%v", deck.ID, err)
		}
	}()
	return deck, nil
}

// Run drives the deck from its persisted state to a terminal state. It is
// safe to call for a deck that already ran: terminal decks are a no-op, and
// a partially generated deck resumes where it left off without redoing
// committed work. Concurrent Runs for the same deck collapse to one winner.
func (o *Orchestrator) Run(ctx context.Context, deckID string) error {
	deck, err := o.store.Deck(ctx, deckID)
	if err != nil {
		return err
	}
	if deck.Status.Terminal() {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	rs := &runState{cancel: cancel}
	o.mu.Lock()
	if _, ok := o.active[deckID]; ok {
		o.mu.Unlock()
		cancel()
		return nil
	}
	o.active[deckID] = rs
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, deckID)
		o.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	o.logger.Info("pipeline run started deck=%s status=%s", deckID, deck.Status)

	if deck.Status == core.StatusPending {
		ev, err := o.store.Transition(ctx, deckID, []core.Status{core.StatusPending}, core.StatusPlanning,
			core.EventDeckStarted, core.DeckStartedPayload{Title: deck.Title, Topic: deck.Topic})
		if errors.Is(err, core.ErrConflict) {
			// Another run claimed the deck between our read and the CAS.
			return nil
		}
		if err != nil {
			return err
		}
		o.publish(ev)
		deck.Status = core.StatusPlanning
	}

	// trigger is the plan event version slide tasks use for their idempotency
	// check. It stays zero on resume, where "already rendered" is sufficient.
	var trigger int64
	if deck.Status == core.StatusPlanning {
		plan, err := o.plan(runCtx, deck)
		if err != nil {
			return o.failStage(ctx, rs, deckID, "planning", err, start)
		}
		ev, err := o.store.ApplyPlan(ctx, deckID, plan)
		switch {
		case errors.Is(err, core.ErrConflict):
			// A concurrent run applied its plan first; adopt the stored one.
		case err != nil:
			return err
		default:
			o.publish(ev)
			trigger = ev.Version
		}
		if deck, err = o.store.Deck(ctx, deckID); err != nil {
			return err
		}
	}

	if deck.Status != core.StatusGenerating {
		// Someone else drove the deck to a terminal state in the meantime.
		return nil
	}
	if deck.Plan == nil {
		return fmt.Errorf("deck %s is generating without a plan", deckID)
	}

	gw := o.gatewayFor(deck.Quality)
	group := schedule.NewGroup(runCtx, o.sched)
	for _, spec := range deck.Plan.Slides {
		spec := spec
		group.Go(func(taskCtx context.Context) error {
			if err := o.runSlideTask(taskCtx, deck, spec, gw, trigger); err != nil {
				if taskCtx.Err() == nil {
					// A real failure aborts in-flight siblings; content they
					// already committed stays.
					cancel()
				}
				return &slideError{order: spec.Order, err: err}
			}
			return nil
		})
	}
	errs := group.Wait()
	return o.finalize(ctx, rs, deck, errs, start)
}

// Cancel requests cancellation of a deck. A running pipeline is interrupted
// at its next checkpoint; a deck with no active run transitions directly.
// Cancelling a terminal deck is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, deckID string) error {
	o.mu.Lock()
	rs := o.active[deckID]
	o.mu.Unlock()
	if rs != nil {
		rs.requested.Store(true)
		rs.cancel()
		o.logger.Info("cancellation requested deck=%s", deckID)
		return nil
	}

	ev, err := o.store.Transition(ctx, deckID, core.NonTerminalStatuses(), core.StatusCancelled, core.EventDeckCancelled, nil)
	if errors.Is(err, core.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	o.publish(ev)
	return nil
}

// Running reports whether a pipeline run for the deck is active in-process.
func (o *Orchestrator) Running(deckID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[deckID]
	return ok
}

// EditSlide regenerates one slide of a completed deck under an instruction.
// Edits on a deck that is still generating are rejected with ErrConflict.
func (o *Orchestrator) EditSlide(ctx context.Context, deckID string, order int, instruction string) (*core.Slide, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("%w: instruction must not be empty", core.ErrInvalidRequest)
	}
	deck, err := o.store.Deck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if deck.Status != core.StatusCompleted {
		if deck.Status.Terminal() {
			return nil, fmt.Errorf("deck %s is %s: %w", deckID, deck.Status, core.ErrDeckTerminal)
		}
		return nil, fmt.Errorf("deck %s is %s, edits require a completed deck: %w", deckID, deck.Status, core.ErrConflict)
	}
	sl, err := o.store.Slide(ctx, deckID, order)
	if err != nil {
		return nil, err
	}
	if !sl.Rendered() {
		return nil, fmt.Errorf("slide %d has no content: %w", order, core.ErrConflict)
	}

	var content contentOutput
	err = o.gatewayFor(deck.Quality).Call(ctx, gateway.Request{
		System: contentSystemPrompt,
		Prompt: editPrompt(deck, sl, instruction),
	}, &content)
	if err != nil {
		return nil, fmt.Errorf("edit slide %d: %w", order, err)
	}

	ev, err := o.store.ReplaceSlideContent(ctx, deckID, order, core.SlideContent{
		Title:  content.Title,
		Layout: sl.Layout,
		HTML:   content.HTMLContent,
		Notes:  content.PresenterNotes,
	})
	if err != nil {
		return nil, err
	}
	o.publish(ev)
	return o.store.Slide(ctx, deckID, order)
}

// plan runs the planning call and normalizes the result into a DeckPlan.
func (o *Orchestrator) plan(ctx context.Context, deck *core.Deck) (*core.DeckPlan, error) {
	var out planOutput
	err := o.gatewayFor(deck.Quality).Call(ctx, gateway.Request{
		System: planSystemPrompt,
		Prompt: planPrompt(deck),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("plan deck: %w", err)
	}

	plan := &core.DeckPlan{
		Title:    coalesce(out.Title, deck.Title),
		Topic:    deck.Topic,
		Audience: coalesce(out.Audience, deck.Audience),
		Theme:    coalesce(out.Theme, deck.Theme),
	}
	for _, s := range out.Slides {
		plan.Slides = append(plan.Slides, core.SlideSpec{Order: s.Order, Title: s.Title, Outline: s.Outline, Notes: s.Notes})
	}
	plan.Normalize()
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if len(plan.Slides) != deck.SlideCount {
		o.logger.Warn("plan slide count differs from request deck=%s got=%d want=%d", deck.ID, len(plan.Slides), deck.SlideCount)
	}
	return plan, nil
}

// runSlideTask selects a layout and renders content for one slide, then
// commits both in a single write. The persisted-state pre-check and the
// trigger watermark make the task a no-op when the work already happened.
func (o *Orchestrator) runSlideTask(ctx context.Context, deck *core.Deck, spec core.SlideSpec, gw *gateway.Gateway, trigger int64) error {
	sl, err := o.store.Slide(ctx, deck.ID, spec.Order)
	if err != nil {
		return err
	}
	if sl.Rendered() && trigger <= sl.AppliedVersion {
		o.logger.Debug("slide already rendered, skipping deck=%s order=%d", deck.ID, spec.Order)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	var layout layoutOutput
	err = gw.Call(ctx, gateway.Request{
		System: layoutSystemPrompt,
		Prompt: layoutPrompt(deck, spec, o.catalog),
	}, &layout)
	if err != nil {
		return fmt.Errorf("select layout: %w", err)
	}
	if !catalogHas(o.catalog, layout.Layout) {
		// The model named a layout outside the catalog; use the first entry.
		o.logger.Warn("unknown layout %q deck=%s order=%d", layout.Layout, deck.ID, spec.Order)
		layout.Layout = o.catalog[0].Name
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	var content contentOutput
	err = gw.Call(ctx, gateway.Request{
		System: contentSystemPrompt,
		Prompt: contentPrompt(deck, spec, layout.Layout),
	}, &content)
	if err != nil {
		return fmt.Errorf("render content: %w", err)
	}

	ev, applied, err := o.store.AddSlideContent(ctx, deck.ID, spec.Order, core.SlideContent{
		Title:  coalesce(content.Title, spec.Title),
		Layout: layout.Layout,
		HTML:   content.HTMLContent,
		Notes:  coalesce(content.PresenterNotes, spec.Notes),
	}, trigger)
	if err != nil {
		return err
	}
	if applied {
		o.publish(ev)
	}
	return nil
}

// failStage records a stage failure unless the run was cancelled, in which
// case the deck transitions to cancelled instead.
func (o *Orchestrator) failStage(ctx context.Context, rs *runState, deckID, reason string, cause error, start time.Time) error {
	if rs.requested.Load() {
		return o.finishCancelled(ctx, deckID, start)
	}
	if errors.Is(cause, context.Canceled) {
		// The surrounding context died (e.g. shutdown). Leave the deck
		// non-terminal so a later run can resume it.
		return cause
	}
	ev, err := o.store.Transition(ctx, deckID, core.NonTerminalStatuses(), core.StatusFailed,
		core.EventDeckFailed, core.DeckFailedPayload{Reason: reason})
	if err != nil && !errors.Is(err, core.ErrConflict) {
		return err
	}
	if err == nil {
		o.publish(ev)
	}
	o.logger.Error("pipeline run failed deck=%s reason=%s duration=%s err=%v", deckID, reason, time.Since(start), cause)
	return cause
}

// finalize resolves the terminal transition once all slide tasks returned.
func (o *Orchestrator) finalize(ctx context.Context, rs *runState, deck *core.Deck, errs []error, start time.Time) error {
	if rs.requested.Load() {
		return o.finishCancelled(ctx, deck.ID, start)
	}

	if len(errs) > 0 {
		reason, cause := failureReason(errs)
		if reason == "" {
			// Only context errors without a cancel request: resumable.
			return errors.Join(errs...)
		}
		return o.failStage(ctx, rs, deck.ID, reason, cause, start)
	}

	ev, err := o.store.Transition(ctx, deck.ID, []core.Status{core.StatusGenerating}, core.StatusCompleted,
		core.EventDeckCompleted, core.DeckCompletedPayload{SlideCount: len(deck.Plan.Slides)})
	if errors.Is(err, core.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	o.publish(ev)
	o.logger.Info("pipeline run completed deck=%s slides=%d duration=%s", deck.ID, len(deck.Plan.Slides), time.Since(start))
	return nil
}

func (o *Orchestrator) finishCancelled(ctx context.Context, deckID string, start time.Time) error {
	ev, err := o.store.Transition(ctx, deckID, core.NonTerminalStatuses(), core.StatusCancelled, core.EventDeckCancelled, nil)
	if err != nil && !errors.Is(err, core.ErrConflict) {
		return err
	}
	if err == nil {
		o.publish(ev)
	}
	o.logger.Info("pipeline run cancelled deck=%s duration=%s", deckID, time.Since(start))
	return nil
}

func (o *Orchestrator) gatewayFor(q core.Quality) *gateway.Gateway {
	if gw, ok := o.tiers[q]; ok {
		return gw
	}
	return o.gateway
}

func (o *Orchestrator) publish(ev core.Event) {
	o.logger.Debug("event appended deck=%s type=%s version=%d", ev.DeckID, ev.Type, ev.Version)
	o.broker.Publish(ev)
}

// slideError tags a task failure with the slide's deck order.
type slideError struct {
	order int
	err   error
}

func (e *slideError) Error() string { return fmt.Sprintf("slide %d: %v", e.order, e.err) }

func (e *slideError) Unwrap() error { return e.err }

// failureReason picks the lowest-order real slide failure, ignoring tasks
// that merely observed a cancelled context.
func failureReason(errs []error) (string, error) {
	var first *slideError
	for _, err := range errs {
		var se *slideError
		if errors.As(err, &se) && !errors.Is(se.err, context.Canceled) {
			if first == nil || se.order < first.order {
				first = se
			}
		}
	}
	if first == nil {
		return "", nil
	}
	return fmt.Sprintf("slide:%d", first.order), first
}

func coalesce(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}
