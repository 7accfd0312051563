package schedule

import (
	"context"
	"sync"
)

// DefaultLimit is used when no explicit bound is configured. Chosen so
// aggregate LLM-call concurrency stays within a provider's practical limits.
const DefaultLimit = 4

// Scheduler runs submitted tasks with at most Limit running concurrently.
// Safe for concurrent use; a zero Scheduler is not valid, use New.
type Scheduler struct {
	sem   chan struct{}
	limit int
}

// New creates a Scheduler with the given concurrency bound. Non-positive
// limits fall back to DefaultLimit.
func New(limit int) *Scheduler {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Scheduler{sem: make(chan struct{}, limit), limit: limit}
}

// Limit returns the configured concurrency bound.
func (s *Scheduler) Limit() int { return s.limit }

// Handle tracks one submitted task.
type Handle struct {
	done chan struct{}
	err  error
}

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task's result after Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Submit schedules fn and returns immediately. The task waits for a free
// slot before running; if ctx is cancelled while waiting or running, the
// handle resolves with the context error (tasks must honor ctx themselves).
func (s *Scheduler) Submit(ctx context.Context, fn func(ctx context.Context) error) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		select {
		case <-ctx.Done():
			h.err = ctx.Err()
			return
		case s.sem <- struct{}{}:
		}
		defer func() { <-s.sem }()
		h.err = fn(ctx)
	}()
	return h
}

// Group joins a batch of tasks submitted through one scheduler, the
// count-down mechanism a pipeline run uses to await its slide tasks.
type Group struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	errs    []error
	sched   *Scheduler
	baseCtx context.Context
}

// NewGroup creates a Group bound to a scheduler and a shared task context.
func NewGroup(ctx context.Context, sched *Scheduler) *Group {
	return &Group{sched: sched, baseCtx: ctx}
}

// Go submits fn as part of the group.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	h := g.sched.Submit(g.baseCtx, fn)
	go func() {
		defer g.wg.Done()
		if err := h.Err(); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until every task in the group has finished and returns the
// collected errors. Successful siblings keep running when one task fails;
// aborting early is the caller's decision via context cancellation.
func (g *Group) Wait() []error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.errs...)
}
