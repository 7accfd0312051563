package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToDefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, New(0).Limit())
	assert.Equal(t, DefaultLimit, New(-3).Limit())
	assert.Equal(t, 2, New(2).Limit())
}

func TestSubmitEnforcesBound(t *testing.T) {
	const limit = 2
	const tasks = 8

	s := New(limit)
	var running, peak int64
	var wg sync.WaitGroup
	wg.Add(tasks)

	for i := 0; i < tasks; i++ {
		s.Submit(context.Background(), func(context.Context) error {
			defer wg.Done()
			cur := atomic.AddInt64(&running, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return nil
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(limit))
	assert.Positive(t, atomic.LoadInt64(&peak))
}

func TestSubmitResolvesHandleError(t *testing.T) {
	s := New(1)
	boom := errors.New("boom")

	h := s.Submit(context.Background(), func(context.Context) error { return boom })
	<-h.Done()
	assert.ErrorIs(t, h.Err(), boom)
}

func TestSubmitCancelledWhileWaiting(t *testing.T) {
	s := New(1)
	release := make(chan struct{})
	started := make(chan struct{})

	blocker := s.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	waiting := s.Submit(ctx, func(context.Context) error { return nil })
	cancel()

	assert.ErrorIs(t, waiting.Err(), context.Canceled)

	close(release)
	require.NoError(t, blocker.Err())
}

func TestGroupCollectsAllErrors(t *testing.T) {
	s := New(2)
	g := NewGroup(context.Background(), s)

	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	var succeeded atomic.Bool

	g.Go(func(context.Context) error { return boom1 })
	g.Go(func(context.Context) error { return boom2 })
	g.Go(func(context.Context) error {
		succeeded.Store(true)
		return nil
	})

	errs := g.Wait()
	assert.Len(t, errs, 2)
	assert.True(t, succeeded.Load(), "successful sibling should have run to completion")
}

func TestGroupWaitEmpty(t *testing.T) {
	g := NewGroup(context.Background(), New(1))
	assert.Empty(t, g.Wait())
}
