package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deckmesh/model"
)

type reply struct {
	Answer string `json:"answer"`
}

func fastOpts(o *Options) {
	o.BaseDelay = time.Millisecond
	o.MaxDelay = 2 * time.Millisecond
}

func TestCallDecodesStructuredOutput(t *testing.T) {
	mock := model.NewMockCompleter()
	mock.Script(func(model.Request) (string, error) {
		return "```json\n{\"answer\": \"42\"}\n```", nil
	})

	g := New(mock, fastOpts)
	var out reply
	require.NoError(t, g.Call(context.Background(), Request{Prompt: "question"}, &out))
	assert.Equal(t, "42", out.Answer)
	assert.Equal(t, 1, mock.Calls())
}

func TestCallAdvertisesSchemaInPrompt(t *testing.T) {
	mock := model.NewMockCompleter()
	var seen model.Request
	mock.Script(func(req model.Request) (string, error) {
		seen = req
		return `{"answer": "ok"}`, nil
	})

	g := New(mock, fastOpts)
	var out reply
	require.NoError(t, g.Call(context.Background(), Request{System: "sys", Prompt: "question"}, &out))
	assert.Equal(t, "sys", seen.System)
	assert.Contains(t, seen.Prompt, "question")
	assert.Contains(t, seen.Prompt, `"answer"`)
}

func TestCallRepromptsOnSchemaViolation(t *testing.T) {
	mock := model.NewMockCompleter()
	mock.Script(
		func(model.Request) (string, error) { return `{"wrong": true}`, nil },
		func(req model.Request) (string, error) {
			// The violation is fed back into the retry prompt.
			if !assert.Contains(t, req.Prompt, "previous response was invalid") {
				return "", errors.New("missing violation feedback")
			}
			return `{"answer": "fixed"}`, nil
		},
	)

	g := New(mock, fastOpts)
	var out reply
	require.NoError(t, g.Call(context.Background(), Request{Prompt: "q"}, &out))
	assert.Equal(t, "fixed", out.Answer)
	assert.Equal(t, 2, mock.Calls())
}

func TestCallSchemaRetriesExhausted(t *testing.T) {
	mock := model.NewMockCompleter()
	mock.Script(
		func(model.Request) (string, error) { return "not json", nil },
		func(model.Request) (string, error) { return "still not json", nil },
	)

	g := New(mock, fastOpts, func(o *Options) { o.SchemaRetries = 1 })
	var out reply
	err := g.Call(context.Background(), Request{Prompt: "q"}, &out)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, 2, schemaErr.Attempts)
	assert.Equal(t, "still not json", schemaErr.Raw)
}

func TestCallRetriesRateLimit(t *testing.T) {
	mock := model.NewMockCompleter()
	mock.Script(
		func(model.Request) (string, error) { return "", model.ErrRateLimited },
		func(model.Request) (string, error) { return `{"answer": "ok"}`, nil },
	)

	g := New(mock, fastOpts)
	var out reply
	require.NoError(t, g.Call(context.Background(), Request{Prompt: "q"}, &out))
	assert.Equal(t, 2, mock.Calls())
}

func TestCallRateLimitExhausted(t *testing.T) {
	mock := model.NewMockCompleter()
	mock.Script(
		func(model.Request) (string, error) { return "", model.ErrRateLimited },
		func(model.Request) (string, error) { return "", model.ErrRateLimited },
		func(model.Request) (string, error) { return "", model.ErrRateLimited },
	)

	g := New(mock, fastOpts)
	var out reply
	err := g.Call(context.Background(), Request{Prompt: "q"}, &out)

	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 3, rlErr.Attempts)
	assert.ErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, 3, mock.Calls())
}

func TestCallTimeoutExhausted(t *testing.T) {
	mock := model.NewMockCompleter()
	step := func(model.Request) (string, error) { return "", context.DeadlineExceeded }
	mock.Script(step, step)

	g := New(mock, fastOpts, func(o *Options) { o.MaxAttempts = 2 })
	var out reply
	err := g.Call(context.Background(), Request{Prompt: "q"}, &out)

	var toErr *TimeoutError
	require.ErrorAs(t, err, &toErr)
	assert.Equal(t, 2, toErr.Attempts)
}

func TestCallPermanentErrorNotRetried(t *testing.T) {
	boom := errors.New("invalid api key")
	mock := model.NewMockCompleter()
	mock.Script(func(model.Request) (string, error) { return "", boom })

	g := New(mock, fastOpts)
	var out reply
	err := g.Call(context.Background(), Request{Prompt: "q"}, &out)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, mock.Calls())
}

func TestCallAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := model.NewMockCompleter()
	g := New(mock, fastOpts)
	var out reply
	err := g.Call(ctx, Request{Prompt: "q"}, &out)

	assert.ErrorIs(t, err, context.Canceled)
}
