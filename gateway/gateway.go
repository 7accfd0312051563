package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/hupe1980/deckmesh/internal/util"
	"github.com/hupe1980/deckmesh/logging"
	"github.com/hupe1980/deckmesh/model"
)

// Options holds configuration overrides passed to New().
type Options struct {
	// Timeout bounds each individual completion attempt.
	Timeout time.Duration
	// MaxAttempts bounds retries for transient failures (timeout, rate limit).
	MaxAttempts int
	// BaseDelay seeds the exponential backoff; it doubles per retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// SchemaRetries bounds re-prompts after schema validation failures.
	SchemaRetries int
	// Temperature / MaxTokens are forwarded to the completer.
	Temperature float64
	MaxTokens   int64
	// Logger receives call outcome records.
	Logger logging.Logger
}

// Request is one structured-output call. The gateway appends the expected
// JSON schema (derived from the decode target) to the prompt.
type Request struct {
	System string
	Prompt string
}

// Gateway drives a model.Completer under the retry policy described in the
// package documentation. Safe for concurrent use.
type Gateway struct {
	completer model.Completer
	opts      Options
}

// New constructs a Gateway with optional overrides.
func New(completer model.Completer, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Timeout:       60 * time.Second,
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      8 * time.Second,
		SchemaRetries: 2,
		Temperature:   0.7,
		MaxTokens:     4096,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{completer: completer, opts: opts}
}

// Info reports the wrapped completer's metadata.
func (g *Gateway) Info() model.Info { return g.completer.Info() }

// Call runs one structured-output completion and decodes the result into out
// (a pointer to a struct). The expected schema is derived from out via
// reflection, advertised in the prompt, and enforced on the decoded response.
func (g *Gateway) Call(ctx context.Context, req Request, out any) error {
	schema := util.CreateSchema(out)
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	prompt := fmt.Sprintf("%s\n\nRespond with a single JSON object matching this schema, and nothing else:\n%s", req.Prompt, schemaJSON)

	var schemaAttempts int
	start := time.Now()
	for {
		text, err := g.completeWithRetry(ctx, model.Request{
			System:      req.System,
			Prompt:      prompt,
			Temperature: g.opts.Temperature,
			MaxTokens:   g.opts.MaxTokens,
		})
		if err != nil {
			g.opts.Logger.Error("gateway call failed model=%s err=%v", g.completer.Info().Name, err)
			return err
		}

		verr := decodeInto(text, schema, out)
		if verr == nil {
			g.opts.Logger.Debug("gateway call succeeded model=%s duration=%s", g.completer.Info().Name, time.Since(start))
			return nil
		}

		schemaAttempts++
		if schemaAttempts > g.opts.SchemaRetries {
			return &SchemaError{Attempts: schemaAttempts, Err: verr, Raw: text}
		}
		// Feed the violation back so the model can correct itself.
		prompt = fmt.Sprintf("%s\n\nYour previous response was invalid: %v\nReturn a corrected JSON object matching the schema.", prompt, verr)
		g.opts.Logger.Warn("gateway schema validation failed, re-prompting attempt=%d err=%v", schemaAttempts, verr)
	}
}

// completeWithRetry performs the transient-failure retry loop around a single
// logical completion.
func (g *Gateway) completeWithRetry(ctx context.Context, req model.Request) (string, error) {
	var lastErr error
	var timedOut bool
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		text, err := g.completer.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			return text, nil
		}

		// The parent being done is a cancellation, not a provider failure.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			lastErr, timedOut = err, true
		case errors.Is(err, model.ErrRateLimited):
			lastErr, timedOut = err, false
		default:
			// Permanent provider error: not retried here.
			return "", err
		}

		if attempt == g.opts.MaxAttempts {
			break
		}
		if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
			return "", err
		}
	}

	if timedOut {
		return "", &TimeoutError{Attempts: g.opts.MaxAttempts, Err: lastErr}
	}
	return "", &RateLimitError{Attempts: g.opts.MaxAttempts, Err: lastErr}
}

// backoff computes the delay before the given (1-based) attempt's retry:
// base doubling per attempt, capped, with +/-50% jitter.
func (g *Gateway) backoff(attempt int) time.Duration {
	delay := g.opts.BaseDelay << (attempt - 1)
	if delay > g.opts.MaxDelay {
		delay = g.opts.MaxDelay
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(delay)+1))
}

func (g *Gateway) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeInto extracts the JSON object from raw model text, validates it
// against the schema and unmarshals it into out.
func decodeInto(text string, schema map[string]any, out any) error {
	raw := util.ExtractJSON(text)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return fmt.Errorf("response is not a JSON object: %w", err)
	}
	if err := util.Validate(decoded, schema); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("response does not fit expected structure: %w", err)
	}
	return nil
}
