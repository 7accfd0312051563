// Package gateway wraps a model.Completer with the reliability policy every
// LLM-backed pipeline stage needs: a per-call timeout, bounded exponential
// backoff with jitter for transient failures (timeouts, rate limits), and
// structured-output decoding with schema validation. Schema violations are
// retried a small fixed number of times with the validation error fed back
// into the prompt before giving up. Exhaustion always surfaces as a terminal
// error to the caller; the gateway never retries indefinitely.
package gateway
