package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrRateLimited marks provider errors caused by request throttling. Adapters
// wrap 429 responses with it so the gateway can classify retries without
// importing provider SDKs.
var ErrRateLimited = errors.New("rate limited")

// Request captures the normalized completion input produced by the gateway.
// System carries role instructions, Prompt the user-facing request.
type Request struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// Info contains metadata about a completer implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Completer is the minimal interface required by the gateway to drive
// generation. Complete blocks until the provider returns the full text or the
// context is done; classification of provider errors (rate limit, timeout) is
// the gateway's concern.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)

	// Info returns information about the completer implementation.
	Info() Info
}

// MockCompleter is a lightweight in-memory Completer useful for tests. It
// matches responses by prompt substring and can be scripted with a sequence
// of canned results or errors.
type MockCompleter struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	script    []func(Request) (string, error)
	calls     int
}

// NewMockCompleter constructs a MockCompleter.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{
		info:      Info{Name: "mock", Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion returned when the prompt contains
// the given substring.
func (m *MockCompleter) AddResponse(promptContains, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[promptContains] = response
}

// Script appends a step executed in order across calls; once the script is
// exhausted the completer falls back to substring matching.
func (m *MockCompleter) Script(steps ...func(Request) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
}

// Calls returns how many completions have been requested.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls++
	if len(m.script) > 0 {
		step := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		return step(req)
	}
	defer m.mu.Unlock()
	for substr, resp := range m.responses {
		if substr != "" && (strings.Contains(req.Prompt, substr) || strings.Contains(req.System, substr)) {
			return resp, nil
		}
	}
	return fmt.Sprintf("Mock response to: %s", req.Prompt), nil
}

// Info implements Completer.
func (m *MockCompleter) Info() Info { return m.info }
