// Package model defines the minimal completion interface DeckMesh requires
// from an LLM provider, plus a deterministic mock for tests. Provider
// implementations live in the model/openai and model/anthropic subpackages.
package model
