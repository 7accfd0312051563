// Package core provides the foundational domain types and contracts used by
// DeckMesh. It defines the core abstractions for:
//
//   - Decks and slides (the presentation being generated)
//   - Deck plans (the structured breakdown produced by the planning stage)
//   - Events (immutable, versioned progress records per deck)
//   - The Store / EventLog contracts backing the pipeline
//
// The package intentionally keeps implementation concerns (persistence,
// orchestration, model providers) out of scope, exposing small interfaces to
// enable custom backends and extensions.
package core
