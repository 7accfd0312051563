// Package pipeline contains the orchestrator that drives a deck through its
// generation lifecycle: planning, per-slide layout selection and content
// rendering, and the terminal transition. Every observable step is recorded
// in the deck's event log and mirrored to live subscribers; every stage
// checks persisted state before acting so crashed or redelivered runs resume
// without duplicating work.
package pipeline
