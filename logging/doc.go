// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer DeckMeshLogger with contextual
// helpers (deck, component) and domain specific logging helpers for model
// calls, pipeline runs and event appends.
package logging
