// Package store provides core.Store implementations: a volatile in-memory
// store suited to tests and ephemeral demo servers, and a durable SQLite
// store in the sqlite subpackage. Both guarantee that record writes and their
// event appends happen in one atomic unit and that per-deck versions are
// gapless.
package store
