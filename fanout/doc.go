// Package fanout provides a per-deck publish/subscribe broker that mirrors
// event-log appends to any number of live listeners. Delivery is best-effort
// by design: a slow subscriber's buffer overflowing drops events for that
// subscriber only and never blocks the publisher or its siblings. Durability
// comes from the event log; a subscriber that needs a complete history reads
// the log from its last known version and de-duplicates by version.
package fanout
