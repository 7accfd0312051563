// Package schedule provides a bounded-concurrency executor for independent
// units of work, one per slide. The bound is global across decks so one large
// deck cannot starve the others. Tasks observe cancellation cooperatively
// through their context; the scheduler never force-kills a running task and
// guarantees nothing about completion order.
package schedule
