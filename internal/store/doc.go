// Package store defines the persistence contract for the task queue.
// Adapters in internal/platform implement QueueStore on top of a concrete
// backend; the task package only ever talks to the interface.
package store
