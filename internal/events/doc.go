// Package events provides a typed publish/subscribe registry for task
// lifecycle events.
//
// Handlers subscribe to a single event name and receive an unsubscribe
// function, so components can come and go without leaking handlers. The
// task pools emit lifecycle events (enqueued, completed, failed, timed out,
// released); producers emit task.requested to enqueue work without holding
// a pool reference.
package events
