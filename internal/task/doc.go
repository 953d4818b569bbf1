// Package task runs units of background work through a persistent queue.
//
// A Task moves through created, invoked and then exactly one of completed or
// failed. Pools move tasks between callers and a store.QueueStore: Pool blocks
// the caller (Poll, Wait, EnqueueWait), while AsyncPool delivers results
// through callbacks and is driven by Worker, a single event loop that invokes
// claimed tasks, completes them through the pool, and periodically fails
// tasks that outlived their timeout. A task registered with Then is enqueued
// only after its predecessor completes.
package task
