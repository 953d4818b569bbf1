package store

import (
	"context"
	"time"
)

// QueueStatus is the state of a queue entry as seen by the store.
type QueueStatus string

// Queue entry states. Pending entries are claimable, invoked entries are in
// flight, completed and failed entries are terminal and keep their outcome
// for waiters.
const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusInvoked   QueueStatus = "invoked"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
)

// IsTerminal reports whether no further transition is possible from s.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// ErrorKindTimeout is the outcome error kind recorded by ScanTimeouts.
const ErrorKindTimeout = "timeout"

// Envelope is a queued task as the store sees it: routing metadata plus an
// opaque blob. The store never looks inside Blob.
type Envelope struct {
	ID             string
	Channel        string
	TimeoutSeconds int
	Blob           []byte
	EnqueuedAt     time.Time
	ClaimedAt      time.Time
}

// Outcome is the terminal record of a task, kept so that waiters in any
// process can observe how the task ended.
type Outcome struct {
	Status       QueueStatus
	ErrorKind    string
	ErrorMessage string
	// Blob is the task re-encoded after execution.
	Blob       []byte
	FinishedAt time.Time
}

// QueueStore is the backing store for task queues.
// Implementations must make Dequeue an atomic claim (no two callers receive
// the same entry) and must make Ack, Release and ScanTimeouts atomic
// read-modify-write operations on the in-flight set.
type QueueStore interface {
	// Enqueue appends env to the tail of its channel.
	// Returns ErrDuplicate if an entry with the same ID exists.
	Enqueue(ctx context.Context, env Envelope) error

	// Dequeue claims the oldest pending entry of any of the given channels,
	// waiting up to wait for one to appear. An empty channel list means all
	// channels. Returns nil, nil when nothing was claimed in time.
	Dequeue(ctx context.Context, channels []string, wait time.Duration) (*Envelope, error)

	// Ack removes the in-flight entry and records its outcome.
	// Returns ErrNotInFlight if the entry is not claimed.
	Ack(ctx context.Context, channel, id string, out Outcome) error

	// Release hands an in-flight entry back to its channel as pending.
	Release(ctx context.Context, channel, id string) error

	// ListChannels returns every channel that has pending or in-flight entries.
	ListChannels(ctx context.Context) ([]string, error)

	// ScanTimeouts fails every in-flight entry of channel whose claim has
	// outlived its timeout and returns their IDs.
	ScanTimeouts(ctx context.Context, channel string) ([]string, error)

	// Await blocks until the entry reaches a terminal state or ctx is done.
	// An ID that does not exist yet is waited for, not reported missing.
	Await(ctx context.Context, id string) (*Outcome, error)
}
