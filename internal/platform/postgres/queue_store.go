package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/scry-queue/internal/platform/logger"
	"github.com/phrazzld/scry-queue/internal/store"
)

// DefaultPollInterval is how often blocking operations re-check the table.
const DefaultPollInterval = 200 * time.Millisecond

// QueueStore implements store.QueueStore using PostgreSQL
type QueueStore struct {
	db           store.DBTX
	pollInterval time.Duration
}

// NewQueueStore creates a new QueueStore. A non-positive pollInterval uses
// DefaultPollInterval.
func NewQueueStore(db store.DBTX, pollInterval time.Duration) *QueueStore {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &QueueStore{
		db:           db,
		pollInterval: pollInterval,
	}
}

// Enqueue implements store.QueueStore.
func (s *QueueStore) Enqueue(ctx context.Context, env store.Envelope) error {
	log := logger.FromContext(ctx)

	if env.ID == "" || env.Channel == "" {
		return store.NewStoreError("task", "enqueue", "id and channel are required", store.ErrInvalidEntity)
	}
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO queue_tasks (id, channel, timeout_seconds, blob, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		env.ID,
		env.Channel,
		env.TimeoutSeconds,
		env.Blob,
		env.EnqueuedAt,
	)
	if IsUniqueViolation(err) {
		return store.NewStoreError("task", "enqueue",
			fmt.Sprintf("task id %s is already queued", env.ID), store.ErrDuplicate)
	}
	if err != nil {
		log.Error("failed to enqueue task",
			"task_id", env.ID,
			"channel", env.Channel,
			"error", err)
		return store.NewStoreError("task", "enqueue", env.ID, MapError(err))
	}

	return nil
}

// Dequeue implements store.QueueStore. It retries the claim every poll
// interval until wait elapses.
func (s *QueueStore) Dequeue(ctx context.Context, channels []string, wait time.Duration) (*store.Envelope, error) {
	deadline := time.Now().Add(wait)

	for {
		env, err := s.claim(ctx, channels)
		if err != nil || env != nil {
			return env, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if err := sleep(ctx, min(remaining, s.pollInterval)); err != nil {
			return nil, err
		}
	}
}

func (s *QueueStore) claim(ctx context.Context, channels []string) (*store.Envelope, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE queue_tasks
		SET status = 'invoked',
			claimed_at = NOW(),
			deadline_at = CASE
				WHEN timeout_seconds > 0 THEN NOW() + make_interval(secs => timeout_seconds)
			END
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE status = 'pending' AND ($1 OR channel = ANY($2))
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, channel, timeout_seconds, blob, enqueued_at, claimed_at
	`

	if channels == nil {
		channels = []string{}
	}

	var env store.Envelope
	err := s.db.QueryRowContext(ctx, query, len(channels) == 0, channels).Scan(
		&env.ID,
		&env.Channel,
		&env.TimeoutSeconds,
		&env.Blob,
		&env.EnqueuedAt,
		&env.ClaimedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to claim task",
			"channels", channels,
			"error", err)
		return nil, store.NewStoreError("task", "dequeue", "claim failed", MapError(err))
	}

	return &env, nil
}

// Ack implements store.QueueStore.
func (s *QueueStore) Ack(ctx context.Context, channel, id string, out store.Outcome) error {
	log := logger.FromContext(ctx)

	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now().UTC()
	}

	query := `
		UPDATE queue_tasks
		SET status = $3,
			error_kind = NULLIF($4, ''),
			error_message = NULLIF($5, ''),
			outcome = $6,
			finished_at = $7,
			deadline_at = NULL
		WHERE id = $1 AND channel = $2 AND status = 'invoked'
	`

	result, err := s.db.ExecContext(ctx, query,
		id,
		channel,
		string(out.Status),
		out.ErrorKind,
		out.ErrorMessage,
		out.Blob,
		out.FinishedAt,
	)
	if err != nil {
		log.Error("failed to ack task",
			"task_id", id,
			"channel", channel,
			"error", err)
		return store.NewStoreError("task", "ack", id, MapError(err))
	}

	return s.checkInFlight(ctx, "ack", channel, id, result)
}

// Release implements store.QueueStore.
func (s *QueueStore) Release(ctx context.Context, channel, id string) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE queue_tasks
		SET status = 'pending', claimed_at = NULL, deadline_at = NULL
		WHERE id = $1 AND channel = $2 AND status = 'invoked'
	`

	result, err := s.db.ExecContext(ctx, query, id, channel)
	if err != nil {
		log.Error("failed to release task",
			"task_id", id,
			"channel", channel,
			"error", err)
		return store.NewStoreError("task", "release", id, MapError(err))
	}

	return s.checkInFlight(ctx, "release", channel, id, result)
}

// checkInFlight turns an update that touched no rows into ErrTaskNotFound
// or ErrNotInFlight.
func (s *QueueStore) checkInFlight(ctx context.Context, op, channel, id string, result sql.Result) error {
	n, err := rowsAffected(result)
	if err != nil {
		return store.NewStoreError("task", op, id, err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM queue_tasks WHERE id = $1 AND channel = $2)`,
		id, channel,
	).Scan(&exists)
	if err != nil {
		return store.NewStoreError("task", op, id, MapError(err))
	}
	if !exists {
		return store.NewStoreError("task", op, id, store.ErrTaskNotFound)
	}
	return store.NewStoreError("task", op, id, store.ErrNotInFlight)
}

// ListChannels implements store.QueueStore.
func (s *QueueStore) ListChannels(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT channel FROM queue_tasks
		WHERE status IN ('pending', 'invoked')
		ORDER BY channel
	`
	return s.queryStrings(ctx, "list channels", query)
}

// ScanTimeouts implements store.QueueStore.
func (s *QueueStore) ScanTimeouts(ctx context.Context, channel string) ([]string, error) {
	query := `
		UPDATE queue_tasks
		SET status = 'failed',
			error_kind = $2,
			error_message = 'task timed out after ' || timeout_seconds || ' seconds',
			outcome = blob,
			finished_at = NOW(),
			deadline_at = NULL
		WHERE channel = $1
			AND status = 'invoked'
			AND deadline_at IS NOT NULL
			AND deadline_at < NOW()
		RETURNING id
	`
	return s.queryStrings(ctx, "scan timeouts", query, channel, store.ErrorKindTimeout)
}

func (s *QueueStore) queryStrings(ctx context.Context, op, query string, args ...interface{}) ([]string, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("query failed", "operation", op, "error", err)
		return nil, store.NewStoreError("task", op, "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, store.NewStoreError("task", op, "scan failed", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", op, "row iteration failed", err)
	}
	return values, nil
}

// Await implements store.QueueStore by polling the entry's status.
func (s *QueueStore) Await(ctx context.Context, id string) (*store.Outcome, error) {
	query := `
		SELECT status, error_kind, error_message, outcome, finished_at
		FROM queue_tasks
		WHERE id = $1 AND status IN ('completed', 'failed')
	`

	for {
		var (
			out          store.Outcome
			status       string
			errorKind    sql.NullString
			errorMessage sql.NullString
			finishedAt   sql.NullTime
		)
		err := s.db.QueryRowContext(ctx, query, id).Scan(
			&status,
			&errorKind,
			&errorMessage,
			&out.Blob,
			&finishedAt,
		)
		switch {
		case err == nil:
			out.Status = store.QueueStatus(status)
			out.ErrorKind = errorKind.String
			out.ErrorMessage = errorMessage.String
			out.FinishedAt = finishedAt.Time
			return &out, nil
		case !errors.Is(err, sql.ErrNoRows):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, store.NewStoreError("task", "await", id, MapError(err))
		}

		if err := sleep(ctx, s.pollInterval); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ store.QueueStore = (*QueueStore)(nil)
