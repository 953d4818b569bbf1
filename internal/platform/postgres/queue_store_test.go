package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-queue/internal/store"
	"github.com/phrazzld/scry-queue/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passthroughConverter lets slices such as []string reach the mock driver.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v interface{}) (driver.Value, error) {
	return v, nil
}

func newMockStore(t *testing.T) (*QueueStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewQueueStore(db, time.Millisecond), mock
}

func TestQueueStore_Enqueue(t *testing.T) {
	ctx := context.Background()
	env := store.Envelope{
		ID:             "a",
		Channel:        "default",
		TimeoutSeconds: 30,
		Blob:           []byte(`{}`),
		EnqueuedAt:     time.Now().UTC(),
	}

	t.Run("inserts the envelope", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO queue_tasks").
			WithArgs("a", "default", 30, []byte(`{}`), env.EnqueuedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Enqueue(ctx, env))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate id", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO queue_tasks").
			WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

		err := s.Enqueue(ctx, env)
		assert.ErrorIs(t, err, store.ErrDuplicate)
		assert.Contains(t, err.Error(), "task id a is already queued")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing channel", func(t *testing.T) {
		s, _ := newMockStore(t)
		invalid := env
		invalid.Channel = ""
		assert.ErrorIs(t, s.Enqueue(ctx, invalid), store.ErrInvalidEntity)
	})
}

func TestQueueStore_Dequeue(t *testing.T) {
	ctx := context.Background()
	enqueuedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	claimedAt := enqueuedAt.Add(time.Minute)

	t.Run("claims a row", func(t *testing.T) {
		s, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"id", "channel", "timeout_seconds", "blob", "enqueued_at", "claimed_at"}).
			AddRow("a", "mail", int64(5), []byte(`{"x":1}`), enqueuedAt, claimedAt)
		mock.ExpectQuery("UPDATE queue_tasks\\s+SET status = 'invoked'").
			WithArgs(false, []string{"mail"}).
			WillReturnRows(rows)

		env, err := s.Dequeue(ctx, []string{"mail"}, 0)
		require.NoError(t, err)
		require.NotNil(t, env)
		assert.Equal(t, "a", env.ID)
		assert.Equal(t, "mail", env.Channel)
		assert.Equal(t, 5, env.TimeoutSeconds)
		assert.Equal(t, claimedAt, env.ClaimedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("all channels when none given", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE queue_tasks").
			WithArgs(true, []string{}).
			WillReturnError(sql.ErrNoRows)

		env, err := s.Dequeue(ctx, nil, 0)
		require.NoError(t, err)
		assert.Nil(t, env)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries until a row appears", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE queue_tasks").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("UPDATE queue_tasks").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("UPDATE queue_tasks").WillReturnRows(
			sqlmock.NewRows([]string{"id", "channel", "timeout_seconds", "blob", "enqueued_at", "claimed_at"}).
				AddRow("b", "default", int64(0), []byte(`{}`), enqueuedAt, claimedAt))

		env, err := s.Dequeue(ctx, nil, 5*time.Second)
		require.NoError(t, err)
		require.NotNil(t, env)
		assert.Equal(t, "b", env.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE queue_tasks").WillReturnError(sql.ErrConnDone)

		_, err := s.Dequeue(ctx, nil, 0)
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestQueueStore_Ack(t *testing.T) {
	ctx := context.Background()
	finished := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := store.Outcome{
		Status:       store.QueueStatusFailed,
		ErrorKind:    "validation",
		ErrorMessage: "bad input",
		Blob:         []byte(`{}`),
		FinishedAt:   finished,
	}

	t.Run("records the outcome", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE queue_tasks\\s+SET status = \\$3").
			WithArgs("a", "default", "failed", "validation", "bad input", []byte(`{}`), finished).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Ack(ctx, "default", "a", out))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not in flight", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE queue_tasks").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("a", "default").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := s.Ack(ctx, "default", "a", out)
		assert.ErrorIs(t, err, store.ErrNotInFlight)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown task", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE queue_tasks").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := s.Ack(ctx, "default", "a", out)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.True(t, store.IsNotFoundError(err))
	})
}

func TestQueueStore_Release(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE queue_tasks\\s+SET status = 'pending'").
		WithArgs("a", "default").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Release(ctx, "default", "a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_ListChannels(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT DISTINCT channel").
		WillReturnRows(sqlmock.NewRows([]string{"channel"}).AddRow("default").AddRow("mail"))

	channels, err := s.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "mail"}, channels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_ScanTimeouts(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE queue_tasks\\s+SET status = 'failed'").
		WithArgs("default", store.ErrorKindTimeout).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := s.ScanTimeouts(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_Await(t *testing.T) {
	finished := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	columns := []string{"status", "error_kind", "error_message", "outcome", "finished_at"}

	t.Run("polls until terminal", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT status").WithArgs("a").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT status").WithArgs("a").WillReturnRows(
			sqlmock.NewRows(columns).AddRow("failed", "timeout", "task timed out after 1 seconds", []byte(`{}`), finished))

		out, err := s.Await(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, store.QueueStatusFailed, out.Status)
		assert.Equal(t, store.ErrorKindTimeout, out.ErrorKind)
		assert.Equal(t, "task timed out after 1 seconds", out.ErrorMessage)
		assert.Equal(t, finished, out.FinishedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("completed outcome without error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT status").WillReturnRows(
			sqlmock.NewRows(columns).AddRow("completed", nil, nil, []byte(`{"ok":true}`), finished))

		out, err := s.Await(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, store.QueueStatusCompleted, out.Status)
		assert.Empty(t, out.ErrorKind)
		assert.JSONEq(t, `{"ok":true}`, string(out.Blob))
	})

	t.Run("context deadline", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.MatchExpectationsInOrder(false)
		for i := 0; i < 1000; i++ {
			mock.ExpectQuery("SELECT status").WillReturnError(sql.ErrNoRows)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := s.Await(ctx, "a")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueStore_Integration(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db, "up", testLogger()))
	testdb.ResetQueue(t, db)

	s := NewQueueStore(db, 10*time.Millisecond)

	require.NoError(t, s.Enqueue(ctx, store.Envelope{ID: "first", Channel: "it", TimeoutSeconds: 1, Blob: []byte(`{}`)}))
	require.NoError(t, s.Enqueue(ctx, store.Envelope{ID: "second", Channel: "it", Blob: []byte(`{}`)}))
	assert.ErrorIs(t, s.Enqueue(ctx, store.Envelope{ID: "first", Channel: "it", Blob: []byte(`{}`)}), store.ErrDuplicate)

	channels, err := s.ListChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"it"}, channels)

	first, err := s.Dequeue(ctx, []string{"it"}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "first", first.ID)

	second, err := s.Dequeue(ctx, nil, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "second", second.ID)

	none, err := s.Dequeue(ctx, nil, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.Release(ctx, "it", "second"))
	again, err := s.Dequeue(ctx, nil, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "second", again.ID)

	require.NoError(t, s.Ack(ctx, "it", "second", store.Outcome{Status: store.QueueStatusCompleted, Blob: []byte(`{"done":true}`)}))
	assert.ErrorIs(t, s.Ack(ctx, "it", "second", store.Outcome{Status: store.QueueStatusCompleted}), store.ErrNotInFlight)

	out, err := s.Await(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, store.QueueStatusCompleted, out.Status)

	time.Sleep(1100 * time.Millisecond)
	ids, err := s.ScanTimeouts(ctx, "it")
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, ids)

	out, err = s.Await(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, store.QueueStatusFailed, out.Status)
	assert.Equal(t, "task timed out after 1 seconds", out.ErrorMessage)

	channels, err = s.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)
}
