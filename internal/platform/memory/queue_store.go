package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/scry-queue/internal/store"
)

// entry is a queue entry and, once terminal, its outcome.
type entry struct {
	env      store.Envelope
	status   store.QueueStatus
	seq      uint64
	deadline time.Time
	outcome  *store.Outcome
}

// Option configures a QueueStore.
type Option func(*QueueStore)

// WithClock replaces time.Now as the store's clock.
func WithClock(now func() time.Time) Option {
	return func(s *QueueStore) {
		s.now = now
	}
}

// QueueStore implements store.QueueStore in process memory.
// Terminal outcomes are kept for the life of the store.
type QueueStore struct {
	mu  sync.Mutex
	now func() time.Time
	seq uint64

	// pending holds the FIFO of claimable IDs per channel
	pending map[string][]string
	// inFlight holds the claimed IDs per channel
	inFlight map[string]map[string]struct{}
	entries  map[string]*entry

	// changed is closed and replaced on every mutation so blocked
	// Dequeue and Await calls re-check their condition.
	changed chan struct{}
}

// NewQueueStore creates an empty in-memory queue store.
func NewQueueStore(opts ...Option) *QueueStore {
	s := &QueueStore{
		now:      time.Now,
		pending:  make(map[string][]string),
		inFlight: make(map[string]map[string]struct{}),
		entries:  make(map[string]*entry),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue implements store.QueueStore.
func (s *QueueStore) Enqueue(ctx context.Context, env store.Envelope) error {
	if env.ID == "" || env.Channel == "" {
		return store.NewStoreError("task", "enqueue", "id and channel are required", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[env.ID]; exists {
		return store.NewStoreError("task", "enqueue", env.ID, store.ErrDuplicate)
	}

	s.seq++
	env.Blob = append([]byte(nil), env.Blob...)
	s.entries[env.ID] = &entry{env: env, status: store.QueueStatusPending, seq: s.seq}
	s.pending[env.Channel] = append(s.pending[env.Channel], env.ID)
	s.notifyLocked()
	return nil
}

// Dequeue implements store.QueueStore.
func (s *QueueStore) Dequeue(ctx context.Context, channels []string, wait time.Duration) (*store.Envelope, error) {
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.Lock()
		env := s.claimLocked(channels)
		changed := s.changed
		s.mu.Unlock()

		if env != nil {
			return env, nil
		}
		if timeout == nil {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, nil
		case <-changed:
		}
	}
}

// claimLocked moves the oldest pending entry of channels to in flight.
func (s *QueueStore) claimLocked(channels []string) *store.Envelope {
	if len(channels) == 0 {
		channels = make([]string, 0, len(s.pending))
		for channel := range s.pending {
			channels = append(channels, channel)
		}
	}

	var oldest *entry
	for _, channel := range channels {
		ids := s.pending[channel]
		if len(ids) == 0 {
			continue
		}
		if e := s.entries[ids[0]]; oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	if oldest == nil {
		return nil
	}

	channel := oldest.env.Channel
	s.pending[channel] = s.pending[channel][1:]
	if len(s.pending[channel]) == 0 {
		delete(s.pending, channel)
	}
	if s.inFlight[channel] == nil {
		s.inFlight[channel] = make(map[string]struct{})
	}
	s.inFlight[channel][oldest.env.ID] = struct{}{}

	now := s.now()
	oldest.status = store.QueueStatusInvoked
	oldest.env.ClaimedAt = now
	oldest.deadline = time.Time{}
	if oldest.env.TimeoutSeconds > 0 {
		oldest.deadline = now.Add(time.Duration(oldest.env.TimeoutSeconds) * time.Second)
	}
	s.notifyLocked()

	env := oldest.env
	return &env
}

// Ack implements store.QueueStore.
func (s *QueueStore) Ack(ctx context.Context, channel, id string, out store.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.inFlightLocked("ack", channel, id)
	if err != nil {
		return err
	}

	if out.FinishedAt.IsZero() {
		out.FinishedAt = s.now()
	}
	out.Blob = append([]byte(nil), out.Blob...)
	s.finishLocked(e, out)
	return nil
}

// Release implements store.QueueStore.
func (s *QueueStore) Release(ctx context.Context, channel, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.inFlightLocked("release", channel, id)
	if err != nil {
		return err
	}

	s.dropInFlightLocked(e)
	e.status = store.QueueStatusPending
	e.env.ClaimedAt = time.Time{}
	e.deadline = time.Time{}
	// Released entries go back to the head of their channel
	s.pending[channel] = append([]string{id}, s.pending[channel]...)
	s.notifyLocked()
	return nil
}

// ListChannels implements store.QueueStore.
func (s *QueueStore) ListChannels(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.pending)+len(s.inFlight))
	for channel := range s.pending {
		seen[channel] = struct{}{}
	}
	for channel := range s.inFlight {
		seen[channel] = struct{}{}
	}

	channels := make([]string, 0, len(seen))
	for channel := range seen {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels, nil
}

// ScanTimeouts implements store.QueueStore.
func (s *QueueStore) ScanTimeouts(ctx context.Context, channel string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []*entry
	for id := range s.inFlight[channel] {
		e := s.entries[id]
		if e.deadline.IsZero() || !now.After(e.deadline) {
			continue
		}
		expired = append(expired, e)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].seq < expired[j].seq })

	ids := make([]string, 0, len(expired))
	for _, e := range expired {
		s.finishLocked(e, store.Outcome{
			Status:       store.QueueStatusFailed,
			ErrorKind:    store.ErrorKindTimeout,
			ErrorMessage: fmt.Sprintf("task timed out after %d seconds", e.env.TimeoutSeconds),
			Blob:         e.env.Blob,
			FinishedAt:   now,
		})
		ids = append(ids, e.env.ID)
	}
	return ids, nil
}

// Await implements store.QueueStore.
func (s *QueueStore) Await(ctx context.Context, id string) (*store.Outcome, error) {
	for {
		s.mu.Lock()
		var out *store.Outcome
		if e, ok := s.entries[id]; ok && e.outcome != nil {
			copied := *e.outcome
			out = &copied
		}
		changed := s.changed
		s.mu.Unlock()

		if out != nil {
			return out, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Status returns the store's view of an entry, for tests and diagnostics.
func (s *QueueStore) Status(id string) (store.QueueStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return "", false
	}
	return e.status, true
}

func (s *QueueStore) inFlightLocked(op, channel, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok || e.env.Channel != channel {
		return nil, store.NewStoreError("task", op, id, store.ErrTaskNotFound)
	}
	if e.status != store.QueueStatusInvoked {
		return nil, store.NewStoreError("task", op, id, store.ErrNotInFlight)
	}
	return e, nil
}

func (s *QueueStore) finishLocked(e *entry, out store.Outcome) {
	s.dropInFlightLocked(e)
	e.status = out.Status
	e.outcome = &out
	s.notifyLocked()
}

func (s *QueueStore) dropInFlightLocked(e *entry) {
	channel := e.env.Channel
	delete(s.inFlight[channel], e.env.ID)
	if len(s.inFlight[channel]) == 0 {
		delete(s.inFlight, channel)
	}
}

func (s *QueueStore) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

var _ store.QueueStore = (*QueueStore)(nil)
