// Package testutils holds helpers shared by tests across packages.
package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry is a captured log record flattened to a map.
type LogEntry map[string]any

// Message returns the record's message.
func (e LogEntry) Message() string {
	msg, _ := e["message"].(string)
	return msg
}

// TestSlogHandler is a memory-backed slog.Handler for tests.
type TestSlogHandler struct {
	store *entryStore
	attrs []slog.Attr
}

type entryStore struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewTestSlogHandler creates an empty handler.
func NewTestSlogHandler() *TestSlogHandler {
	return &TestSlogHandler{store: &entryStore{}}
}

// NewTestLogger returns a logger capturing every level into the returned handler.
func NewTestLogger() (*slog.Logger, *TestSlogHandler) {
	h := NewTestSlogHandler()
	return slog.New(h), h
}

// Enabled satisfies slog.Handler.
func (h *TestSlogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// Handle satisfies slog.Handler.
func (h *TestSlogHandler) Handle(_ context.Context, r slog.Record) error {
	entry := make(LogEntry, len(h.attrs)+r.NumAttrs()+2)
	entry["level"] = r.Level.String()
	entry["message"] = r.Message
	for _, attr := range h.attrs {
		entry[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry[attr.Key] = attr.Value.Any()
		return true
	})

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.entries = append(h.store.entries, entry)
	return nil
}

// WithAttrs satisfies slog.Handler. The returned handler shares the entries.
func (h *TestSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TestSlogHandler{store: h.store, attrs: merged}
}

// WithGroup satisfies slog.Handler. Groups are flattened.
func (h *TestSlogHandler) WithGroup(_ string) slog.Handler {
	return h
}

// Entries returns a copy of all captured entries.
func (h *TestSlogHandler) Entries() []LogEntry {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	result := make([]LogEntry, len(h.store.entries))
	copy(result, h.store.entries)
	return result
}

// Find returns the first entry with the given message.
func (h *TestSlogHandler) Find(message string) (LogEntry, bool) {
	for _, e := range h.Entries() {
		if e.Message() == message {
			return e, true
		}
	}
	return nil, false
}

// Clear drops the captured entries.
func (h *TestSlogHandler) Clear() {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.entries = nil
}
