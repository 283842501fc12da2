// Package store implements the Executor's two durable, file-backed
// structures: the executionId -> result-event idempotency map and the
// append-only outbox of result events. Both use the same atomic
// temp-file-then-rename write discipline as internal/core/queue, so a crash
// mid-write never corrupts either file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arocore/core/common/spec/envelope"
)

// IdempotencyStore persists executionId -> result event as a single JSON
// object on disk.
type IdempotencyStore struct {
	mu      sync.Mutex
	path    string
	results map[string]envelope.Event
}

// OpenIdempotencyStore loads an existing store file, or starts empty.
func OpenIdempotencyStore(path string) (*IdempotencyStore, error) {
	s := &IdempotencyStore{path: path, results: map[string]envelope.Event{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("executor store: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.results); err != nil {
		return nil, fmt.Errorf("executor store: parse %s: %w", path, err)
	}
	return s, nil
}

// Get returns the stored result for executionId, if any.
func (s *IdempotencyStore) Get(executionID string) (envelope.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.results[executionID]
	return evt, ok
}

// Put records the result for executionId and persists the store atomically.
// Once Put succeeds, repeated executions with the same executionId return
// the same event without invoking the runtime again.
func (s *IdempotencyStore) Put(executionID string, evt envelope.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[executionID] = evt
	return s.persist()
}

// persist writes the current map atomically. Caller must hold s.mu.
func (s *IdempotencyStore) persist() error {
	data, err := json.Marshal(s.results)
	if err != nil {
		return fmt.Errorf("executor store: marshal idempotency map: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("executor store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("executor store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("executor store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("executor store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("executor store: rename temp file: %w", err)
	}
	return nil
}
