// Package queue implements the durable, file-backed FIFO command queue that
// sits between workflow advancement and command dispatch, plus the worker
// that drains it.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arocore/core/common/spec/envelope"
)

// Entry is one queued command awaiting dispatch.
type Entry struct {
	ID           string                  `json:"id"`
	ExecutionID  string                  `json:"executionId"`
	Command      envelope.Command        `json:"command"`
	Headers      envelope.CommandHeaders `json:"headers"`
	Attempts     int                     `json:"attempts"`
	MaxAttempts  int                     `json:"maxAttempts"`
	ScheduledFor time.Time               `json:"scheduledFor"`
	CreatedAt    time.Time               `json:"createdAt"`
}

// orderingKey groups entries that must be processed in strict arrival order:
// all commands for the same tenant+aggregate.
func (e Entry) orderingKey() string {
	aggregateID, _ := e.Command.Payload["aggregateId"].(string)
	return e.Headers.TenantID + "|" + aggregateID
}

// FileQueue is a FIFO queue persisted to a single JSON file via atomic
// temp-file-then-rename writes, so a crash mid-write never corrupts the
// on-disk state.
type FileQueue struct {
	mu      sync.Mutex
	path    string
	entries []*Entry
}

// Open loads an existing queue file, or starts empty if it does not exist.
func Open(path string) (*FileQueue, error) {
	q := &FileQueue{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return q, nil
	}
	if err := json.Unmarshal(data, &q.entries); err != nil {
		return nil, fmt.Errorf("queue: failed to parse %s: %w", path, err)
	}
	return q, nil
}

// persist writes the current entries atomically: write to a temp file in the
// same directory, fsync it, then rename over the target, which is atomic on POSIX
// filesystems. Caller must hold q.mu.
func (q *FileQueue) persist() error {
	data, err := json.Marshal(q.entries)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal entries: %w", err)
	}

	dir := filepath.Dir(q.path)
	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("queue: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("queue: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("queue: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("queue: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, q.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("queue: failed to rename temp file: %w", err)
	}
	return nil
}

// Enqueue appends a new entry with a fresh ID and persists the queue.
func (q *FileQueue) Enqueue(cmd envelope.Command, headers envelope.CommandHeaders, maxAttempts int) (*Entry, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &Entry{
		ID:           uuid.NewString(),
		ExecutionID:  uuid.NewString(),
		Command:      cmd,
		Headers:      headers,
		MaxAttempts:  maxAttempts,
		ScheduledFor: time.Now(),
		CreatedAt:    time.Now(),
	}
	q.entries = append(q.entries, e)
	if err := q.persist(); err != nil {
		return nil, err
	}
	return e, nil
}

// Ready returns the oldest ready entry per distinct ordering key (tenant +
// aggregate), preserving per-key FIFO order while allowing unrelated keys to
// proceed concurrently. An entry is ready when its ScheduledFor has elapsed.
func (q *FileQueue) Ready(now time.Time) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	seenKey := make(map[string]bool)
	var ready []*Entry
	for _, e := range q.entries {
		if now.Before(e.ScheduledFor) {
			continue
		}
		key := e.orderingKey()
		if seenKey[key] {
			continue
		}
		seenKey[key] = true
		ready = append(ready, e)
	}
	return ready
}

// Ack removes an entry after successful dispatch.
func (q *FileQueue) Ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return q.persist()
		}
	}
	return nil
}

// Reschedule bumps an entry's attempt counter and defers it to scheduledFor,
// used after a transient dispatch failure.
func (q *FileQueue) Reschedule(id string, scheduledFor time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.ID == id {
			e.Attempts++
			e.ScheduledFor = scheduledFor
			return q.persist()
		}
	}
	return nil
}

// Defer pushes an entry's ScheduledFor into the future without touching its
// attempt counter, used to space out reminder commands (e.g. a 48h- and a
// 24h-ahead appointment reminder) rather than to retry a failed dispatch.
func (q *FileQueue) Defer(id string, scheduledFor time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.ID == id {
			e.ScheduledFor = scheduledFor
			return q.persist()
		}
	}
	return nil
}

// Remove deletes an entry without requiring it to have succeeded, used once
// an entry has been moved to the dead-letter store.
func (q *FileQueue) Remove(id string) error {
	return q.Ack(id)
}

// Len returns the number of entries currently held (ready or scheduled).
func (q *FileQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
