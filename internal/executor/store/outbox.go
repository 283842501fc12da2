package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arocore/core/common/spec/envelope"
)

// Outbox is the append-only, ordered list of canonical result events the
// Executor writes before ever returning a response, so a crash between
// invoking the runtime and answering the caller never loses the record of
// what actually happened.
type Outbox struct {
	mu      sync.Mutex
	path    string
	entries []envelope.Event
}

// OpenOutbox loads an existing outbox file, or starts empty.
func OpenOutbox(path string) (*Outbox, error) {
	o := &Outbox{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return o, nil
	}
	if err != nil {
		return nil, fmt.Errorf("executor store: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return o, nil
	}
	if err := json.Unmarshal(data, &o.entries); err != nil {
		return nil, fmt.Errorf("executor store: parse %s: %w", path, err)
	}
	return o, nil
}

// Append adds evt to the outbox and flushes the whole file atomically.
func (o *Outbox) Append(evt envelope.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.entries = append(o.entries, evt)
	return o.persist()
}

// Entries returns a copy of every event currently in the outbox.
func (o *Outbox) Entries() []envelope.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]envelope.Event, len(o.entries))
	copy(out, o.entries)
	return out
}

// persist writes the current entries atomically. Caller must hold o.mu.
func (o *Outbox) persist() error {
	data, err := json.Marshal(o.entries)
	if err != nil {
		return fmt.Errorf("executor store: marshal outbox: %w", err)
	}

	dir := filepath.Dir(o.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(o.path)+".tmp-*")
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
	if err := os.Rename(tmpPath, o.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("executor store: rename temp file: %w", err)
	}
	return nil
}
