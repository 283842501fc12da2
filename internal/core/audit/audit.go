// Package audit implements the append-only, hash-chained audit log required
// by every guardrail, manual override, and admin action in the Core Engine.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/arocore/core/internal/core/store"
)

// Log writes audit entries with a hash chaining each entry to its
// predecessor: hash(entry) = sha256(entry_without_hash || previous_hash).
type Log struct {
	store *store.Store
}

// New returns a Log backed by the given store.
func New(s *store.Store) *Log {
	return &Log{store: s}
}

// Record describes one action to be appended to the chain.
type Record struct {
	TraceID      string
	Actor        string
	Action       string
	Target       string
	Payload      interface{}
	Result       string
	ErrorMessage string
}

// Write computes the next entry's hash from the chain's current tail and
// appends it.
func (l *Log) Write(ctx context.Context, r Record) (int64, error) {
	prevHash, err := l.store.LastAuditHash(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: failed to read chain tail: %w", err)
	}

	var payloadJSON sql.NullString
	if r.Payload != nil {
		b, err := json.Marshal(r.Payload)
		if err != nil {
			return 0, fmt.Errorf("audit: failed to marshal payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}

	var target sql.NullString
	if r.Target != "" {
		target = sql.NullString{String: r.Target, Valid: true}
	}
	var errMsg sql.NullString
	if r.ErrorMessage != "" {
		errMsg = sql.NullString{String: r.ErrorMessage, Valid: true}
	}

	entry := &store.AuditEntry{
		TraceID:      r.TraceID,
		Actor:        r.Actor,
		Action:       r.Action,
		Target:       target,
		PayloadJSON:  payloadJSON,
		Result:       r.Result,
		ErrorMessage: errMsg,
		PrevHash:     prevHash,
	}
	entry.Hash = computeHash(entry, prevHash)

	return l.store.AppendAuditEntry(ctx, entry)
}

// computeHash hashes the entry's content fields (never its own Hash field)
// concatenated with the previous entry's hash.
func computeHash(e *store.AuditEntry, prevHash string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|",
		e.TraceID, e.Actor, e.Action, e.Target.String, e.PayloadJSON.String, e.Result, e.ErrorMessage.String)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Recent returns up to limit entries from the start of the chain (the
// genesis entry onward), oldest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]*store.AuditEntry, error) {
	return l.store.ListAuditLog(ctx, limit)
}

// ByTrace returns all entries sharing a trace/correlation ID, ascending.
func (l *Log) ByTrace(ctx context.Context, traceID string) ([]*store.AuditEntry, error) {
	return l.store.ListAuditLogByTrace(ctx, traceID)
}

// VerifyChain recomputes the hash of every entry in order and reports the ID
// of the first entry whose stored hash does not match, or ok=true if the
// whole chain is intact.
func VerifyChain(entries []*store.AuditEntry) (ok bool, brokenAt int64) {
	prevHash := ""
	for _, e := range entries {
		if e.PrevHash != prevHash {
			return false, e.ID
		}
		want := computeHash(e, prevHash)
		if want != e.Hash {
			return false, e.ID
		}
		prevHash = e.Hash
	}
	return true, 0
}
