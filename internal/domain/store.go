package domain

import (
	"context"
	"time"
)

// JournalKind classifies a journal entry.
type JournalKind string

const (
	JournalDecision JournalKind = "decision" // guard accept/reject
	JournalOrder    JournalKind = "order"    // executor outcome
	JournalTrail    JournalKind = "trail"    // trailing stop action
)

// JournalEntry is one row of the trade journal. Detail carries the
// kind-specific payload as JSON.
type JournalEntry struct {
	ID         string
	Kind       JournalKind
	Instrument string
	Side       Side
	Accepted   bool
	Outcome    string
	Reasons    []string
	Detail     map[string]any
	At         time.Time
}

// JournalStore persists journal entries. Implementations must tolerate
// high write rates; callers treat write failures as non-fatal.
type JournalStore interface {
	Append(ctx context.Context, e JournalEntry) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]JournalEntry, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]JournalEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CooldownStore mirrors in-memory cooldown timestamps to durable storage.
// It is a soft optimization: every method may fail without affecting
// trading decisions.
type CooldownStore interface {
	Set(ctx context.Context, symbol string, at time.Time) error
	All(ctx context.Context) (map[string]time.Time, error)
}

// BlobWriter stores an object under a key in blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}
