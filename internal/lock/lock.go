package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoLock means an override was requested on a document nobody holds.
	ErrNoLock = errors.New("document is not locked")
	// ErrForbidden means the caller lacks the capabilities to override.
	ErrForbidden = errors.New("not allowed to override document lock")
)

// Lock marks a document as being edited by one user. Locks expire on their
// own when the holder stops heartbeating.
type Lock struct {
	DocumentID string    `json:"documentId"`
	HolderSub  string    `json:"holderSub"`
	HolderName string    `json:"holderName"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Store persists edit locks with a TTL.
type Store interface {
	// Get returns the current lock, or nil when the document is unlocked.
	Get(ctx context.Context, documentID string) (*Lock, error)
	// Acquire unconditionally writes l with the given TTL.
	Acquire(ctx context.Context, l *Lock, ttl time.Duration) error
	// Refresh extends the TTL of an existing lock; missing locks are a
	// no-op.
	Refresh(ctx context.Context, documentID string, ttl time.Duration) error
	// Release drops the lock.
	Release(ctx context.Context, documentID string) error
}
