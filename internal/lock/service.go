package lock

import (
	"context"
	"time"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/pkg/logger"
	"github.com/docvault/docvault/pkg/metrics"
)

// Notifier tells a previous lock holder their lock was taken over.
type Notifier interface {
	NotifyOverride(ctx context.Context, prev *Lock, takenBy *models.User, doc *document.Document) error
}

// Service implements lock acquisition and the administrative override.
type Service struct {
	store    Store
	auth     access.Authorizer
	notifier Notifier
	ttl      time.Duration
}

func NewService(store Store, auth access.Authorizer, notifier Notifier, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Service{store: store, auth: auth, notifier: notifier, ttl: ttl}
}

// Get returns the active lock, nil if the document is unlocked.
func (s *Service) Get(ctx context.Context, documentID string) (*Lock, error) {
	return s.store.Get(ctx, documentID)
}

// Acquire takes the lock for u if it is free or already theirs. It returns
// the holding lock either way; the caller checks HolderSub to see who won.
func (s *Service) Acquire(ctx context.Context, u *models.User, doc *document.Document) (*Lock, error) {
	cur, err := s.store.Get(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if cur != nil && cur.HolderSub != u.Sub {
		return cur, nil
	}
	l := &Lock{
		DocumentID: doc.ID,
		HolderSub:  u.Sub,
		HolderName: u.Display(),
		AcquiredAt: time.Now().UTC(),
	}
	if err := s.store.Acquire(ctx, l, s.ttl); err != nil {
		return nil, err
	}
	return l, nil
}

// Refresh extends u's hold. Holding status is not re-checked; the TTL keeps
// stale holders from refreshing forever.
func (s *Service) Refresh(ctx context.Context, documentID string) error {
	return s.store.Refresh(ctx, documentID, s.ttl)
}

// Release drops the lock if u holds it.
func (s *Service) Release(ctx context.Context, u *models.User, documentID string) error {
	cur, err := s.store.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if cur == nil || cur.HolderSub != u.Sub {
		return nil
	}
	return s.store.Release(ctx, documentID)
}

// Override forcibly takes another user's lock. The caller needs edit rights
// on the document plus the override capability. The displaced holder gets a
// notice when a notifier is configured; notice failures don't undo the
// override.
func (s *Service) Override(ctx context.Context, u *models.User, doc *document.Document) (*Lock, error) {
	if u == nil || !s.auth.Can(u, "edit_document", doc) || !s.auth.Can(u, access.CapOverrideLock, doc) {
		return nil, ErrForbidden
	}
	prev, err := s.store.Get(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, ErrNoLock
	}
	l := &Lock{
		DocumentID: doc.ID,
		HolderSub:  u.Sub,
		HolderName: u.Display(),
		AcquiredAt: time.Now().UTC(),
	}
	if err := s.store.Acquire(ctx, l, s.ttl); err != nil {
		return nil, err
	}
	metrics.LockOverrides.Inc()
	if s.notifier != nil && prev.HolderSub != u.Sub {
		if err := s.notifier.NotifyOverride(ctx, prev, u, doc); err != nil {
			logger.Warnf("lock override notice for %s: %v", doc.ID, err)
		}
	}
	return l, nil
}
