package lock

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/models"
)

func newTestStore(t *testing.T) (*RedisStore, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewRedisStore(client, "test:lock:"), m
}

func TestRedisStore_AcquireGetRelease(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	got, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.Nil(t, got)

	l := &Lock{DocumentID: "doc-1", HolderSub: "sub-1", HolderName: "Alice", AcquiredAt: time.Now().UTC()}
	require.NoError(t, store.Acquire(ctx, l, 5*time.Second))

	got, err = store.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sub-1", got.HolderSub)

	require.NoError(t, store.Release(ctx, "doc-1"))
	got, err = store.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, m := newTestStore(t)
	ctx := context.Background()

	l := &Lock{DocumentID: "doc-2", HolderSub: "sub-2"}
	require.NoError(t, store.Acquire(ctx, l, time.Second))

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	got, err := store.Get(ctx, "doc-2")
	require.NoError(t, err)
	require.Nil(t, got)
}

type recordingNotifier struct {
	prev    *Lock
	takenBy string
}

func (r *recordingNotifier) NotifyOverride(ctx context.Context, prev *Lock, takenBy *models.User, doc *document.Document) error {
	r.prev = prev
	r.takenBy = takenBy.Sub
	return nil
}

func lockTestUsers() (editor, author *models.User) {
	editor = &models.User{Sub: "editor-1", Name: "Edith", Roles: []string{"editor"}}
	author = &models.User{Sub: "author-1", Name: "Alan", Roles: []string{"author"}}
	return
}

func TestOverride(t *testing.T) {
	store, _ := newTestStore(t)
	notifier := &recordingNotifier{}
	svc := NewService(store, access.New(true), notifier, time.Minute)
	ctx := context.Background()

	editor, author := lockTestUsers()
	doc := &document.Document{ID: "doc-3", OwnerID: author.Sub, Status: document.StatusPrivate, Title: "Q3 Plan"}

	// author takes the lock first
	held, err := svc.Acquire(ctx, author, doc)
	require.NoError(t, err)
	assert.Equal(t, author.Sub, held.HolderSub)

	// a second acquire by someone else reports the existing holder
	held, err = svc.Acquire(ctx, editor, doc)
	require.NoError(t, err)
	assert.Equal(t, author.Sub, held.HolderSub)

	// the editor can override and becomes the holder
	taken, err := svc.Override(ctx, editor, doc)
	require.NoError(t, err)
	assert.Equal(t, editor.Sub, taken.HolderSub)
	require.NotNil(t, notifier.prev)
	assert.Equal(t, author.Sub, notifier.prev.HolderSub)
	assert.Equal(t, editor.Sub, notifier.takenBy)

	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, editor.Sub, got.HolderSub)
}

func TestOverrideUnlockedDocument(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(store, access.New(true), nil, time.Minute)

	editor, _ := lockTestUsers()
	doc := &document.Document{ID: "doc-4", OwnerID: "someone", Status: document.StatusPrivate}

	_, err := svc.Override(context.Background(), editor, doc)
	assert.ErrorIs(t, err, ErrNoLock)
}

func TestOverrideRequiresCapability(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(store, access.New(true), nil, time.Minute)
	ctx := context.Background()

	editor, author := lockTestUsers()
	doc := &document.Document{ID: "doc-5", OwnerID: "someone-else", Status: document.StatusPrivate}

	_, err := svc.Acquire(ctx, editor, doc)
	require.NoError(t, err)

	// authors lack override_document_lock
	_, err = svc.Override(ctx, author, doc)
	assert.ErrorIs(t, err, ErrForbidden)

	// anonymous callers can never override
	_, err = svc.Override(ctx, nil, doc)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestReleaseOnlyByHolder(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(store, access.New(true), nil, time.Minute)
	ctx := context.Background()

	editor, author := lockTestUsers()
	doc := &document.Document{ID: "doc-6", OwnerID: author.Sub, Status: document.StatusPrivate}

	_, err := svc.Acquire(ctx, author, doc)
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, editor, doc.ID))
	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "lock must survive a release by a non-holder")

	require.NoError(t, svc.Release(ctx, author, doc.ID))
	got, err = store.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}
