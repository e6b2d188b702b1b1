package users

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertFromClaims(t *testing.T) {
	svc := NewService(NewMemoryUserRepository(), 32)
	ctx := context.Background()

	u, err := svc.UpsertFromClaims(ctx, map[string]interface{}{
		"sub":   "sub-123",
		"email": "x@example.com",
		"name":  "X User",
		"roles": []interface{}{"editor"},
	})
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "sub-123", u.Sub)
	require.Equal(t, "x@example.com", u.Email)
	require.True(t, u.HasRole("editor"))
	require.False(t, u.CreatedAt.IsZero())

	// missing sub returns nil without error
	u2, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"email": "y@e.com"})
	require.NoError(t, err)
	require.Nil(t, u2)
}

func TestFeedKeyLifecycle(t *testing.T) {
	svc := NewService(NewMemoryUserRepository(), 32)
	ctx := context.Background()

	_, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"sub": "sub-1", "name": "A"})
	require.NoError(t, err)

	key, err := svc.RegenerateFeedKey(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, key, 32)
	require.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{32}$`), key)

	u, err := svc.GetByFeedKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "sub-1", u.Sub)

	// regeneration invalidates the old key
	key2, err := svc.RegenerateFeedKey(ctx, "sub-1")
	require.NoError(t, err)
	require.NotEqual(t, key, key2)
	old, err := svc.GetByFeedKey(ctx, key)
	require.NoError(t, err)
	require.Nil(t, old)
}
