package feed

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/users"
)

func TestRender(t *testing.T) {
	doc := &document.Document{ID: "d1", Slug: "budget", Title: "Budget"}
	now := time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC)
	revs := []*document.Revision{
		{ID: "r3", DocumentID: "d1", Excerpt: "final numbers", AuthorID: "alice", CreatedAt: now},
		{ID: "r2", DocumentID: "d1", Excerpt: "second pass", AuthorID: "bob", CreatedAt: now.Add(-time.Hour)},
		{ID: "r1", DocumentID: "d1", Excerpt: "first draft", AuthorID: "alice", CreatedAt: now.Add(-2 * time.Hour)},
	}
	link := func(d *document.Document, ordinal int) string {
		if ordinal == 0 {
			return "https://example.com/documents/2026/08/budget.pdf"
		}
		return fmt.Sprintf("https://example.com/documents/2026/08/budget-revision-%d.pdf", ordinal)
	}

	out, err := Render(doc, revs, link)
	require.NoError(t, err)
	body := string(out)

	assert.True(t, strings.HasPrefix(body, xmlHeader))
	assert.Contains(t, body, "<title>Budget - revisions</title>")
	assert.Contains(t, body, "<title>Budget</title>")
	assert.Contains(t, body, "<title>Budget - revision 2</title>")
	assert.Contains(t, body, "budget-revision-1.pdf")
	assert.Contains(t, body, "<guid isPermaLink=\"false\">r2</guid>")
	assert.Contains(t, body, "final numbers")
	// items keep resolver order, newest first
	assert.Less(t, strings.Index(body, "r3"), strings.Index(body, "r1"))
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "abcDEF123", SanitizeKey("abc-DEF_123!"))
	assert.Equal(t, "", SanitizeKey("../../"))
}

func newAuthFixture(t *testing.T) (*Auth, string) {
	t.Helper()
	svc := users.NewService(users.NewMemoryUserRepository(), 32)
	ctx := context.Background()
	u, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"sub": "alice", "name": "Alice"})
	require.NoError(t, err)
	require.NotNil(t, u)
	key, err := svc.RegenerateFeedKey(ctx, "alice")
	require.NoError(t, err)
	return NewAuth(svc, 32), key
}

func TestAuthenticateWithKey(t *testing.T) {
	auth, key := newAuthFixture(t)

	u, err := auth.Authenticate(context.Background(), nil, key)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Sub)
}

func TestAuthenticateBadKeyKeepsSession(t *testing.T) {
	auth, _ := newAuthFixture(t)
	session := &models.User{Sub: "bob"}

	// wrong length falls back to the session identity
	u, err := auth.Authenticate(context.Background(), session, "short")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Sub)

	// right length but unknown key also falls back
	u, err = auth.Authenticate(context.Background(), session, strings.Repeat("x", 32))
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Sub)

	// anonymous with no key stays anonymous
	u, err = auth.Authenticate(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Nil(t, u)
}
