package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/delivery"
	"github.com/docvault/docvault/internal/document/repository"
	"github.com/docvault/docvault/internal/document/service"
	"github.com/docvault/docvault/internal/feed"
	"github.com/docvault/docvault/internal/lock"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/revision"
	"github.com/docvault/docvault/internal/routing"
	"github.com/docvault/docvault/internal/storage"
	"github.com/docvault/docvault/internal/tokens"
	"github.com/docvault/docvault/internal/users"
)

type testEnv struct {
	router *gin.Engine
	cfg    *config.Config
	users  *users.Service
	docs   *service.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.JWT.Secret = "handler-test-secret"
	cfg.JWT.AccessTokenTTL = time.Hour
	cfg.Server.BaseURL = "http://localhost:5002"
	cfg.Storage.Slug = "documents"
	cfg.Storage.BaseDir = store.Base()
	cfg.Storage.UploadDir = store.Base()
	cfg.Storage.Permalink = true
	cfg.Feed.Enabled = true

	repo := repository.NewMemoryRepo()
	cacheStore := revision.NewMemoryStore()
	index := revision.NewIndex(repo, cacheStore)
	resolver := revision.NewResolver(repo, cacheStore, index)
	docs := service.NewService(repo, store, index)
	auth := access.New(true)

	usersSvc := users.NewService(users.NewMemoryUserRepository(), 32)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locks := lock.NewService(lock.NewRedisStore(client, ""), auth, nil, time.Minute)

	ver := tokens.NewHMACVerifier(cfg.JWT.Secret)
	permalink := routing.NewPermalinker(cfg.Server.BaseURL, cfg.Storage.Slug, true)
	rules := routing.NewRules(cfg.Storage.Slug)
	engine := delivery.NewEngine(store, resolver, auth, delivery.Config{
		UploadDir:         cfg.Storage.UploadDir,
		BaseDir:           cfg.Storage.BaseDir,
		DispositionInline: true,
	}, delivery.Hooks{})
	feedAuth := feed.NewAuth(usersSvc, 32)

	router := gin.New()
	api := router.Group("/api/v1")
	NewDocumentHandler(cfg, docs, resolver, index, auth, locks, usersSvc, permalink).Register(api, ver)
	NewServeHandler(cfg, docs, resolver, engine, rules, permalink, auth, feedAuth, usersSvc).Register(router, ver)

	return &testEnv{router: router, cfg: cfg, users: usersSvc, docs: docs}
}

func (e *testEnv) token(t *testing.T, sub, name string, roles ...string) string {
	t.Helper()
	tok, err := tokens.GenerateAccessToken(e.cfg, &models.User{
		Sub:   sub,
		Name:  name,
		Email: sub + "@example.org",
		Roles: roles,
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Buffer
	if body == nil {
		rdr = &bytes.Buffer{}
	} else {
		rdr = body
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, method, path, token, bytes.NewBuffer(b), "application/json")
}

func (e *testEnv) createDocument(t *testing.T, token string, payload map[string]interface{}) map[string]interface{} {
	t.Helper()
	w := e.doJSON(t, http.MethodPost, "/api/v1/documents", token, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	return doc
}

func (e *testEnv) upload(t *testing.T, token, docID, filename, content, excerpt string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if excerpt != "" {
		require.NoError(t, mw.WriteField("excerpt", excerpt))
	}
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/v1/documents/"+docID+"/file", token, &buf, mw.FormDataContentType())
}

// TestRevisionLifecycle walks the full flow: create a private document,
// upload two versions, read back each by ordinal, and verify a non-owner
// without private read access is turned away.
func TestRevisionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")
	reader := env.token(t, "user-b", "User B", "subscriber")

	doc := env.createDocument(t, owner, map[string]interface{}{
		"title":  "Annual Report",
		"status": "private",
	})
	docID := doc["id"].(string)
	assert.Equal(t, "annual-report", doc["slug"])

	w := env.upload(t, owner, docID, "report.txt", "version one", "first draft")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = env.upload(t, owner, docID, "report.txt", "version two", "second draft")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// latest content through the query fallback
	w = env.do(t, http.MethodGet, "/?p="+docID, owner, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "version two", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="annual-report.txt"`)

	// revision 1 is the oldest upload
	w = env.do(t, http.MethodGet, "/?p="+docID+"&revision=1", owner, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "version one", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="annual-report-revision-1.txt"`)

	// a subscriber who is not the owner cannot see a private document
	w = env.do(t, http.MethodGet, "/?p="+docID, reader, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// neither can anonymous callers
	w = env.do(t, http.MethodGet, "/?p="+docID, "", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// history in the management API: synthesized head first, then stored
	// revisions newest first with their deeplink ordinals
	w = env.do(t, http.MethodGet, "/api/v1/documents/"+docID+"/revisions", owner, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var revs []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &revs))
	require.Len(t, revs, 3)
	assert.Equal(t, float64(0), revs[0]["ordinal"])
	assert.Equal(t, float64(2), revs[1]["ordinal"])
	assert.Equal(t, float64(1), revs[2]["ordinal"])

	// the detail view deeplinks to the newest stored revision
	w = env.do(t, http.MethodGet, "/api/v1/documents/"+docID, owner, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Contains(t, detail["fileType"], "text/plain")
	assert.Contains(t, detail["latestRevisionUrl"], "annual-report-revision-2.txt")
	assert.Contains(t, detail["feedUrl"], "annual-report/feed/")
}

func TestWorkflowStatesListing(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/workflow-states", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var states map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &states))
	assert.Contains(t, states, "final")
}

func TestPrettyPermalinkServesPublishedDocument(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")

	doc := env.createDocument(t, owner, map[string]interface{}{
		"title":  "Public Spec",
		"status": "public",
	})
	docID := doc["id"].(string)
	w := env.upload(t, owner, docID, "spec.txt", "published words", "")
	require.Equal(t, http.StatusCreated, w.Code)

	path := fmt.Sprintf("/documents/%s/public-spec.txt", time.Now().UTC().Format("2006/01"))
	w = env.do(t, http.MethodGet, path, "", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "published words", w.Body.String())

	// file-like paths redirect to their unslashed form
	w = env.do(t, http.MethodGet, path+"/", "", nil, "")
	require.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, path, w.Header().Get("Location"))

	// the revision path needs the revision capability, which anonymity lacks
	revPath := fmt.Sprintf("/documents/%s/public-spec-revision-1.txt", time.Now().UTC().Format("2006/01"))
	w = env.do(t, http.MethodGet, revPath, "", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do(t, http.MethodGet, revPath, owner, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateRequiresEditCapability(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/v1/documents", "", map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	sub := env.token(t, "user-s", "Subscriber", "subscriber")
	w = env.doJSON(t, http.MethodPost, "/api/v1/documents", sub, map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/v1/documents", sub, map[string]interface{}{})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateRejectsUnknownWorkflowState(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")

	w := env.doJSON(t, http.MethodPost, "/api/v1/documents", owner, map[string]interface{}{
		"title":         "Budget",
		"workflowState": "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	doc := env.createDocument(t, owner, map[string]interface{}{
		"title":         "Budget",
		"workflowState": "in-progress",
	})
	assert.Equal(t, "in-progress", doc["workflowState"])
}

func TestStatusScopedListingHidesUnreadable(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")

	env.createDocument(t, owner, map[string]interface{}{"title": "Open", "status": "public"})
	env.createDocument(t, owner, map[string]interface{}{"title": "Secret", "status": "private"})

	list := func(token string) []map[string]interface{} {
		w := env.do(t, http.MethodGet, "/api/v1/documents?status=public,private", token, nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out []map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	anon := list("")
	require.Len(t, anon, 1)
	assert.Equal(t, "Open", anon[0]["title"])

	mine := list(owner)
	assert.Len(t, mine, 2)
}

func TestUpdateAndTrash(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")

	doc := env.createDocument(t, owner, map[string]interface{}{"title": "Draft Plan"})
	docID := doc["id"].(string)
	assert.Equal(t, "draft", doc["status"])

	w := env.doJSON(t, http.MethodPatch, "/api/v1/documents/"+docID, owner, map[string]interface{}{
		"status":  "public",
		"excerpt": "now live",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "public", updated["status"])

	// another author cannot edit someone else's document
	other := env.token(t, "user-c", "User C", "author")
	w = env.doJSON(t, http.MethodPatch, "/api/v1/documents/"+docID, other, map[string]interface{}{"title": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/documents/"+docID, owner, nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	// trashed documents vanish from default listings
	lw := env.do(t, http.MethodGet, "/api/v1/documents", owner, nil, "")
	require.Equal(t, http.StatusOK, lw.Code)
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(lw.Body.Bytes(), &out))
	assert.Empty(t, out)
}

func TestLockFlow(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")
	editor := env.token(t, "user-e", "User E", "editor")

	doc := env.createDocument(t, owner, map[string]interface{}{"title": "Contended"})
	docID := doc["id"].(string)

	w := env.do(t, http.MethodPost, "/api/v1/documents/"+docID+"/lock", owner, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the holder blocks other writers
	w = env.doJSON(t, http.MethodPatch, "/api/v1/documents/"+docID, editor, map[string]interface{}{"title": "Taken"})
	assert.Equal(t, http.StatusLocked, w.Code)

	// overriding an unlocked document is a conflict
	free := env.createDocument(t, owner, map[string]interface{}{"title": "Free"})
	w = env.do(t, http.MethodPost, "/api/v1/documents/"+free["id"].(string)+"/lock/override", editor, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// authors lack the override capability, even on their own documents
	w = env.do(t, http.MethodPost, "/api/v1/documents/"+docID+"/lock/override", owner, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// editors may take the lock over
	w = env.do(t, http.MethodPost, "/api/v1/documents/"+docID+"/lock/override", editor, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/documents/"+docID+"/lock", editor, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var state struct {
		Locked bool      `json:"locked"`
		Lock   lock.Lock `json:"lock"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.Locked)
	assert.Equal(t, "user-e", state.Lock.HolderSub)
}

func TestFeedAccess(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")

	doc := env.createDocument(t, owner, map[string]interface{}{"title": "Tracked", "status": "private"})
	docID := doc["id"].(string)
	w := env.upload(t, owner, docID, "v.txt", "one", "")
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.upload(t, owner, docID, "v.txt", "two", "")
	require.Equal(t, http.StatusCreated, w.Code)

	feedPath := "/?p=" + docID + "&feed=rss2"

	// anonymous readers see nothing
	w = env.do(t, http.MethodGet, feedPath, "", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// a session works
	w = env.do(t, http.MethodGet, feedPath, owner, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/rss+xml")
	assert.Contains(t, w.Body.String(), "Tracked - revisions")

	// so does a feed key without any session
	kw := env.do(t, http.MethodPost, "/api/v1/feed-key", owner, nil, "")
	require.Equal(t, http.StatusOK, kw.Code)
	var keyResp struct {
		FeedKey string `json:"feedKey"`
	}
	require.NoError(t, json.Unmarshal(kw.Body.Bytes(), &keyResp))
	require.Len(t, keyResp.FeedKey, 32)

	w = env.do(t, http.MethodGet, feedPath+"&key="+keyResp.FeedKey, "", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// garbage keys fall back to the (absent) session
	w = env.do(t, http.MethodGet, feedPath+"&key="+strings.Repeat("x", 32), "", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestArchiveListsPublishedOnly(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")

	env.createDocument(t, owner, map[string]interface{}{"title": "Visible", "status": "public"})
	env.createDocument(t, owner, map[string]interface{}{"title": "Hidden", "status": "private"})

	w := env.do(t, http.MethodGet, "/documents/", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Page      int                      `json:"page"`
		Documents []map[string]interface{} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Documents, 1)
	assert.Equal(t, "Visible", page.Documents[0]["title"])

	w = env.do(t, http.MethodGet, "/documents/page/2/", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordProtectedServe(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")

	doc := env.createDocument(t, owner, map[string]interface{}{
		"title":    "Sealed",
		"status":   "public",
		"password": "s3cret",
	})
	docID := doc["id"].(string)
	w := env.upload(t, owner, docID, "sealed.txt", "classified", "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/?p="+docID, owner, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/?p="+docID+"&password=s3cret", owner, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "classified", w.Body.String())
}

func TestServeUnknownPaths(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/documents/2026/09/no-such-doc.txt", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/documents/not/a/rule", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "user-a", "User A", "author")

	doc := env.createDocument(t, owner, map[string]interface{}{"title": "Empty", "status": "public"})
	w := env.do(t, http.MethodGet, "/?p="+doc["id"].(string), owner, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
