package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/sessions"
	"github.com/docvault/docvault/internal/tokens"
	"github.com/docvault/docvault/internal/users"
)

type authEnv struct {
	router      *gin.Engine
	cfg         *config.Config
	users       *users.Service
	sessionsSvc *sessions.Service
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.JWT.Secret = "auth-test-secret"
	cfg.JWT.AccessTokenTTL = time.Hour

	usersSvc := users.NewService(users.NewMemoryUserRepository(), 32)

	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		sessions.SetBlacklistClient(nil)
		client.Close()
	})
	sessions.SetBlacklistClient(client)
	sessionsSvc := sessions.NewService(sessions.NewRedisRepository(client, "session:"))

	router := gin.New()
	NewAuthHandler(cfg, usersSvc, sessionsSvc).Register(router.Group("/"))

	return &authEnv{router: router, cfg: cfg, users: usersSvc, sessionsSvc: sessionsSvc}
}

func (e *authEnv) post(t *testing.T, path string, payload interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(b))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *authEnv) seedUser(t *testing.T, sub string) (*models.User, string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.users.UpsertFromClaims(ctx, map[string]interface{}{
		"sub":   sub,
		"name":  "Test User",
		"email": sub + "@example.org",
	})
	require.NoError(t, err)
	refresh, err := e.sessionsSvc.CreateSession(ctx, sub, time.Hour)
	require.NoError(t, err)
	return u, refresh
}

func TestLoginRejectsBadRequests(t *testing.T) {
	env := newAuthEnv(t)

	w := env.post(t, "/auth/login", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.post(t, "/auth/login", map[string]string{"mode": "magic"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// valid mode but no identity provider configured
	w = env.post(t, "/auth/login", map[string]string{"mode": "password", "username": "u", "password": "p"}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newAuthEnv(t)
	_, refresh := env.seedUser(t, "sub-refresh")

	w := env.post(t, "/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, 3600, resp.ExpiresIn)
	require.NotEqual(t, refresh, resp.RefreshToken)

	// the new access token verifies against the local secret
	ver := tokens.NewHMACVerifier(env.cfg.JWT.Secret)
	tok, err := ver.Verify(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	assert.Equal(t, "sub-refresh", claims["sub"])

	// the old refresh token is burned, the rotated one still works
	w = env.post(t, "/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.post(t, "/auth/refresh", map[string]string{"refresh_token": resp.RefreshToken}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	env := newAuthEnv(t)

	w := env.post(t, "/auth/refresh", map[string]string{"refresh_token": "never-issued"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.post(t, "/auth/refresh", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutBlacklistsAccessToken(t *testing.T) {
	env := newAuthEnv(t)
	u, refresh := env.seedUser(t, "sub-logout")

	access, err := tokens.GenerateAccessToken(env.cfg, u, time.Hour)
	require.NoError(t, err)

	w := env.post(t, "/auth/logout", map[string]string{"refresh_token": refresh}, access)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ctx := context.Background()
	revoked, err := sessions.IsAccessTokenBlacklisted(ctx, access)
	require.NoError(t, err)
	assert.True(t, revoked)

	// the refresh session is gone too
	sess, err := env.sessionsSvc.ValidateRefresh(ctx, refresh)
	require.NoError(t, err)
	assert.Nil(t, sess)
}
