package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/sessions"
	"github.com/docvault/docvault/internal/users"
	"github.com/docvault/docvault/pkg/logger"
)

// currentUser resolves the verified claims left by the auth middleware into a
// stored user. Returns nil for anonymous requests and for revoked tokens.
func currentUser(c *gin.Context, usersSvc *users.Service) *models.User {
	v, ok := c.Get("claims")
	if !ok {
		return nil
	}
	cm, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}

	// a logged-out access token is as good as no token
	if auth := c.GetHeader("Authorization"); auth != "" {
		var at string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &at); n == 1 {
			if revoked, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), at); err == nil && revoked {
				return nil
			}
		}
	}

	u, err := usersSvc.UpsertFromClaims(c.Request.Context(), cm)
	if err != nil {
		logger.Warnf("claims upsert failed: %v", err)
		return nil
	}
	return u
}
