package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis client for the access-token blacklist, set once at startup. Without
// it, logout cannot revoke access tokens before they expire on their own.
var blacklistClient *redis.Client

// SetBlacklistClient configures the client used for blacklist operations.
// Passing nil disables the blacklist.
func SetBlacklistClient(c *redis.Client) {
	blacklistClient = c
}

const blacklistPrefix = "blacklist:access:"

// BlacklistAccessToken marks the token revoked until its natural expiry.
// A no-op when no client is configured.
func BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if blacklistClient == nil {
		return nil
	}
	return blacklistClient.Set(ctx, blacklistPrefix+token, "1", ttl).Err()
}

// IsAccessTokenBlacklisted reports whether the token was revoked. Without a
// configured client every token reads as live.
func IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if blacklistClient == nil {
		return false, nil
	}
	n, err := blacklistClient.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
