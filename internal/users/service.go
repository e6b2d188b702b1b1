package users

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/docvault/docvault/internal/models"
)

// Service encapsulates user-related business logic
type Service struct {
	repo      UserRepository
	keyLength int
}

func NewService(r UserRepository, feedKeyLength int) *Service {
	if feedKeyLength <= 0 {
		feedKeyLength = 32
	}
	return &Service{repo: r, keyLength: feedKeyLength}
}

// UpsertFromClaims creates or updates a user using verified token claims
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if sub == "" {
		return nil, nil
	}
	u := &models.User{
		Sub:   sub,
		Email: email,
		Name:  name,
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				u.Roles = append(u.Roles, role)
			}
		}
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

func (s *Service) GetByFeedKey(ctx context.Context, key string) (*models.User, error) {
	return s.repo.GetByFeedKey(ctx, key)
}

// RegenerateFeedKey mints a new random feed key for the user and stores it,
// invalidating any previous key.
func (s *Service) RegenerateFeedKey(ctx context.Context, sub string) (string, error) {
	key, err := randomKey(s.keyLength)
	if err != nil {
		return "", fmt.Errorf("generate feed key: %w", err)
	}
	if err := s.repo.SetFeedKey(ctx, sub, key); err != nil {
		return "", err
	}
	return key, nil
}

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomKey(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = keyAlphabet[int(b[i])%len(keyAlphabet)]
	}
	return string(b), nil
}
