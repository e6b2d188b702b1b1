package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Service issues and validates refresh sessions.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// CreateSession mints a random refresh token for sub and stores it with the
// given lifetime.
func (s *Service) CreateSession(ctx context.Context, sub string, ttl time.Duration) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	sess := &Session{
		RefreshToken: token,
		Sub:          sub,
		ExpiresAt:    time.Now().UTC().Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateRefresh returns the session for a live refresh token, nil when the
// token is unknown or past its lifetime. Expired entries are cleaned up on
// the way out.
func (s *Service) ValidateRefresh(ctx context.Context, refresh string) (*Session, error) {
	sess, err := s.repo.GetByRefresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired() {
		_ = s.repo.DeleteByRefresh(ctx, refresh)
		return nil, nil
	}
	return sess, nil
}

// RotateRefresh validates the presented token and replaces it with a fresh
// one carrying the remaining lifetime. The old token stops working
// immediately, so a stolen refresh token is only good until its owner next
// refreshes.
func (s *Service) RotateRefresh(ctx context.Context, refresh string) (*Session, string, error) {
	sess, err := s.ValidateRefresh(ctx, refresh)
	if err != nil || sess == nil {
		return nil, "", err
	}
	token, err := randomToken()
	if err != nil {
		return nil, "", err
	}
	next := &Session{
		RefreshToken: token,
		Sub:          sess.Sub,
		ExpiresAt:    sess.ExpiresAt,
	}
	if err := s.repo.Create(ctx, next); err != nil {
		return nil, "", err
	}
	_ = s.repo.DeleteByRefresh(ctx, refresh)
	return next, token, nil
}

func (s *Service) DeleteRefresh(ctx context.Context, refresh string) error {
	return s.repo.DeleteByRefresh(ctx, refresh)
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
