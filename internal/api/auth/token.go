// Package auth holds the bearer credential used when calling the remote
// generation service. Token issuance and verification are server concerns;
// the client only inspects the expiry claim so callers can refresh a stale
// token without burning a round trip.
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource is a concurrency-safe holder for the current bearer token.
type TokenSource struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a holder seeded with token, which may be empty.
func NewTokenSource(token string) *TokenSource {
	s := &TokenSource{}
	s.Set(token)
	return s
}

// Set replaces the held token. When the token parses as a JWT its expiry
// claim is recorded; opaque tokens are held without one.
func (s *TokenSource) Set(token string) {
	expiresAt := time.Time{}
	if token != "" {
		claims := jwt.RegisteredClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = expiresAt
}

// Token returns the held token and whether it is usable: non-empty and,
// when an expiry is known, not yet expired.
func (s *TokenSource) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", false
	}
	if !s.expiresAt.IsZero() && !time.Now().Before(s.expiresAt) {
		return s.token, false
	}
	return s.token, true
}

// ExpiresAt returns the token's expiry and whether one is known.
func (s *TokenSource) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt, !s.expiresAt.IsZero()
}
