package identity

import (
	"errors"
	"fmt"
	"time"

	"budget/internal/cache"
	"budget/internal/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "budget"

// ErrTokenRevoked is returned by Verify for a token that was logged out.
var ErrTokenRevoked = errors.New("session token revoked")

// Claims are the JWT claims of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
	Role string `json:"role"`
}

// Sessions issues and verifies HS256 session tokens. Revoked token ids are
// remembered until the token would have expired anyway.
type Sessions struct {
	secret  []byte
	ttl     time.Duration
	revoked *cache.LRUCache[struct{}]
	now     func() time.Time
}

func NewSessions(secret []byte, ttl time.Duration) *Sessions {
	return &Sessions{
		secret:  secret,
		ttl:     ttl,
		revoked: cache.NewLRUCache[struct{}](0, ttl),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for issuing and verifying.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	s.now = now
	s.revoked.WithClock(now)
	return s
}

// Revocations exposes the revocation list so it can be registered with a
// cache.Manager for periodic cleanup.
func (s *Sessions) Revocations() cache.Cleaner {
	return s.revoked
}

// Issue signs a session token for u.
func (s *Sessions) Issue(u User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name: u.Name,
		Role: string(u.Role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, expiry and revocation state of token and
// returns the Principal it carries. Every failure wraps core.ErrNotAuthenticated.
func (s *Sessions) Verify(token string) (core.Principal, error) {
	claims, err := s.parse(token)
	if err != nil {
		return core.Principal{}, err
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return core.Principal{}, fmt.Errorf("%w: %w", core.ErrNotAuthenticated, ErrTokenRevoked)
	}
	role, err := core.ParseRole(claims.Role)
	if err != nil {
		return core.Principal{}, fmt.Errorf("%w: %w", core.ErrNotAuthenticated, err)
	}
	return core.Principal{ID: claims.Subject, DisplayName: claims.Name, Role: role}, nil
}

// Revoke invalidates token until its expiry.
func (s *Sessions) Revoke(token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	s.revoked.SetUntil(claims.ID, struct{}{}, claims.ExpiresAt.Time)
	return nil
}

func (s *Sessions) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNotAuthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: invalid session token", core.ErrNotAuthenticated)
	}
	return claims, nil
}
