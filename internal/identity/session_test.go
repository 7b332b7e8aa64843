package identity

import (
	"strings"
	"testing"
	"time"

	"budget/internal/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("k", 32))

func testUser() User {
	return User{ID: "u1", Name: "Alice", Email: "a@example.com", Role: core.RoleUser}
}

func TestIssueAndVerify(t *testing.T) {
	s := NewSessions(testSecret, time.Hour)

	token, exp, err := s.Issue(testUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	p, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, core.Principal{ID: "u1", DisplayName: "Alice", Role: core.RoleUser}, p)
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSessions(testSecret, time.Hour)
	token, _, err := s.Issue(testUser())
	require.NoError(t, err)

	other := NewSessions([]byte(strings.Repeat("x", 32)), time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	_, err = s.Verify(token + "x")
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	_, err = s.Verify("")
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	s := NewSessions(testSecret, time.Hour)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "u1",
			ID:        "j1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "admin",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = s.Verify(token)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestVerifyRejectsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessions(testSecret, time.Hour).WithClock(func() time.Time { return now })
	token, _, err := s.Issue(testUser())
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestRevoke(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessions(testSecret, time.Hour).WithClock(func() time.Time { return now })

	token, _, err := s.Issue(testUser())
	require.NoError(t, err)
	other, _, err := s.Issue(testUser())
	require.NoError(t, err)

	require.NoError(t, s.Revoke(token))

	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	_, err = s.Verify(other)
	assert.NoError(t, err)

	// Once the token has expired the revocation entry is no longer needed.
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, s.Revocations().CleanExpired())
}
