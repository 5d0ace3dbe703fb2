package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{
	ID:       42,
	Username: "alice",
	Email:    "alice@example.com",
	Role:     RoleUser,
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	ts := NewTokenService([]byte("test-signing-key"), time.Hour)

	token, err := ts.Issue(testIdentity, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleUser, claims.Role)

	identity := claims.Identity()
	assert.Equal(t, testIdentity.ID, identity.ID)
	assert.Equal(t, testIdentity.Username, identity.Username)
	assert.False(t, identity.IsAdmin())
}

func TestTokenService_VerifyExpired(t *testing.T) {
	ts := NewTokenService([]byte("test-signing-key"), time.Minute)

	token, err := ts.Issue(testIdentity, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_VerifyWrongKey(t *testing.T) {
	ts := NewTokenService([]byte("test-signing-key"), time.Hour)
	otherTs := NewTokenService([]byte("other-signing-key"), time.Hour)

	token, err := ts.Issue(testIdentity, time.Now())
	require.NoError(t, err)

	_, err = otherTs.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_VerifyGarbage(t *testing.T) {
	ts := NewTokenService([]byte("test-signing-key"), time.Hour)

	_, err := ts.Verify("not-a-jwt-at-all")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ts.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	_, err = ParseRole("superuser")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}
