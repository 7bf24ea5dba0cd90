package auth

import (
	"testing"
	"time"

	"opsdash/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenUser = model.User{
	ID:       "u-1",
	Username: "alice",
	Email:    "alice@example.com",
	Role:     model.RoleLeader,
	IsActive: true,
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)

	token, err := tokens.Issue(tokenUser)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, model.RoleLeader, claims.Role)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestTokenExpired(t *testing.T) {
	tokens := NewTokens("test-secret", -time.Minute)

	token, err := tokens.Issue(tokenUser)
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestTokenWrongSecret(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)
	other := NewTokens("another-secret", time.Minute)

	token, err := tokens.Issue(tokenUser)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestTokenGarbage(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)

	_, err := tokens.Verify("not.a.token")
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = tokens.Verify("")
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestTokenRefresh(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)

	token, err := tokens.Issue(tokenUser)
	require.NoError(t, err)

	refreshed, err := tokens.Refresh(token)
	require.NoError(t, err)

	claims, err := tokens.Verify(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
}

func TestTokenRefresh_ExpiredDenied(t *testing.T) {
	tokens := NewTokens("test-secret", -time.Minute)

	token, err := tokens.Issue(tokenUser)
	require.NoError(t, err)

	_, err = tokens.Refresh(token)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
}
