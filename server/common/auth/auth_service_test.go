package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", 60)

	token, err := svc.GenerateToken("user-1", "ana", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, username, role, err := svc.ParseAuthContext(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "ana", username)
	assert.Equal(t, "admin", role)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", 60).GenerateToken("user-1", "ana", "user")
	require.NoError(t, err)

	_, err = NewService("secret-b", 60).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := NewService("test-secret", 60).ParseToken("not-a-jwt")
	assert.Error(t, err)
}
