package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealrooms/config"
	"dealrooms/models"
)

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	user := &models.User{
		PublicID:     "alice",
		TokenVersion: 3,
	}
	user.ID = 42

	access, refresh, err := GenerateJWTToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	claims, err := ParseJWTToken(access)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.PublicID)
	assert.Equal(t, 3, claims.TokenVersion)
}

func TestParseJWTRejectsTamperedToken(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	user := &models.User{PublicID: "alice"}
	access, _, err := GenerateJWTToken(user)
	require.NoError(t, err)

	config.AppConfig.JWTSecret = "different-secret"
	_, err = ParseJWTToken(access)
	assert.Error(t, err)
}
