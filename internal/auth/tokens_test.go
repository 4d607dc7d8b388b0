package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounts-api/internal/auth"
)

func TestTokenManagerIssueAndVerify(t *testing.T) {
	tokens := auth.NewTokenManager("secret", 24*time.Hour, 30*24*time.Hour)

	pair, err := tokens.IssuePair("user-1", "a@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)

	claims, err = tokens.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Empty(t, claims.Email)
}

func TestTokenManagerRejectsWrongKind(t *testing.T) {
	tokens := auth.NewTokenManager("secret", 24*time.Hour, 30*24*time.Hour)

	pair, err := tokens.IssuePair("user-1", "a@x.com")
	require.NoError(t, err)

	_, err = tokens.VerifyRefresh(pair.AccessToken)
	assert.Error(t, err, "an access token must not pass as a refresh token")

	_, err = tokens.VerifyAccess(pair.RefreshToken)
	assert.Error(t, err, "a refresh token must not pass as an access token")
}

func TestTokenManagerExpiry(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	tokens := auth.NewTokenManager("secret", 24*time.Hour, 30*24*time.Hour).
		WithClock(func() time.Time { return now })

	pair, err := tokens.IssuePair("user-1", "a@x.com")
	require.NoError(t, err)

	now = issued.Add(24*time.Hour + time.Minute)
	_, err = tokens.VerifyAccess(pair.AccessToken)
	assert.Error(t, err, "access token must expire after 24h")

	_, err = tokens.VerifyRefresh(pair.RefreshToken)
	assert.NoError(t, err, "refresh token is still inside its 30d lifetime")

	now = issued.Add(30*24*time.Hour + time.Minute)
	_, err = tokens.VerifyRefresh(pair.RefreshToken)
	assert.Error(t, err, "refresh token must expire after 30d")
}

func TestTokenManagerRejectsTampering(t *testing.T) {
	tokens := auth.NewTokenManager("secret", 24*time.Hour, 30*24*time.Hour)
	other := auth.NewTokenManager("another-secret", 24*time.Hour, 30*24*time.Hour)

	pair, err := tokens.IssuePair("user-1", "a@x.com")
	require.NoError(t, err)

	_, err = other.VerifyAccess(pair.AccessToken)
	assert.Error(t, err, "a different signing key must not verify")

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	_, err = tokens.VerifyAccess(forged)
	assert.Error(t, err)

	_, err = tokens.VerifyAccess("not-a-token")
	assert.Error(t, err)
}
