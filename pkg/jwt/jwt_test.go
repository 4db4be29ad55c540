package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator() *Generator {
	return NewGenerator(TokenConfig{
		Secret:               "test-secret-that-is-long-enough-for-hs256",
		Issuer:               "reposcan-test",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
	})
}

func TestGenerateTokenPair_RoundTrip(t *testing.T) {
	g := newTestGenerator()

	pair, err := g.GenerateTokenPair(Identity{UserID: "u-1", Email: "dev@example.com", OrgID: "o-1", Role: "owner"})
	require.NoError(t, err)
	assert.True(t, pair.RefreshExpiresAt.After(pair.ExpiresAt))

	claims, err := g.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "o-1", claims.OrgID)
	assert.Equal(t, "owner", claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)

	refresh, err := g.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", refresh.Subject)
}

func TestValidate_WrongTokenType(t *testing.T) {
	g := newTestGenerator()
	pair, err := g.GenerateTokenPair(Identity{UserID: "u-1"})
	require.NoError(t, err)

	_, err = g.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)

	_, err = g.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestValidate_Expired(t *testing.T) {
	g := newTestGenerator()
	issued := time.Now().Add(-time.Hour)
	g.now = func() time.Time { return issued }

	pair, err := g.GenerateTokenPair(Identity{UserID: "u-1"})
	require.NoError(t, err)

	g.now = time.Now
	_, err = g.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_WrongSecretOrIssuer(t *testing.T) {
	pair, err := newTestGenerator().GenerateTokenPair(Identity{UserID: "u-1"})
	require.NoError(t, err)

	other := NewGenerator(TokenConfig{Secret: "another-secret-another-secret-1234", Issuer: "reposcan-test"})
	_, err = other.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	otherIssuer := NewGenerator(TokenConfig{Secret: "test-secret-that-is-long-enough-for-hs256", Issuer: "someone-else"})
	_, err = otherIssuer.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateTokenPair_EmptyUser(t *testing.T) {
	_, err := newTestGenerator().GenerateTokenPair(Identity{})
	assert.ErrorIs(t, err, ErrEmptyUserID)
}
