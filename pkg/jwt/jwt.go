// Package jwt issues and validates the access and refresh tokens used by the API.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when the token cannot be parsed or verified.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptyUserID is returned when asked to sign a token without a subject.
	ErrEmptyUserID = errors.New("user_id cannot be empty")
	// ErrInvalidTokenType is returned when a refresh token is used as an access token or vice versa.
	ErrInvalidTokenType = errors.New("invalid token type")
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the JWT payload. The plan is deliberately absent: it is resolved
// from the organization on every request so plan changes apply immediately.
type Claims struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	OrgID     string    `json:"org,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`

	jwt.RegisteredClaims
}

// Identity is what gets embedded into a token pair.
type Identity struct {
	UserID string
	Email  string
	OrgID  string
	Role   string
}

// TokenConfig holds configuration for token generation.
type TokenConfig struct {
	Secret               string
	Issuer               string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
}

// TokenPair contains both access and refresh tokens.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Generator signs and validates HS256 tokens.
type Generator struct {
	config TokenConfig
	now    func() time.Time
}

// NewGenerator creates a new token generator.
func NewGenerator(config TokenConfig) *Generator {
	return &Generator{config: config, now: time.Now}
}

// GenerateTokenPair issues an access token and a refresh token for id.
func (g *Generator) GenerateTokenPair(id Identity) (*TokenPair, error) {
	access, accessExp, err := g.sign(id, TokenTypeAccess, g.config.AccessTokenDuration)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := g.sign(id, TokenTypeRefresh, g.config.RefreshTokenDuration)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (g *Generator) sign(id Identity, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	if id.UserID == "" {
		return "", time.Time{}, ErrEmptyUserID
	}

	now := g.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:    id.UserID,
		Email:     id.Email,
		OrgID:     id.OrgID,
		Role:      id.Role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    g.config.Issuer,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(g.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken parses tokenString and requires an access token.
func (g *Generator) ValidateAccessToken(tokenString string) (*Claims, error) {
	return g.validate(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken parses tokenString and requires a refresh token.
func (g *Generator) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return g.validate(tokenString, TokenTypeRefresh)
}

func (g *Generator) validate(tokenString string, want TokenType) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
	}
	if g.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.config.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(g.config.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}
