// Package auth handles authentication: access tokens, password hashing,
// the token blacklist, GitHub sign-in and the HTTP middleware that ties them
// together.
//
// JWT (JSON Web Token) OVERVIEW:
// A JWT is three base64url parts separated by dots: header.payload.signature.
// The payload carries "claims" (who the token is for, when it expires). The
// signature is an HMAC over header+payload with a server-side secret, so the
// server can trust the claims without a database lookup.
//
// The trade-off is revocation: a signed token stays valid until it expires.
// Logout therefore records the token's ID in a blacklist (blacklist.go) that
// the middleware consults on every authenticated request.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	tokenIssuer     = "idea-match"
	minSecretLength = 16
	DefaultTokenTTL = time.Hour
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService issues and validates signed access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; a ttl of zero or less falls back to DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TokenClaims is what a validated token tells us.
//
// ID is the token's unique "jti" claim. The blacklist stores IDs rather than
// whole token strings.
type TokenClaims struct {
	UserID    int64
	ID        string
	ExpiresAt time.Time
}

// Generate issues a token for userID that expires after the service TTL.
func (s *TokenService) Generate(userID int64) (string, *TokenClaims, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration issues a token with an explicit lifetime. Tests use
// it to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID int64, d time.Duration) (string, *TokenClaims, error) {
	now := time.Now()
	expires := now.Add(d)
	id := xid.New().String()

	c := jwt.RegisteredClaims{
		ID:        id,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		Issuer:    tokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, &TokenClaims{
		UserID:    userID,
		ID:        id,
		ExpiresAt: time.Unix(expires.Unix(), 0),
	}, nil
}

// Validate parses tokenStr, checks its signature, issuer and expiry, and
// returns its claims.
//
// ALGORITHM PINNING:
// WithValidMethods rejects any token whose header names a different
// algorithm. Without it, a forged token with "alg": "none" or an RSA
// algorithm could be accepted.
func (s *TokenService) Validate(tokenStr string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrInvalidToken)
	}

	return &TokenClaims{
		UserID:    userID,
		ID:        c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
