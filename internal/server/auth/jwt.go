// Package auth is the credential codec: it turns a claim set into a signed,
// time-bound HS256 JWT and back. Access and refresh tokens use separate
// secrets and carry an explicit kind claim that is checked after decoding.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind discriminates access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the payload of both token kinds. ExpiresAt, IssuedAt and ID
// (jti) live in the registered claims; ID makes every encoding unique.
type Claims struct {
	jwt.RegisteredClaims
	UserID string    `json:"user_id"`
	Email  string    `json:"email"`
	Kind   TokenKind `json:"kind"`
}

// Codec encodes and decodes tokens against an injected clock.
type Codec struct {
	now common.Clock
}

func NewCodec(now common.Clock) *Codec {
	if now == nil {
		now = common.SystemClock
	}
	return &Codec{now: now}
}

// Encode signs claims with secret. Expiry is now+ttl; any ExpiresAt, IssuedAt
// or ID already present in claims is overwritten.
func (c *Codec) Encode(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.ID = uuid.NewString()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Decode verifies signature, algorithm and expiry in one step.
// It fails with common.ErrMalformed, common.ErrInvalidSignature or
// common.ErrExpired.
func (c *Codec) Decode(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, common.ErrExpired.With("token is expired", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, common.ErrInvalidSignature.With("token signature is invalid", err)
		default:
			return nil, common.ErrMalformed.With("token is not parseable", err)
		}
	}

	if !token.Valid {
		return nil, common.ErrInvalidSignature
	}

	return claims, nil
}

// DecodeKind is Decode plus a check that the kind claim equals want.
func (c *Codec) DecodeKind(tokenString string, secret []byte, want TokenKind) (*Claims, error) {
	claims, err := c.Decode(tokenString, secret)
	if err != nil {
		return nil, err
	}
	if claims.Kind != want {
		return nil, common.ErrTokenKindMismatch.With("expected "+string(want)+" token, got "+string(claims.Kind), nil)
	}
	return claims, nil
}
