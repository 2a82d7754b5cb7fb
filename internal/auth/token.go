// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// MinTokenSecretLength is the minimum HMAC key length accepted by JWTCodec.
const MinTokenSecretLength = 32

// TokenType discriminates access tokens from refresh tokens.
type TokenType string

// Token types.
const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims are the verified contents of a bearer token.
type Claims struct {
	Username  string
	Type      TokenType
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec signs and verifies self-contained bearer tokens.
// Verification is stateless; revocation is the ledger's job.
type TokenCodec interface {
	// Sign returns a token for username and typ that expires after ttl.
	Sign(username string, typ TokenType, ttl time.Duration) (string, *Claims, error)

	// Verify checks signature, structure and expiry and returns the claims.
	Verify(token string) (*Claims, error)
}

type jwtClaims struct {
	Username string    `json:"username"`
	Type     TokenType `json:"type"`
	jwt.RegisteredClaims
}

// JWTCodec implements TokenCodec with HS256 JSON Web Tokens.
type JWTCodec struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

// JWTCodecOption configures a JWTCodec.
type JWTCodecOption func(*JWTCodec)

// WithClock overrides the codec's time source.
func WithClock(now func() time.Time) JWTCodecOption {
	return func(c *JWTCodec) {
		c.now = now
	}
}

// NewJWTCodec creates a codec keyed by secret. Tokens carry issuer as iss
// and tokens from other issuers are rejected.
func NewJWTCodec(secret []byte, issuer string, opts ...JWTCodecOption) (*JWTCodec, error) {
	if len(secret) < MinTokenSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("length", len(secret)).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	if issuer == "" {
		return nil, oops.Code("TOKEN_ISSUER_REQUIRED").Errorf("token issuer cannot be empty")
	}

	c := &JWTCodec{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Sign implements TokenCodec. Every token gets a random jti, so two tokens
// signed in the same second for the same user still differ.
func (c *JWTCodec) Sign(username string, typ TokenType, ttl time.Duration) (string, *Claims, error) {
	if username == "" {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").Errorf("username cannot be empty")
	}
	if typ != TokenAccess && typ != TokenRefresh {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").With("type", string(typ)).Errorf("unknown token type")
	}
	if ttl <= 0 {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").With("ttl", ttl).Errorf("ttl must be positive")
	}

	now := c.now()
	claims := jwtClaims{
		Username: username,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").
			With("type", string(typ)).
			Wrap(err)
	}
	return signed, toClaims(&claims), nil
}

// Verify implements TokenCodec. All failures carry CodeTokenInvalid.
func (c *JWTCodec) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, newError(CodeTokenMissing, "Unauthorized")
	}

	var claims jwtClaims
	parsed, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, oops.Code(CodeTokenInvalid).
			With("cause", errString(err)).
			Errorf("Unauthorized")
	}
	if claims.Username == "" || (claims.Type != TokenAccess && claims.Type != TokenRefresh) {
		return nil, oops.Code(CodeTokenInvalid).
			With("type", string(claims.Type)).
			Errorf("Unauthorized")
	}
	return toClaims(&claims), nil
}

func toClaims(c *jwtClaims) *Claims {
	out := &Claims{
		Username: c.Username,
		Type:     c.Type,
		ID:       c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return "token not valid"
	}
	return err.Error()
}
