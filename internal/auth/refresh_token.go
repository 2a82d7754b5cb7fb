// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshTokenTTL is the fixed lifetime of refresh tokens. It does not
// follow the access token TTL.
const RefreshTokenTTL = 7 * 24 * time.Hour

// RefreshToken is a ledger entry for an issued refresh token.
// Only the SHA-256 digest of the token is stored.
type RefreshToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRefreshToken creates a validated ledger entry for the plaintext token.
func NewRefreshToken(userID ulid.ULID, token string, expiresAt time.Time) (*RefreshToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Code("REFRESH_TOKEN_EMPTY").Errorf("refresh token cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("REFRESH_TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	now := time.Now()
	return &RefreshToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: HashRefreshToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsExpiredAt reports whether the entry is past its expiry at t.
func (r *RefreshToken) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// HashRefreshToken returns the hex SHA-256 digest under which a refresh
// token is ledgered.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenRepository is the refresh token ledger.
type RefreshTokenRepository interface {
	// Create stores a new ledger entry. Returns ErrAlreadyExists if the token
	// hash is already ledgered.
	Create(ctx context.Context, token *RefreshToken) error

	// GetByTokenHash retrieves an entry by token hash. Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// DeleteByTokenHash removes the entry with the given token hash and
	// reports whether a row was removed.
	DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error)

	// DeleteByUser removes every entry for a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteExpired removes entries that expired before the given time and
	// returns the count.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
