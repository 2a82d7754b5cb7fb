// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/auth"
)

// OTPRepository implements auth.OTPRepository using PostgreSQL.
type OTPRepository struct {
	db DB
}

// NewOTPRepository creates a new OTPRepository.
func NewOTPRepository(db DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Create stores a new challenge.
func (r *OTPRepository) Create(ctx context.Context, c *auth.OTPChallenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO otp_codes (id, contact, code, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		c.ID.String(),
		c.Contact,
		c.Code,
		string(c.Status),
		c.ExpiresAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return oops.Code("OTP_CREATE_FAILED").
			With("operation", "insert otp_code").
			With("challenge_id", c.ID.String()).
			Wrap(err)
	}
	return nil
}

// FindActiveMatch returns the newest generated or sent challenge for
// (contact, code). Expiry is left to the caller.
func (r *OTPRepository) FindActiveMatch(ctx context.Context, contact, code string) (*auth.OTPChallenge, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, contact, code, status, expires_at, created_at, updated_at
		FROM otp_codes
		WHERE contact = $1 AND code = $2 AND status = ANY($3)
		ORDER BY id DESC
		LIMIT 1
	`, contact, code, statusStrings(auth.ActiveOTPStatuses))

	var (
		idStr, gotContact, gotCode, status string
		expiresAt, createdAt, updatedAt    time.Time
	)
	err := row.Scan(&idStr, &gotContact, &gotCode, &status, &expiresAt, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OTP_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("OTP_GET_FAILED").
			With("operation", "find active otp match").
			Wrap(err)
	}

	id, err := parseID("OTP_INVALID_ID", "challenge_id", idStr)
	if err != nil {
		return nil, err
	}
	return &auth.OTPChallenge{
		ID:        id,
		Contact:   gotContact,
		Code:      gotCode,
		Status:    auth.OTPStatus(status),
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// MarkStatus conditionally moves a challenge forward. The status guard in
// the WHERE clause makes concurrent consumers of one challenge race on a
// single row update; only one sees a row affected.
func (r *OTPRepository) MarkStatus(ctx context.Context, id ulid.ULID, from []auth.OTPStatus, to auth.OTPStatus) (bool, error) {
	if len(from) == 0 {
		return false, oops.Code("OTP_INVALID_TRANSITION").
			With("to", string(to)).
			Errorf("no source status given")
	}
	for _, s := range from {
		if !s.CanTransitionTo(to) {
			return false, oops.Code("OTP_INVALID_TRANSITION").
				With("from", string(s)).
				With("to", string(to)).
				Errorf("otp challenge cannot move from %s to %s", s, to)
		}
	}

	result, err := r.db.Exec(ctx, `
		UPDATE otp_codes
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, string(to), id.String(), statusStrings(from))
	if err != nil {
		return false, oops.Code("OTP_UPDATE_FAILED").
			With("operation", "mark otp status").
			With("challenge_id", id.String()).
			With("to", string(to)).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteExpired removes challenges that expired before the given time.
func (r *OTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM otp_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("OTP_DELETE_FAILED").
			With("operation", "delete expired otp codes").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func statusStrings(statuses []auth.OTPStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Compile-time interface check.
var _ auth.OTPRepository = (*OTPRepository)(nil)
