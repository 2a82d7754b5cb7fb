// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// OTP configuration.
const (
	OTPCodeLength = 6
	OTPTTL        = 5 * time.Minute
)

var otpCodeSpace = big.NewInt(1_000_000)

// OTPStatus is the lifecycle state of an OTP challenge.
type OTPStatus string

// OTP statuses.
const (
	OTPGenerated   OTPStatus = "generated"
	OTPSent        OTPStatus = "sent"
	OTPVerified    OTPStatus = "verified"
	OTPUserCreated OTPStatus = "user_created"
	OTPFailed      OTPStatus = "failed"
)

// ActiveOTPStatuses are the statuses eligible for verification.
var ActiveOTPStatuses = []OTPStatus{OTPSent, OTPGenerated}

var otpTransitions = map[OTPStatus][]OTPStatus{
	OTPGenerated: {OTPSent, OTPVerified, OTPFailed},
	OTPSent:      {OTPVerified, OTPFailed},
	OTPVerified:  {OTPUserCreated},
}

// CanTransitionTo reports whether s may move forward to next.
// Challenges never move backwards and terminal statuses never move.
func (s OTPStatus) CanTransitionTo(next OTPStatus) bool {
	for _, allowed := range otpTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsActive reports whether s is eligible for verification.
func (s OTPStatus) IsActive() bool {
	return s == OTPSent || s == OTPGenerated
}

// OTPChallenge is a one-time code issued to a contact.
type OTPChallenge struct {
	ID        ulid.ULID
	Contact   string
	Code      string
	Status    OTPStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOTPChallenge creates a challenge in the generated status.
func NewOTPChallenge(contact, code string, expiresAt time.Time) (*OTPChallenge, error) {
	if contact == "" {
		return nil, oops.Code("OTP_INVALID_CONTACT").Errorf("contact cannot be empty")
	}
	if len(contact) > MaxUsernameLength {
		return nil, oops.Code("OTP_INVALID_CONTACT").
			With("length", len(contact)).
			Errorf("contact exceeds %d characters", MaxUsernameLength)
	}
	if len(code) != OTPCodeLength {
		return nil, oops.Code("OTP_INVALID_CODE").Errorf("code must be %d digits", OTPCodeLength)
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("OTP_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	now := time.Now()
	return &OTPChallenge{
		ID:        ulid.Make(),
		Contact:   contact,
		Code:      code,
		Status:    OTPGenerated,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsValidAt reports whether the challenge can be verified at t.
func (c *OTPChallenge) IsValidAt(t time.Time) bool {
	return c.Status.IsActive() && c.ExpiresAt.After(t)
}

// GenerateOTPCode returns a uniformly random numeric code of OTPCodeLength
// digits, leading zeros included.
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpCodeSpace)
	if err != nil {
		return "", oops.Code("OTP_GENERATE_FAILED").
			With("operation", "crypto/rand.Int").
			Wrap(err)
	}
	return fmt.Sprintf("%0*d", OTPCodeLength, n.Int64()), nil
}

// OTPRepository is the OTP challenge store.
type OTPRepository interface {
	// Create stores a new challenge.
	Create(ctx context.Context, challenge *OTPChallenge) error

	// FindActiveMatch returns the newest challenge for (contact, code) whose
	// status is generated or sent, regardless of expiry.
	// Returns ErrNotFound if none exists.
	FindActiveMatch(ctx context.Context, contact, code string) (*OTPChallenge, error)

	// MarkStatus moves a challenge to status to if its current status is one
	// of from. It reports whether the transition happened; false means
	// another caller moved the challenge first.
	MarkStatus(ctx context.Context, id ulid.ULID, from []OTPStatus, to OTPStatus) (bool, error)

	// DeleteExpired removes challenges that expired before the given time
	// and returns the count.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// CodeSender delivers OTP codes to a contact.
type CodeSender interface {
	SendCode(ctx context.Context, contact, code string) error
}

// LogSender is a CodeSender that writes codes to the debug log. It is meant
// for development deployments without an SMS gateway.
type LogSender struct {
	Logger *slog.Logger
}

// SendCode implements CodeSender.
func (s LogSender) SendCode(ctx context.Context, contact, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "otp code issued", "contact", contact, "code", code)
	return nil
}
