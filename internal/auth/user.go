// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxUsernameLength bounds identity values for both kinds.
const MaxUsernameLength = 64

// IdentityKind discriminates how a user authenticates.
type IdentityKind string

// Identity kinds.
const (
	IdentityPassword IdentityKind = "password"
	IdentityPhone    IdentityKind = "phone"
)

// Valid reports whether k is a known identity kind.
func (k IdentityKind) Valid() bool {
	return k == IdentityPassword || k == IdentityPhone
}

// Identity is the unique login handle of a user. A phone number and a
// chosen username with the same text are distinct identities.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// PasswordIdentity returns the identity for a username/password account.
func PasswordIdentity(username string) Identity {
	return Identity{Kind: IdentityPassword, Value: username}
}

// PhoneIdentity returns the identity for an OTP account.
func PhoneIdentity(phone string) Identity {
	return Identity{Kind: IdentityPhone, Value: phone}
}

func (i Identity) String() string {
	return string(i.Kind) + ":" + i.Value
}

// User is an account in the user directory.
type User struct {
	ID             ulid.ULID
	Identity       Identity
	PasswordDigest string // empty for phone identities
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Username is the identity value; it is the subject of issued tokens.
func (u *User) Username() string {
	return u.Identity.Value
}

// NewUser creates a validated User. passwordDigest is required for
// password identities and must be empty for phone identities.
func NewUser(identity Identity, passwordDigest string) (*User, error) {
	if !identity.Kind.Valid() {
		return nil, oops.Code("USER_INVALID_IDENTITY").
			With("kind", string(identity.Kind)).
			Errorf("unknown identity kind")
	}
	if identity.Value == "" {
		return nil, oops.Code("USER_INVALID_IDENTITY").Errorf("identity value cannot be empty")
	}
	if len(identity.Value) > MaxUsernameLength {
		return nil, oops.Code("USER_INVALID_IDENTITY").
			With("length", len(identity.Value)).
			Errorf("identity value exceeds %d characters", MaxUsernameLength)
	}
	switch identity.Kind {
	case IdentityPassword:
		if passwordDigest == "" {
			return nil, oops.Code("USER_INVALID_DIGEST").Errorf("password identity requires a digest")
		}
	case IdentityPhone:
		if passwordDigest != "" {
			return nil, oops.Code("USER_INVALID_DIGEST").Errorf("phone identity cannot carry a digest")
		}
	}

	now := time.Now()
	return &User{
		ID:             ulid.Make(),
		Identity:       identity,
		PasswordDigest: passwordDigest,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UserRepository is the user directory.
type UserRepository interface {
	// Create stores a new user. Returns ErrAlreadyExists if the identity is taken.
	Create(ctx context.Context, user *User) error

	// GetByIdentity retrieves a user by identity. Returns ErrNotFound if absent.
	GetByIdentity(ctx context.Context, identity Identity) (*User, error)

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
}
