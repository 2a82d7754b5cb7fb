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

const usersIdentityConstraint = "users_identity_unique"

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. A taken identity yields auth.ErrAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, identity_kind, username, password_digest, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.ID.String(),
		string(user.Identity.Kind),
		user.Identity.Value,
		user.PasswordDigest,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, usersIdentityConstraint) {
			return oops.Code("USER_EXISTS").
				With("identity_kind", string(user.Identity.Kind)).
				Wrap(auth.ErrAlreadyExists)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByIdentity retrieves a user by identity kind and username.
func (r *UserRepository) GetByIdentity(ctx context.Context, identity auth.Identity) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, identity_kind, username, password_digest, created_at, updated_at
		FROM users
		WHERE identity_kind = $1 AND username = $2
	`, string(identity.Kind), identity.Value)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("identity_kind", string(identity.Kind)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by identity").
			Wrap(err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, identity_kind, username, password_digest, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// scanUser scans a single row into a User. Scan errors, pgx.ErrNoRows
// included, are returned unwrapped for the caller to code.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr     string
		kind      string
		username  string
		digest    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&idStr, &kind, &username, &digest, &createdAt, &updatedAt); err != nil {
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}

	id, err := parseID("USER_INVALID_ID", "user_id", idStr)
	if err != nil {
		return nil, err
	}
	return &auth.User{
		ID:             id,
		Identity:       auth.Identity{Kind: auth.IdentityKind(kind), Value: username},
		PasswordDigest: digest,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
