// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides in-memory auth repositories and helpers for tests.
package authtest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authd/internal/auth"
)

// Store holds users, refresh tokens and OTP challenges in memory. Each
// method runs under one lock, so conditional updates are atomic the same
// way single-row statements are in PostgreSQL.
type Store struct {
	mu         sync.Mutex
	users      map[ulid.ULID]auth.User
	tokens     map[string]auth.RefreshToken // by token hash
	challenges map[ulid.ULID]auth.OTPChallenge
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:      make(map[ulid.ULID]auth.User),
		tokens:     make(map[string]auth.RefreshToken),
		challenges: make(map[ulid.ULID]auth.OTPChallenge),
	}
}

// Users returns the store's user directory.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// RefreshTokens returns the store's refresh token ledger.
func (s *Store) RefreshTokens() *RefreshTokenRepository { return &RefreshTokenRepository{s: s} }

// OTPs returns the store's OTP challenge store.
func (s *Store) OTPs() *OTPRepository { return &OTPRepository{s: s} }

// Challenge returns a copy of the challenge with id.
func (s *Store) Challenge(id ulid.ULID) (auth.OTPChallenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	return c, ok
}

// ChallengesFor returns the challenges for contact, oldest first.
func (s *Store) ChallengesFor(contact string) []auth.OTPChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.OTPChallenge
	for _, c := range s.challenges {
		if c.Contact == contact {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// ExpireChallenges moves the expiry of every challenge for contact to at.
func (s *Store) ExpireChallenges(contact string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.challenges {
		if c.Contact == contact {
			c.ExpiresAt = at
			s.challenges[id] = c
		}
	}
}

// TokenCount returns the number of ledgered refresh tokens for userID.
func (s *Store) TokenCount(userID ulid.ULID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// UserRepository is an in-memory auth.UserRepository.
type UserRepository struct{ s *Store }

// Create implements auth.UserRepository.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Identity == user.Identity {
			return auth.ErrAlreadyExists
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

// GetByIdentity implements auth.UserRepository.
func (r *UserRepository) GetByIdentity(_ context.Context, identity auth.Identity) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Identity == identity {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

// GetByID implements auth.UserRepository.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

// RefreshTokenRepository is an in-memory auth.RefreshTokenRepository.
type RefreshTokenRepository struct{ s *Store }

// Create implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) Create(_ context.Context, token *auth.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.tokens[token.TokenHash]; exists {
		return auth.ErrAlreadyExists
	}
	r.s.tokens[token.TokenHash] = *token
	return nil
}

// GetByTokenHash implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &t, nil
}

// DeleteByTokenHash implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) DeleteByTokenHash(_ context.Context, tokenHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[tokenHash]; !ok {
		return false, nil
	}
	delete(r.s.tokens, tokenHash)
	return true, nil
}

// DeleteByUser implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for hash, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, hash)
			n++
		}
	}
	return n, nil
}

// DeleteExpired implements auth.RefreshTokenRepository.
func (r *RefreshTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for hash, t := range r.s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.s.tokens, hash)
			n++
		}
	}
	return n, nil
}

// OTPRepository is an in-memory auth.OTPRepository.
type OTPRepository struct{ s *Store }

// Create implements auth.OTPRepository.
func (r *OTPRepository) Create(_ context.Context, challenge *auth.OTPChallenge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.challenges[challenge.ID] = *challenge
	return nil
}

// FindActiveMatch implements auth.OTPRepository.
func (r *OTPRepository) FindActiveMatch(_ context.Context, contact, code string) (*auth.OTPChallenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var newest *auth.OTPChallenge
	for _, c := range r.s.challenges {
		if c.Contact != contact || c.Code != code || !c.Status.IsActive() {
			continue
		}
		if newest == nil || c.ID.Compare(newest.ID) > 0 {
			match := c
			newest = &match
		}
	}
	if newest == nil {
		return nil, auth.ErrNotFound
	}
	return newest, nil
}

// MarkStatus implements auth.OTPRepository.
func (r *OTPRepository) MarkStatus(_ context.Context, id ulid.ULID, from []auth.OTPStatus, to auth.OTPStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challenges[id]
	if !ok || !slices.Contains(from, c.Status) || !c.Status.CanTransitionTo(to) {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	r.s.challenges[id] = c
	return true, nil
}

// DeleteExpired implements auth.OTPRepository.
func (r *OTPRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, c := range r.s.challenges {
		if c.ExpiresAt.Before(before) {
			delete(r.s.challenges, id)
			n++
		}
	}
	return n, nil
}

var (
	_ auth.UserRepository         = (*UserRepository)(nil)
	_ auth.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
	_ auth.OTPRepository          = (*OTPRepository)(nil)
)
