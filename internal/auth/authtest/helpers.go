// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/authd/internal/auth"
)

// TokenSecret is a codec secret long enough for auth.NewJWTCodec.
const TokenSecret = "test-secret-0123456789abcdef0123456789abcdef"

// FastHasher returns an argon2id hasher with minimal cost, for tests only.
func FastHasher(t testing.TB) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time:    1,
		Memory:  64,
		Threads: 1,
		SaltLen: 16,
		KeyLen:  32,
	})
	require.NoError(t, err)
	return h
}

// Codec returns a JWTCodec keyed with TokenSecret.
func Codec(t testing.TB, opts ...auth.JWTCodecOption) *auth.JWTCodec {
	t.Helper()
	c, err := auth.NewJWTCodec([]byte(TokenSecret), "authd-test", opts...)
	require.NoError(t, err)
	return c
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// CapturingSender is a CodeSender that remembers the last code per contact.
type CapturingSender struct {
	mu    sync.Mutex
	codes map[string]string
	Err   error
}

// NewCapturingSender creates an empty CapturingSender.
func NewCapturingSender() *CapturingSender {
	return &CapturingSender{codes: make(map[string]string)}
}

// SendCode implements auth.CodeSender.
func (s *CapturingSender) SendCode(_ context.Context, contact, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.codes[contact] = code
	return nil
}

// LastCode returns the last code sent to contact.
func (s *CapturingSender) LastCode(contact string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[contact]
}

// NewService builds a Service over a fresh Store with a fast hasher and a
// test codec.
func NewService(t testing.TB, cfg auth.ServiceConfig, opts ...auth.ServiceOption) (*auth.Service, *Store) {
	t.Helper()
	store := NewStore()
	svc, err := auth.NewService(
		store.Users(),
		store.RefreshTokens(),
		store.OTPs(),
		FastHasher(t),
		Codec(t),
		cfg,
		opts...,
	)
	require.NoError(t, err)
	return svc, store
}
