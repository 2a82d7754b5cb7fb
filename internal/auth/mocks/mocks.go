// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth collaborators.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/authd/internal/auth"
)

// TestingT is the subset of *testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(t TestingT, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// userOrNil extracts a *auth.User return that may be a nil interface.
func userOrNil(args mock.Arguments, i int) *auth.User {
	if v := args.Get(i); v != nil {
		return v.(*auth.User)
	}
	return nil
}

// MockUserRepository mocks auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t TestingT) *MockUserRepository {
	m := &MockUserRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByIdentity(ctx context.Context, identity auth.Identity) (*auth.User, error) {
	args := m.Called(ctx, identity)
	return userOrNil(args, 0), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	return userOrNil(args, 0), args.Error(1)
}

// MockRefreshTokenRepository mocks auth.RefreshTokenRepository.
type MockRefreshTokenRepository struct {
	mock.Mock
}

// NewMockRefreshTokenRepository creates a mock that asserts its expectations on cleanup.
func NewMockRefreshTokenRepository(t TestingT) *MockRefreshTokenRepository {
	m := &MockRefreshTokenRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockRefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if v := args.Get(0); v != nil {
		return v.(*auth.RefreshToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRefreshTokenRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	args := m.Called(ctx, tokenHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockRefreshTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// MockOTPRepository mocks auth.OTPRepository.
type MockOTPRepository struct {
	mock.Mock
}

// NewMockOTPRepository creates a mock that asserts its expectations on cleanup.
func NewMockOTPRepository(t TestingT) *MockOTPRepository {
	m := &MockOTPRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockOTPRepository) Create(ctx context.Context, challenge *auth.OTPChallenge) error {
	return m.Called(ctx, challenge).Error(0)
}

func (m *MockOTPRepository) FindActiveMatch(ctx context.Context, contact, code string) (*auth.OTPChallenge, error) {
	args := m.Called(ctx, contact, code)
	if v := args.Get(0); v != nil {
		return v.(*auth.OTPChallenge), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOTPRepository) MarkStatus(ctx context.Context, id ulid.ULID, from []auth.OTPStatus, to auth.OTPStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockOTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(t, &m.Mock)
	return m
}

func (m *MockPasswordHasher) Hash(secret string) (string, error) {
	args := m.Called(secret)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(secret, digest string) (bool, error) {
	args := m.Called(secret, digest)
	return args.Bool(0), args.Error(1)
}

// MockCodeSender mocks auth.CodeSender.
type MockCodeSender struct {
	mock.Mock
}

// NewMockCodeSender creates a mock that asserts its expectations on cleanup.
func NewMockCodeSender(t TestingT) *MockCodeSender {
	m := &MockCodeSender{}
	register(t, &m.Mock)
	return m
}

func (m *MockCodeSender) SendCode(ctx context.Context, contact, code string) error {
	return m.Called(ctx, contact, code).Error(0)
}

var (
	_ auth.UserRepository         = (*MockUserRepository)(nil)
	_ auth.RefreshTokenRepository = (*MockRefreshTokenRepository)(nil)
	_ auth.OTPRepository          = (*MockOTPRepository)(nil)
	_ auth.PasswordHasher         = (*MockPasswordHasher)(nil)
	_ auth.CodeSender             = (*MockCodeSender)(nil)
)
