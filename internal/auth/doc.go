// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth issues, verifies and revokes session credentials.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User for a password or phone Identity
//   - NewRefreshToken - creates a ledger entry holding the token digest
//   - NewOTPChallenge - creates a challenge in the generated status
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Collaborators
//
//   - PasswordHasher - one-way secret hashing (Argon2idHasher)
//   - TokenCodec - signed bearer tokens (JWTCodec)
//   - UserRepository, RefreshTokenRepository, OTPRepository - persistence
//   - CodeSender - OTP delivery
//
// # Service
//
// Service is the session engine: signup, password login, OTP login, refresh,
// logout, logout-all and access verification. Every error it returns can be
// classified with KindOf; only errors of a known kind carry caller-safe
// messages.
package auth
