// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned by repositories when a unique key is taken.
var ErrAlreadyExists = errors.New("already exists")

// Kind classifies an error for callers of the Service.
type Kind int

// Error kinds.
const (
	KindUnexpected Kind = iota
	KindBadRequest
	KindUnauthorized
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// Caller-facing error codes raised by the Service.
const (
	CodeMissingCredentials   = "AUTH_MISSING_CREDENTIALS"
	CodeUsernameTooLong      = "AUTH_USERNAME_TOO_LONG"
	CodeUserExists           = "AUTH_USER_EXISTS"
	CodeInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	CodeTokenMissing         = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid         = "AUTH_TOKEN_INVALID"
	CodeRefreshTokenRequired = "AUTH_REFRESH_TOKEN_REQUIRED"
	CodeRefreshRevoked       = "AUTH_REFRESH_REVOKED"
	CodeNotRefreshToken      = "AUTH_NOT_REFRESH_TOKEN"
	CodeRefreshInvalid       = "AUTH_REFRESH_INVALID"
	CodeRefreshNotFound      = "AUTH_REFRESH_NOT_FOUND"
	CodeUserIDRequired       = "AUTH_USER_ID_REQUIRED"
	CodeUserIDInvalid        = "AUTH_USER_ID_INVALID"
	CodeNoActiveSessions     = "AUTH_NO_ACTIVE_SESSIONS"
	CodePhoneRequired        = "AUTH_PHONE_REQUIRED"
	CodePhoneInvalid         = "AUTH_PHONE_INVALID"
	CodeOTPRequired          = "AUTH_OTP_REQUIRED"
	CodeOTPInvalid           = "AUTH_OTP_INVALID"
	CodeRequestMalformed     = "REQUEST_MALFORMED"
)

var codeKinds = map[string]Kind{
	CodeMissingCredentials:   KindBadRequest,
	CodeUsernameTooLong:      KindBadRequest,
	CodeUserExists:           KindConflict,
	CodeInvalidCredentials:   KindUnauthorized,
	CodeTokenMissing:         KindUnauthorized,
	CodeTokenInvalid:         KindUnauthorized,
	CodeRefreshTokenRequired: KindBadRequest,
	CodeRefreshRevoked:       KindUnauthorized,
	CodeNotRefreshToken:      KindUnauthorized,
	CodeRefreshInvalid:       KindUnauthorized,
	CodeRefreshNotFound:      KindBadRequest,
	CodeUserIDRequired:       KindBadRequest,
	CodeUserIDInvalid:        KindBadRequest,
	CodeNoActiveSessions:     KindBadRequest,
	CodePhoneRequired:        KindBadRequest,
	CodePhoneInvalid:         KindBadRequest,
	CodeOTPRequired:          KindBadRequest,
	CodeOTPInvalid:           KindUnauthorized,
	CodeRequestMalformed:     KindBadRequest,
}

// UnexpectedMessage is the only message callers see for KindUnexpected.
const UnexpectedMessage = "Something went wrong"

// KindOf classifies err. Errors without a known caller-facing code,
// including every storage and hashing fault, are KindUnexpected.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnexpected
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindUnexpected
	}
	code, _ := oopsErr.Code().(string)
	if kind, known := codeKinds[code]; known {
		return kind
	}
	return KindUnexpected
}

// PublicMessage returns the message safe to show to the caller.
func PublicMessage(err error) string {
	if KindOf(err) == KindUnexpected {
		return UnexpectedMessage
	}
	return err.Error()
}

// newError builds a caller-facing error. The message is returned verbatim
// to callers, so it must not carry internal detail.
func newError(code, msg string) error {
	return oops.Code(code).Errorf("%s", msg)
}
