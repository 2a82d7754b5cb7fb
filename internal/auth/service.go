// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("authd/auth")

// DefaultAccessTokenTTL is used when ServiceConfig.AccessTokenTTL is zero.
const DefaultAccessTokenTTL = 15 * time.Minute

// fallbackDummyDigest is verified against when a login names an unknown
// user and no hasher-specific dummy digest could be made. It matches no
// password.
//
//nolint:gosec // G101: not a credential.
const fallbackDummyDigest = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Operation names used for spans and metrics.
const (
	OpSignup    = "signup"
	OpLogin     = "login"
	OpVerify    = "verify"
	OpRefresh   = "refresh"
	OpLogout    = "logout"
	OpLogoutAll = "logout_all"
	OpOTPSend   = "otp_send"
	OpOTPVerify = "otp_verify"
	OpCleanup   = "cleanup"
)

const (
	outcomeOK    = "ok"
	maxPhoneSize = MaxUsernameLength
)

// Recorder receives the outcome of every Service operation.
type Recorder interface {
	RecordAuthOperation(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOperation(string, string) {}

// ServiceConfig holds the tunable policy of a Service.
type ServiceConfig struct {
	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// ExposeOTPCode returns issued OTP codes to the caller of SendOTP.
	// Only for development and test deployments.
	ExposeOTPCode bool

	// RotateRefreshTokens makes Refresh consume the presented refresh token
	// and issue a new one.
	RotateRefreshTokens bool
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	UserID       ulid.ULID
	AccessToken  string
	RefreshToken string
}

// RefreshResult is the result of a successful refresh. RefreshToken is only
// set when rotation is enabled.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// OTPSendResult is the result of SendOTP. Code is empty unless the service
// is configured to expose codes.
type OTPSendResult struct {
	Code      string
	ExpiresAt time.Time
}

// OTPLoginResult is the result of a successful VerifyOTP.
type OTPLoginResult struct {
	TokenPair
	NewUser bool
}

// CleanupResult counts rows removed by Cleanup.
type CleanupResult struct {
	RefreshTokens int64
	OTPChallenges int64
}

// Service is the session engine. It composes the user directory, refresh
// token ledger, OTP store, hasher and token codec.
type Service struct {
	users    UserRepository
	tokens   RefreshTokenRepository
	otps     OTPRepository
	hasher   PasswordHasher
	codec    TokenCodec
	sender   CodeSender
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	cfg      ServiceConfig

	dummyOnce   sync.Once
	dummyDigest string
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCodeSender sets the OTP delivery collaborator.
func WithCodeSender(sender CodeSender) ServiceOption {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithRecorder sets the operation outcome recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithNow overrides the service clock.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. All repositories, the hasher and the codec
// are required.
func NewService(
	users UserRepository,
	tokens RefreshTokenRepository,
	otps OTPRepository,
	hasher PasswordHasher,
	codec TokenCodec,
	cfg ServiceConfig,
	opts ...ServiceOption,
) (*Service, error) {
	switch {
	case users == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("users repository is required")
	case tokens == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("refresh token repository is required")
	case otps == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("otp repository is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	case codec == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token codec is required")
	}
	if cfg.AccessTokenTTL < 0 {
		return nil, oops.Code("AUTH_INVALID_SERVICE").
			With("access_token_ttl", cfg.AccessTokenTTL).
			Errorf("access token ttl cannot be negative")
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}

	s := &Service{
		users:    users,
		tokens:   tokens,
		otps:     otps,
		hasher:   hasher,
		codec:    codec,
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sender == nil {
		s.sender = LogSender{Logger: s.logger}
	}
	return s, nil
}

// stamp sets both record timestamps from the service clock.
func (s *Service) stamp(createdAt, updatedAt *time.Time) {
	now := s.now()
	*createdAt, *updatedAt = now, now
}

// begin starts a span for op. The returned func must be deferred with a
// pointer to the operation's named error result.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := tracer.Start(ctx, "auth."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		outcome := outcomeOK
		if err := *errp; err != nil {
			kind := KindOf(err)
			outcome = kind.String()
			span.SetAttributes(attribute.String("auth.error_kind", outcome))
			if kind == KindUnexpected {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		s.recorder.RecordAuthOperation(op, outcome)
		span.End()
	}
}

// Signup registers a password user. No tokens are issued.
func (s *Service) Signup(ctx context.Context, username, password string) (err error) {
	ctx, end := s.begin(ctx, OpSignup)
	defer end(&err)

	if username == "" || password == "" {
		return newError(CodeMissingCredentials, "Username and password required")
	}
	if len(username) > MaxUsernameLength {
		return newError(CodeUsernameTooLong, "Username too long")
	}

	identity := PasswordIdentity(username)
	_, lookupErr := s.users.GetByIdentity(ctx, identity)
	switch {
	case lookupErr == nil:
		return newError(CodeUserExists, "User already exists")
	case !errors.Is(lookupErr, ErrNotFound):
		return oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "get user by identity").
			Wrap(lookupErr)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(identity, digest)
	if err != nil {
		return oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "build user").
			Wrap(err)
	}
	s.stamp(&user.CreatedAt, &user.UpdatedAt)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return newError(CodeUserExists, "User already exists")
		}
		return oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return nil
}

// Login authenticates a password user and issues a token pair. Unknown users
// and wrong passwords fail identically, and both run a full hash verify.
func (s *Service) Login(ctx context.Context, username, password string) (pair *TokenPair, err error) {
	ctx, end := s.begin(ctx, OpLogin)
	defer end(&err)

	if username == "" || password == "" {
		return nil, newError(CodeMissingCredentials, "Username and password required")
	}

	user, lookupErr := s.users.GetByIdentity(ctx, PasswordIdentity(username))
	var digest string
	switch {
	case lookupErr == nil:
		digest = user.PasswordDigest
	case errors.Is(lookupErr, ErrNotFound):
		user = nil
		digest = s.dummy()
	default:
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by identity").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, digest)
	if verifyErr != nil {
		if user == nil {
			return nil, newError(CodeInvalidCredentials, "Invalid credentials")
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if user == nil || !valid {
		return nil, newError(CodeInvalidCredentials, "Invalid credentials")
	}

	return s.issueTokens(ctx, user)
}

// dummy returns a digest made by the configured hasher, so the unknown-user
// path costs the same as a real verify.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			s.dummyDigest = fallbackDummyDigest
			return
		}
		digest, err := s.hasher.Hash(hex.EncodeToString(buf))
		if err != nil || digest == "" {
			s.dummyDigest = fallbackDummyDigest
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

// issueTokens signs an access and a refresh token for user and ledgers the
// refresh token before returning it. It is the only place tokens are minted.
func (s *Service) issueTokens(ctx context.Context, user *User) (*TokenPair, error) {
	access, _, err := s.codec.Sign(user.Username(), TokenAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "sign access token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	refresh, refreshClaims, err := s.codec.Sign(user.Username(), TokenRefresh, RefreshTokenTTL)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "sign refresh token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	expiresAt := refreshClaims.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(RefreshTokenTTL)
	}
	record, err := NewRefreshToken(user.ID, refresh, expiresAt)
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "build refresh token record").
			Wrap(err)
	}
	s.stamp(&record.CreatedAt, &record.UpdatedAt)
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "persist refresh token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return &TokenPair{
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// VerifyAccess validates an access token. It never consults the ledger, so
// revoked sessions keep working until their access tokens expire.
func (s *Service) VerifyAccess(ctx context.Context, token string) (claims *Claims, err error) {
	_, end := s.begin(ctx, OpVerify)
	defer end(&err)

	if token == "" {
		return nil, newError(CodeTokenMissing, "Unauthorized")
	}
	claims, err = s.codec.Verify(token)
	if err != nil {
		if KindOf(err) == KindUnauthorized {
			return nil, err
		}
		return nil, oops.Code(CodeTokenInvalid).
			With("cause", err.Error()).
			Errorf("Unauthorized")
	}
	if claims.Type != TokenAccess {
		return nil, oops.Code(CodeTokenInvalid).
			With("type", string(claims.Type)).
			Errorf("Unauthorized")
	}
	return claims, nil
}

// Refresh mints a new access token from a ledgered refresh token. The ledger
// is checked first; a token missing from it is revoked regardless of its
// signature. Without rotation the refresh token stays valid for reuse.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (result *RefreshResult, err error) {
	ctx, end := s.begin(ctx, OpRefresh, attribute.Bool("auth.rotate", s.cfg.RotateRefreshTokens))
	defer end(&err)

	if refreshToken == "" {
		return nil, newError(CodeRefreshTokenRequired, "Refresh token required")
	}

	tokenHash := HashRefreshToken(refreshToken)
	record, err := s.tokens.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(CodeRefreshRevoked, "Refresh token revoked or invalid")
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get refresh token").
			Wrap(err)
	}

	claims, verifyErr := s.codec.Verify(refreshToken)
	if verifyErr != nil {
		return nil, newError(CodeRefreshInvalid, "Invalid refresh token")
	}
	if claims.Type != TokenRefresh {
		return nil, newError(CodeNotRefreshToken, "Not a refresh token")
	}
	if record.IsExpiredAt(s.now()) {
		return nil, newError(CodeRefreshInvalid, "Invalid refresh token")
	}

	if s.cfg.RotateRefreshTokens {
		return s.rotate(ctx, record, tokenHash)
	}

	access, _, err := s.codec.Sign(claims.Username, TokenAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "sign access token").
			Wrap(err)
	}
	return &RefreshResult{AccessToken: access}, nil
}

// rotate consumes the presented refresh token and issues a new pair. When two
// refreshes race on one token only the caller whose delete removed the row
// gets tokens.
func (s *Service) rotate(ctx context.Context, record *RefreshToken, tokenHash string) (*RefreshResult, error) {
	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(CodeRefreshRevoked, "Refresh token revoked or invalid")
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get user by id").
			With("user_id", record.UserID.String()).
			Wrap(err)
	}

	removed, err := s.tokens.DeleteByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "consume refresh token").
			Wrap(err)
	}
	if !removed {
		return nil, newError(CodeRefreshRevoked, "Refresh token revoked or invalid")
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Logout revokes a single refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, end := s.begin(ctx, OpLogout)
	defer end(&err)

	if refreshToken == "" {
		return newError(CodeRefreshTokenRequired, "Refresh token required")
	}

	removed, err := s.tokens.DeleteByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete refresh token").
			Wrap(err)
	}
	if !removed {
		return newError(CodeRefreshNotFound, "Refresh token not found")
	}
	return nil
}

// LogoutAll revokes every refresh token of a user and returns the count.
func (s *Service) LogoutAll(ctx context.Context, userID string) (count int64, err error) {
	ctx, end := s.begin(ctx, OpLogoutAll)
	defer end(&err)

	if userID == "" {
		return 0, newError(CodeUserIDRequired, "User ID required")
	}
	id, parseErr := ulid.ParseStrict(userID)
	if parseErr != nil {
		return 0, newError(CodeUserIDInvalid, "Invalid user ID")
	}

	count, err = s.tokens.DeleteByUser(ctx, id)
	if err != nil {
		return 0, oops.Code("AUTH_LOGOUT_ALL_FAILED").
			With("operation", "delete refresh tokens by user").
			With("user_id", userID).
			Wrap(err)
	}
	if count == 0 {
		return 0, newError(CodeNoActiveSessions, "No active sessions")
	}

	s.logger.InfoContext(ctx, "sessions revoked", "user_id", userID, "count", count)
	return count, nil
}

// SendOTP issues a new challenge for contact and hands the code to the
// configured CodeSender.
func (s *Service) SendOTP(ctx context.Context, contact string) (result *OTPSendResult, err error) {
	ctx, end := s.begin(ctx, OpOTPSend)
	defer end(&err)

	if contact == "" {
		return nil, newError(CodePhoneRequired, "Phone number required")
	}
	if len(contact) > maxPhoneSize {
		return nil, newError(CodePhoneInvalid, "Invalid phone number")
	}

	code, err := GenerateOTPCode()
	if err != nil {
		return nil, oops.Code("AUTH_OTP_SEND_FAILED").Wrap(err)
	}

	challenge, err := NewOTPChallenge(contact, code, s.now().Add(OTPTTL))
	if err != nil {
		return nil, oops.Code("AUTH_OTP_SEND_FAILED").
			With("operation", "build challenge").
			Wrap(err)
	}
	s.stamp(&challenge.CreatedAt, &challenge.UpdatedAt)
	if err := s.otps.Create(ctx, challenge); err != nil {
		return nil, oops.Code("AUTH_OTP_SEND_FAILED").
			With("operation", "persist challenge").
			Wrap(err)
	}

	if sendErr := s.sender.SendCode(ctx, contact, code); sendErr != nil {
		if _, markErr := s.otps.MarkStatus(ctx, challenge.ID, []OTPStatus{OTPGenerated}, OTPFailed); markErr != nil {
			s.logger.WarnContext(ctx, "failed to mark undelivered otp challenge",
				"challenge_id", challenge.ID.String(), "error", markErr)
		}
		return nil, oops.Code("AUTH_OTP_SEND_FAILED").
			With("operation", "deliver code").
			With("challenge_id", challenge.ID.String()).
			Wrap(sendErr)
	}

	// A verify may already have consumed the challenge while it was
	// still generated; losing this transition is fine.
	if _, err := s.otps.MarkStatus(ctx, challenge.ID, []OTPStatus{OTPGenerated}, OTPSent); err != nil {
		return nil, oops.Code("AUTH_OTP_SEND_FAILED").
			With("operation", "mark challenge sent").
			With("challenge_id", challenge.ID.String()).
			Wrap(err)
	}

	result = &OTPSendResult{ExpiresAt: challenge.ExpiresAt}
	if s.cfg.ExposeOTPCode {
		result.Code = code
	}
	return result, nil
}

// VerifyOTP consumes a challenge and logs the contact in, creating a phone
// user on first use. For an existing user all prior refresh tokens are
// revoked first. A code can succeed at most once.
func (s *Service) VerifyOTP(ctx context.Context, contact, code string) (result *OTPLoginResult, err error) {
	ctx, end := s.begin(ctx, OpOTPVerify)
	defer end(&err)

	if contact == "" || code == "" {
		return nil, newError(CodeOTPRequired, "Phone number and OTP required")
	}

	challenge, err := s.otps.FindActiveMatch(ctx, contact, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(CodeOTPInvalid, "Invalid or expired OTP")
		}
		return nil, oops.Code("AUTH_OTP_VERIFY_FAILED").
			With("operation", "find challenge").
			Wrap(err)
	}

	if !challenge.IsValidAt(s.now()) {
		if _, markErr := s.otps.MarkStatus(ctx, challenge.ID, ActiveOTPStatuses, OTPFailed); markErr != nil {
			s.logger.WarnContext(ctx, "failed to mark expired otp challenge",
				"challenge_id", challenge.ID.String(), "error", markErr)
		}
		return nil, newError(CodeOTPInvalid, "Invalid or expired OTP")
	}

	consumed, err := s.otps.MarkStatus(ctx, challenge.ID, ActiveOTPStatuses, OTPVerified)
	if err != nil {
		return nil, oops.Code("AUTH_OTP_VERIFY_FAILED").
			With("operation", "consume challenge").
			With("challenge_id", challenge.ID.String()).
			Wrap(err)
	}
	if !consumed {
		return nil, newError(CodeOTPInvalid, "Invalid or expired OTP")
	}

	user, newUser, err := s.resolvePhoneUser(ctx, contact)
	if err != nil {
		return nil, err
	}

	if newUser {
		if _, err := s.otps.MarkStatus(ctx, challenge.ID, []OTPStatus{OTPVerified}, OTPUserCreated); err != nil {
			return nil, oops.Code("AUTH_OTP_VERIFY_FAILED").
				With("operation", "mark user created").
				With("challenge_id", challenge.ID.String()).
				Wrap(err)
		}
	} else {
		revoked, err := s.tokens.DeleteByUser(ctx, user.ID)
		if err != nil {
			return nil, oops.Code("AUTH_OTP_VERIFY_FAILED").
				With("operation", "revoke prior sessions").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		if revoked > 0 {
			s.logger.InfoContext(ctx, "sessions revoked by otp login",
				"user_id", user.ID.String(), "count", revoked)
		}
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &OTPLoginResult{TokenPair: *pair, NewUser: newUser}, nil
}

// resolvePhoneUser finds or creates the phone user for contact.
func (s *Service) resolvePhoneUser(ctx context.Context, contact string) (*User, bool, error) {
	identity := PhoneIdentity(contact)

	user, err := s.users.GetByIdentity(ctx, identity)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, oops.Code("AUTH_OTP_VERIFY_FAILED").
			With("operation", "get user by identity").
			Wrap(err)
	}

	user, err = NewUser(identity, "")
	if err != nil {
		return nil, false, oops.Code("AUTH_OTP_VERIFY_FAILED").
			With("operation", "build user").
			Wrap(err)
	}
	s.stamp(&user.CreatedAt, &user.UpdatedAt)
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, false, oops.Code("AUTH_OTP_VERIFY_FAILED").
				With("operation", "create user").
				Wrap(err)
		}
		// Another challenge for the same contact created the user first.
		existing, getErr := s.users.GetByIdentity(ctx, identity)
		if getErr != nil {
			return nil, false, oops.Code("AUTH_OTP_VERIFY_FAILED").
				With("operation", "get user after create conflict").
				Wrap(getErr)
		}
		return existing, false, nil
	}

	s.logger.InfoContext(ctx, "user registered by otp", "user_id", user.ID.String())
	return user, true, nil
}

// Cleanup removes refresh tokens that have expired and OTP challenges that
// expired more than retention ago. The server never calls it; it backs the
// cleanup command.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (result *CleanupResult, err error) {
	ctx, end := s.begin(ctx, OpCleanup)
	defer end(&err)

	if retention < 0 {
		return nil, oops.Code("AUTH_CLEANUP_FAILED").
			With("retention", retention).
			Errorf("retention cannot be negative")
	}

	now := s.now()
	tokens, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return nil, oops.Code("AUTH_CLEANUP_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	challenges, err := s.otps.DeleteExpired(ctx, now.Add(-retention))
	if err != nil {
		return nil, oops.Code("AUTH_CLEANUP_FAILED").
			With("operation", "delete expired otp challenges").
			Wrap(err)
	}
	return &CleanupResult{RefreshTokens: tokens, OTPChallenges: challenges}, nil
}
