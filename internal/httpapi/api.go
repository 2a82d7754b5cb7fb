// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the session engine over HTTP with JSON bodies.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/pkg/errutil"
)

// DefaultMaxBodyBytes is used when Options.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 1 << 20

// Engine is the session engine surface served over HTTP.
type Engine interface {
	Signup(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (*auth.TokenPair, error)
	VerifyAccess(ctx context.Context, token string) (*auth.Claims, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	SendOTP(ctx context.Context, contact string) (*auth.OTPSendResult, error)
	VerifyOTP(ctx context.Context, contact, code string) (*auth.OTPLoginResult, error)
}

// Observer receives one observation per served request.
type Observer interface {
	ObserveHTTPRequest(route, method string, status int, elapsed time.Duration)
}

// Options configures the API handler.
type Options struct {
	// BasePath prefixes every route, for example "/auth". Empty mounts at root.
	BasePath       string
	MaxBodyBytes   int64
	AllowedOrigins []string
	Logger         *slog.Logger
	Observer       Observer
}

// API serves the session engine routes.
type API struct {
	engine   Engine
	maxBody  int64
	logger   *slog.Logger
	observer Observer
	cors     *corsPolicy
	basePath string
}

// New creates an API for engine.
func New(engine Engine, opts Options) (*API, error) {
	cors, err := newCORSPolicy(opts.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	a := &API{
		engine:   engine,
		maxBody:  opts.MaxBodyBytes,
		logger:   opts.Logger,
		observer: opts.Observer,
		cors:     cors,
		basePath: strings.TrimSuffix(opts.BasePath, "/"),
	}
	if a.maxBody <= 0 {
		a.maxBody = DefaultMaxBodyBytes
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Handler returns the routed handler with CORS, panic recovery, request
// logging and metrics applied.
func (a *API) Handler() http.Handler {
	root := mux.NewRouter()
	r := root
	if a.basePath != "" {
		r = root.PathPrefix(a.basePath).Subrouter()
	}

	r.HandleFunc("/signup", a.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/verify", a.handleVerify).Methods(http.MethodGet)
	r.HandleFunc("/refresh", a.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/logoutall", a.handleLogoutAll).Methods(http.MethodPost)
	r.HandleFunc("/otp-send", a.handleOTPSend).Methods(http.MethodPost)
	r.HandleFunc("/otp-verify", a.handleOTPVerify).Methods(http.MethodPost)
	r.Use(routeLabel)

	// Subrouters answer their own mismatches.
	for _, router := range []*mux.Router{root, r} {
		router.NotFoundHandler = http.HandlerFunc(notFound)
		router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}

	var h http.Handler = root
	h = a.withRecovery(h)
	h = a.cors.wrap(h)
	return a.withRequestLogging(h)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
}

// fail writes the caller-facing form of err. Unexpected errors are logged
// in full and replaced by a generic message.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	if kind == auth.KindUnexpected {
		errutil.LogErrorContext(r.Context(), a.logger, "request failed", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
	}
	writeJSON(w, statusFor(kind), errorResponse{Error: auth.PublicMessage(err)})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutAllRequest struct {
	UserID string `json:"userId"`
}

type otpRequest struct {
	PhoneNo string `json:"phoneNo"`
	OTP     string `json:"otp"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type loginResponse struct {
	UserID       string `json:"userId"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type verifyUser struct {
	Username string `json:"username"`
	Type     string `json:"type"`
	Exp      int64  `json:"exp"`
}

type verifyResponse struct {
	Valid bool       `json:"valid"`
	User  verifyUser `json:"user"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type logoutAllResponse struct {
	messageResponse
	Count int64 `json:"count"`
}

type otpSendResponse struct {
	messageResponse
	OTP string `json:"otp,omitempty"`
}

type otpVerifyResponse struct {
	Success      bool   `json:"success"`
	NewUser      bool   `json:"newUser"`
	UserID       string `json:"userId"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.engine.Signup(r.Context(), req.Username, req.Password); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "User registered successfully"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	pair, err := a.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		UserID:       pair.UserID.String(),
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	claims, err := a.engine.VerifyAccess(r.Context(), bearerToken(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Valid: true,
		User: verifyUser{
			Username: claims.Username,
			Type:     string(claims.Type),
			Exp:      claims.ExpiresAt.Unix(),
		},
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Token: res.AccessToken, RefreshToken: res.RefreshToken})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out"})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	var req logoutAllRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	count, err := a.engine.LogoutAll(r.Context(), req.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logoutAllResponse{
		messageResponse: messageResponse{Success: true, Message: "Logged out from all sessions"},
		Count:           count,
	})
}

func (a *API) handleOTPSend(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.engine.SendOTP(r.Context(), req.PhoneNo)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, otpSendResponse{
		messageResponse: messageResponse{Success: true, Message: "OTP sent"},
		OTP:             res.Code,
	})
}

func (a *API) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.engine.VerifyOTP(r.Context(), req.PhoneNo, req.OTP)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, otpVerifyResponse{
		Success:      true,
		NewUser:      res.NewUser,
		UserID:       res.UserID.String(),
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
// The scheme is case-insensitive.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Compile-time interface check.
var _ Engine = (*auth.Service)(nil)
