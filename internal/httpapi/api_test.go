// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/auth/authtest"
)

type observation struct {
	route, method string
	status        int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *recordingObserver) ObserveHTTPRequest(route, method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{route, method, status})
}

func (o *recordingObserver) last() observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seen[len(o.seen)-1]
}

type fixture struct {
	handler  http.Handler
	store    *authtest.Store
	observer *recordingObserver
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, cfg auth.ServiceConfig, opts Options) *fixture {
	t.Helper()
	svc, store := authtest.NewService(t, cfg)
	return newFixtureWithEngine(t, svc, store, opts)
}

func newFixtureWithEngine(t *testing.T, engine Engine, store *authtest.Store, opts Options) *fixture {
	t.Helper()
	logs := &bytes.Buffer{}
	observer := &recordingObserver{}
	if opts.BasePath == "" {
		opts.BasePath = "/auth"
	}
	opts.Logger = slog.New(slog.NewJSONHandler(logs, nil))
	opts.Observer = observer
	api, err := New(engine, opts)
	require.NoError(t, err)
	return &fixture{handler: api.Handler(), store: store, observer: observer, logs: logs}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (f *fixture) login(t *testing.T, username, password string) map[string]any {
	t.Helper()
	rec, _ := f.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body := f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body
}

func TestSignup(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})

	rec, body := f.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": "alice", "password": "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "message": "User registered successfully"}, body)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec, body = f.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, map[string]any{"error": "User already exists"}, body)

	rec, body = f.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username and password required", body["error"])
}

func TestLoginAndVerify(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})
	tokens := f.login(t, "alice", "s3cret")

	assert.NotEmpty(t, tokens["token"])
	assert.NotEmpty(t, tokens["refreshToken"])
	assert.Len(t, tokens["userId"], 26)

	rec, body := f.do(t, http.MethodGet, "/auth/verify", nil, "Authorization", "Bearer "+tokens["token"].(string))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "access", user["type"])
	assert.Greater(t, user["exp"].(float64), float64(time.Now().Unix()))

	rec, _ = f.do(t, http.MethodGet, "/auth/verify", nil, "Authorization", "bearer "+tokens["token"].(string))
	assert.Equal(t, http.StatusOK, rec.Code, "scheme is case-insensitive")
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})
	f.login(t, "alice", "s3cret")

	wrongPass, wrongBody := f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "nope"})
	noUser, noUserBody := f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "mallory", "password": "nope"})

	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, http.StatusUnauthorized, noUser.Code)
	assert.Equal(t, wrongBody, noUserBody)
	assert.Equal(t, "Invalid credentials", wrongBody["error"])
}

func TestVerify_Rejections(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})
	tokens := f.login(t, "alice", "s3cret")

	tests := []struct {
		name   string
		header []string
	}{
		{"no header", nil},
		{"wrong scheme", []string{"Authorization", "Basic " + tokens["token"].(string)}},
		{"garbage", []string{"Authorization", "Bearer not.a.jwt"}},
		{"refresh token used as access", []string{"Authorization", "Bearer " + tokens["refreshToken"].(string)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodGet, "/auth/verify", nil, tt.header...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Unauthorized", body["error"])
		})
	}
}

func TestRefresh_WithoutRotation(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})
	tokens := f.login(t, "alice", "s3cret")
	refresh := map[string]any{"refreshToken": tokens["refreshToken"]}

	for range 2 {
		rec, body := f.do(t, http.MethodPost, "/auth/refresh", refresh)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, body["token"])
		assert.NotContains(t, body, "refreshToken", "refresh token is reusable and not reissued")
	}

	rec, body := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Refresh token required", body["error"])

	rec, body = f.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refreshToken": tokens["token"]})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "access tokens are not in the ledger")
	assert.Equal(t, "Refresh token revoked or invalid", body["error"])
}

func TestRefresh_WithRotation(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{RotateRefreshTokens: true}, Options{})
	tokens := f.login(t, "alice", "s3cret")

	rec, body := f.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refreshToken": tokens["refreshToken"]})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["refreshToken"])
	assert.NotEqual(t, tokens["refreshToken"], body["refreshToken"])

	rec, _ = f.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refreshToken": tokens["refreshToken"]})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "consumed token cannot be replayed")
}

func TestLogout(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})
	tokens := f.login(t, "alice", "s3cret")
	refresh := map[string]any{"refreshToken": tokens["refreshToken"]}

	rec, body := f.do(t, http.MethodPost, "/auth/logout", refresh)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "message": "Logged out"}, body)

	rec, body = f.do(t, http.MethodPost, "/auth/logout", refresh)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Refresh token not found", body["error"])

	rec, _ = f.do(t, http.MethodPost, "/auth/refresh", refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Access tokens outlive logout until they expire.
	rec, _ = f.do(t, http.MethodGet, "/auth/verify", nil, "Authorization", "Bearer "+tokens["token"].(string))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})
	first := f.login(t, "alice", "s3cret")
	rec, _ := f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/auth/logoutall", map[string]any{"userId": first["userId"]})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Logged out from all sessions", body["message"])
	assert.Equal(t, float64(2), body["count"])

	rec, body = f.do(t, http.MethodPost, "/auth/logoutall", map[string]any{"userId": first["userId"]})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No active sessions", body["error"])

	rec, body = f.do(t, http.MethodPost, "/auth/logoutall", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User ID required", body["error"])

	rec, _ = f.do(t, http.MethodPost, "/auth/logoutall", map[string]any{"userId": "42"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOTPFlow(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{ExposeOTPCode: true}, Options{})
	phone := map[string]any{"phoneNo": "+15550100"}

	rec, body := f.do(t, http.MethodPost, "/auth/otp-send", phone)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "OTP sent", body["message"])
	code, _ := body["otp"].(string)
	require.Len(t, code, auth.OTPCodeLength)

	rec, body = f.do(t, http.MethodPost, "/auth/otp-verify", map[string]any{"phoneNo": "+15550100", "otp": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["newUser"])
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["refreshToken"])

	rec, body = f.do(t, http.MethodPost, "/auth/otp-verify", map[string]any{"phoneNo": "+15550100", "otp": code})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a code succeeds at most once")
	assert.Equal(t, "Invalid or expired OTP", body["error"])

	rec, body = f.do(t, http.MethodPost, "/auth/otp-verify", map[string]any{"phoneNo": "+15550100"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Phone number and OTP required", body["error"])

	rec, body = f.do(t, http.MethodPost, "/auth/otp-send", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Phone number required", body["error"])
}

func TestOTPSend_HidesCodeByDefault(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})
	rec, body := f.do(t, http.MethodPost, "/auth/otp-send", map[string]any{"phoneNo": "+15550100"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, body, "otp")
}

func TestRequestBodies(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{MaxBodyBytes: 64})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"malformed json", `{"username":`, http.StatusBadRequest, "Invalid request body"},
		{"wrong field type", `{"username": 7, "password": "x"}`, http.StatusBadRequest, "Invalid request body"},
		{"trailing data", `{"username":"a","password":"b"} {}`, http.StatusBadRequest, "Invalid request body"},
		{"too large", `{"username":"` + strings.Repeat("a", 100) + `","password":"b"}`, http.StatusBadRequest, "Invalid request body"},
		{"empty body", ``, http.StatusBadRequest, "Username and password required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodPost, "/auth/signup", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, body["error"])
		})
	}

	rec, _ := f.do(t, http.MethodPost, "/auth/signup", `{"username":"a","password":"b","extra":1}`)
	assert.Equal(t, http.StatusOK, rec.Code, "unknown fields are ignored")
}

func TestRouting(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})

	rec, body := f.do(t, http.MethodGet, "/auth/login", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", body["error"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec, body = f.do(t, http.MethodPost, "/auth/verify", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", body["error"])

	rec, body = f.do(t, http.MethodPost, "/auth/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", body["error"])

	rec, _ = f.do(t, http.MethodPost, "/signup", map[string]string{"username": "a", "password": "b"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "routes live under the base path")
	assert.Equal(t, unmatchedRoute, f.observer.last().route)
}

func TestRouting_RootMount(t *testing.T) {
	svc, store := authtest.NewService(t, auth.ServiceConfig{})
	api, err := New(svc, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	f := &fixture{handler: api.Handler(), store: store}

	rec, _ := f.do(t, http.MethodPost, "/signup", map[string]string{"username": "a", "password": "b"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.do(t, http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", body["error"])

	rec, body = f.do(t, http.MethodGet, "/auth/login", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", body["error"])
}

func TestObserverAndRequestLog(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{})
	f.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "ghost", "password": "x"})

	assert.Equal(t, observation{"/auth/login", http.MethodPost, http.StatusUnauthorized}, f.observer.last())
	assert.Contains(t, f.logs.String(), `"msg":"http.request"`)
	assert.Contains(t, f.logs.String(), `"status":401`)
	assert.NotContains(t, f.logs.String(), `"request failed"`, "expected failures are not error-logged")
}

type stubEngine struct {
	Engine
	signupErr error
	panicMsg  string
}

func (s stubEngine) Signup(context.Context, string, string) error {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.signupErr
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	f := newFixtureWithEngine(t, stubEngine{signupErr: errors.New("pq: connection to 10.0.0.5 refused")}, nil, Options{})

	rec, body := f.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": "a", "password": "b"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "Something went wrong"}, body)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Contains(t, f.logs.String(), "10.0.0.5", "full detail is logged server-side")
}

func TestPanicRecovery(t *testing.T) {
	f := newFixtureWithEngine(t, stubEngine{panicMsg: "boom"}, nil, Options{})

	rec, body := f.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": "a", "password": "b"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Something went wrong", body["error"])
	assert.Equal(t, http.StatusInternalServerError, f.observer.last().status)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{AllowedOrigins: []string{"https://*.example.com", "http://localhost:*"}})

	preflight := func(origin string) *httptest.ResponseRecorder {
		rec, _ := f.do(t, http.MethodOptions, "/auth/login", nil,
			"Origin", origin,
			"Access-Control-Request-Method", http.MethodPost)
		return rec
	}

	rec := preflight("https://app.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	rec = preflight("http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight("https://evil.test")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = f.do(t, http.MethodPost, "/auth/signup", map[string]string{"username": "a", "password": "b"},
		"Origin", "https://app.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Wildcard(t *testing.T) {
	f := newFixture(t, auth.ServiceConfig{}, Options{AllowedOrigins: []string{"*"}})
	rec, _ := f.do(t, http.MethodOptions, "/auth/verify", nil,
		"Origin", "https://anywhere.test",
		"Access-Control-Request-Method", http.MethodGet)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"Bearer":         "",
		"Bearer abc":     "abc",
		"BEARER  abc ":   "abc",
		"Token abc":      "",
		"Basic dXNlcjpw": "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, bearerToken(r), "header %q", header)
	}
}
