package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/delivery"
	"github.com/MrEthical07/phoneauth/otp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	testPhone    = "+14155550123"
	testCode     = "482913"
	testPassword = "Tr1cky-passphrase"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := phoneauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := phoneauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSender(delivery.NewConsoleSender(zerolog.Nop())).
		WithCodeGenerator(otp.Static(testCode)).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Close(ctx)
		_ = rdb.Close()
		mr.Close()
	})

	return New(engine, Options{RefreshTTL: cfg.JWT.RefreshTTL, Logger: zerolog.Nop()})
}

func do(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) phoneauth.ErrorCode {
	t.Helper()
	return decodeBody[errorBody](t, rec).Error.Code
}

func registerOverHTTP(t *testing.T, h http.Handler) phoneauth.AuthResult {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/v1/challenges", map[string]string{
		"phone":    testPhone,
		"purpose":  "registration",
		"password": testPassword,
		"name":     "Ada",
	}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("request challenge status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/challenges/verify", map[string]string{
		"phone":   testPhone,
		"purpose": "registration",
		"code":    testCode,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("verify status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), refreshCookieName+"=") {
		t.Fatalf("expected refresh cookie, got %q", rec.Header().Get("Set-Cookie"))
	}
	return decodeBody[phoneauth.AuthResult](t, rec)
}

func TestRegistrationAndProfile(t *testing.T) {
	h := newTestHandler(t)
	res := registerOverHTTP(t, h)

	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", res)
	}
	auth := map[string]string{"Authorization": "Bearer " + res.AccessToken}

	rec := do(t, h, http.MethodGet, "/v1/me", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	me := decodeBody[phoneauth.Identity](t, rec)
	if me.Phone != testPhone || me.DisplayName != "Ada" {
		t.Fatalf("unexpected identity: %+v", me)
	}
	if me.PasswordHash != "" {
		t.Fatal("password hash must not be served")
	}

	rec = do(t, h, http.MethodPatch, "/v1/me", map[string]string{"email": "Ada@Example.com"}, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[phoneauth.Identity](t, rec).Email; got != "ada@example.com" {
		t.Fatalf("email = %q", got)
	}

	rec = do(t, h, http.MethodPatch, "/v1/me", map[string]string{"email": "not-an-email"}, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email status = %d", rec.Code)
	}
}

func TestMeRequiresToken(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/v1/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestVerifyErrors(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/v1/challenges/verify", map[string]string{
		"phone": testPhone, "purpose": "registration", "code": testCode,
	}, nil)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != phoneauth.CodeNotFound {
		t.Fatalf("no challenge: status=%d body=%s", rec.Code, rec.Body.String())
	}

	do(t, h, http.MethodPost, "/v1/challenges", map[string]string{
		"phone": testPhone, "purpose": "registration", "password": testPassword,
	}, nil)

	rec = do(t, h, http.MethodPost, "/v1/challenges/verify", map[string]string{
		"phone": testPhone, "purpose": "registration", "code": "000000",
	}, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != phoneauth.CodeCodeMismatch {
		t.Fatalf("mismatch: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/challenges/verify", map[string]string{
		"phone": testPhone, "purpose": "registration", "code": "12",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed code status = %d", rec.Code)
	}
}

func TestRequestChallengeCooldown(t *testing.T) {
	h := newTestHandler(t)
	body := map[string]string{"phone": testPhone, "purpose": "registration", "password": testPassword}

	if rec := do(t, h, http.MethodPost, "/v1/challenges", body, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/v1/challenges", body, nil)
	if rec.Code != http.StatusTooManyRequests || errorCode(t, rec) != phoneauth.CodeRateLimited {
		t.Fatalf("second request: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRequestChallengeRejectsResetPurpose(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/v1/challenges", map[string]string{
		"phone": testPhone, "purpose": "password_reset",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMalformedBodies(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("broken json status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"phone": testPhone, "extra": "x"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rec.Code)
	}

	big := strings.NewReader(`{"phone":"` + strings.Repeat("1", maxBodyBytes) + `"}`)
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions", big)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status = %d", rec.Code)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	h := newTestHandler(t)
	registerOverHTTP(t, h)

	rec := do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"phone": testPhone, "password": "wrong-password"}, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != phoneauth.CodeInvalidCredentials {
		t.Fatalf("bad login: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"phone": testPhone, "password": testPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	login := decodeBody[phoneauth.AuthResult](t, rec)

	rec = do(t, h, http.MethodPost, "/v1/sessions/refresh", map[string]string{"refresh_token": login.RefreshToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", rec.Code, rec.Body.String())
	}
	if decodeBody[phoneauth.AuthResult](t, rec).AccessToken == "" {
		t.Fatal("refresh returned no access token")
	}

	// Logout reads the refresh token from the cookie when the body is empty.
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/logout", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: login.RefreshToken})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("expected cleared cookie, got %q", rec.Header().Get("Set-Cookie"))
	}

	rec = do(t, h, http.MethodPost, "/v1/sessions/refresh", map[string]string{"refresh_token": login.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != phoneauth.CodeInvalidToken {
		t.Fatalf("refresh after logout: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/sessions/refresh", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing token status = %d", rec.Code)
	}
}

func TestPasswordReset(t *testing.T) {
	h := newTestHandler(t)
	registerOverHTTP(t, h)

	rec := do(t, h, http.MethodPost, "/v1/password-reset", map[string]string{"phone": testPhone}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("reset request status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/password-reset/confirm", map[string]string{
		"phone": testPhone, "code": testCode, "new_password": "12345678",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password status = %d", rec.Code)
	}
	if msg := decodeBody[errorBody](t, rec).Error.Message; !strings.Contains(msg, "numeric") {
		t.Fatalf("policy message = %q", msg)
	}

	rec = do(t, h, http.MethodPost, "/v1/password-reset/confirm", map[string]string{
		"phone": testPhone, "code": testCode, "new_password": "An0ther-passphrase",
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("confirm status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"phone": testPhone, "password": "An0ther-passphrase"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password status = %d", rec.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/healthz", nil, map[string]string{requestIDHeader: "abc-123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}

	rec = do(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}

type failingEngine struct {
	Engine
	err error
}

func (f failingEngine) Login(context.Context, string, string) (*phoneauth.AuthResult, error) {
	return nil, f.err
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{phoneauth.ErrUnavailable, http.StatusServiceUnavailable},
		{phoneauth.ErrAccountLocked, http.StatusLocked},
		{phoneauth.ErrAccountDisabled, http.StatusForbidden},
		{phoneauth.ErrExpired, http.StatusGone},
		{phoneauth.ErrConflict, http.StatusConflict},
		{phoneauth.ErrAttemptsExhausted, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := New(failingEngine{err: tt.err}, Options{Logger: zerolog.Nop()})
		rec := do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"phone": testPhone, "password": "x"}, nil)
		if rec.Code != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.status)
		}
		if strings.Contains(rec.Body.String(), "boom") {
			t.Errorf("internal error leaked: %s", rec.Body.String())
		}
	}
}

type panickingEngine struct {
	Engine
}

func (panickingEngine) Login(context.Context, string, string) (*phoneauth.AuthResult, error) {
	panic("unexpected")
}

func TestPanicRecovered(t *testing.T) {
	h := New(panickingEngine{}, Options{Logger: zerolog.Nop()})
	rec := do(t, h, http.MethodPost, "/v1/sessions", map[string]string{"phone": testPhone, "password": "x"}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
