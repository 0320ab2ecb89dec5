package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/phoneauth"
)

type fakeVerifier struct {
	identity *phoneauth.Identity
	err      error
	token    string
}

func (f *fakeVerifier) VerifyAccess(_ context.Context, token string) (*phoneauth.Identity, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func okHandler(t *testing.T, wantIdentity bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := IdentityFromContext(r.Context())
		if ok != wantIdentity {
			t.Fatalf("identity attached = %v, want %v", ok, wantIdentity)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAccess(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer   ", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer abc", err: phoneauth.ErrInvalidToken, status: http.StatusUnauthorized},
		{name: "backend down", header: "Bearer abc", err: phoneauth.ErrUnavailable, status: http.StatusServiceUnavailable},
		{name: "valid", header: "Bearer abc", status: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer abc", status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{identity: &phoneauth.Identity{ID: "id-1"}, err: tt.err}
			h := RequireAccess(v)(okHandler(t, true))

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if rec.Code == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("expected WWW-Authenticate header")
			}
			if rec.Code == http.StatusNoContent && v.token != "abc" {
				t.Fatalf("expected token abc, got %q", v.token)
			}
		})
	}
}

func TestOptionalAccess(t *testing.T) {
	v := &fakeVerifier{err: phoneauth.ErrInvalidToken}
	h := OptionalAccess(v)(okHandler(t, false))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}

	v = &fakeVerifier{identity: &phoneauth.Identity{ID: "id-1"}}
	h = OptionalAccess(v)(okHandler(t, true))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5123"
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")

	if got := ClientIP(req, false); got != "192.0.2.10" {
		t.Fatalf("expected remote addr, got %q", got)
	}
	if got := ClientIP(req, true); got != "198.51.100.4" {
		t.Fatalf("expected forwarded addr, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "garbage")
	if got := ClientIP(req, true); got != "192.0.2.10" {
		t.Fatalf("expected fallback to remote addr, got %q", got)
	}
}
