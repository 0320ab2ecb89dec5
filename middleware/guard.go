package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/phoneauth"
)

// AccessVerifier is the part of [phoneauth.Engine] the guards need.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (*phoneauth.Identity, error)
}

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by RequireAccess or
// OptionalAccess.
func IdentityFromContext(ctx context.Context) (*phoneauth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*phoneauth.Identity)
	return identity, ok && identity != nil
}

// WithIdentity attaches identity to ctx.
func WithIdentity(ctx context.Context, identity *phoneauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// RequireAccess rejects requests without a valid bearer access token with
// 401, or 503 when the engine cannot reach its backing store.
func RequireAccess(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			identity, err := verifier.VerifyAccess(r.Context(), token)
			if err != nil {
				if errors.Is(err, phoneauth.ErrUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAccess attaches the identity when the request carries a valid
// bearer token and passes every request through.
func OptionalAccess(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if ok && verifier != nil {
				if identity, err := verifier.VerifyAccess(r.Context(), token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="phoneauth"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
