package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/phoneauth"
)

// ClientContext attaches the caller's network address and User-Agent to
// the request context. When trustProxy is set the first X-Forwarded-For
// entry wins over RemoteAddr; only enable it behind a proxy that
// overwrites the header.
func ClientContext(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := phoneauth.WithClientIP(r.Context(), ClientIP(r, trustProxy))
			if ua := r.UserAgent(); ua != "" {
				ctx = phoneauth.WithUserAgent(ctx, ua)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the caller's address without port.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
