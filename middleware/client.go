package middleware

import (
	"net"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// ClientMetadata copies the caller's IP and User-Agent into the request
// context so the engine can stamp sessions, token rows and audit events.
//
// X-Forwarded-For is honored only when trustProxy is set; the left-most
// entry wins.
func ClientMetadata(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := goIdentity.WithClientIP(r.Context(), ClientIP(r, trustProxy))
			ctx = goIdentity.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

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
