package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access claims stored by RequireAccess.
func ClaimsFromContext(ctx context.Context) (*goIdentity.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*goIdentity.AccessClaims)
	return claims, ok && claims != nil
}

// UserIDFromContext is shorthand for the subject of the verified access token.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", false
	}
	return claims.UserID, claims.UserID != ""
}

// RequireAccess rejects requests without a valid bearer access token. The
// verified claims are available to next through ClaimsFromContext.
func RequireAccess(engine *goIdentity.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w, "unauthorized")
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			claims, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				unauthorized(w, goIdentity.PublicMessage(err))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="goidentity"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"kind":    goIdentity.KindUnauthorized.String(),
			"message": message,
		},
	})
}
