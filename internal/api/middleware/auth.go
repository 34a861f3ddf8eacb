// Bearer token guard for the bridge endpoint.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/matiasleandrokruk/promptpolish/internal/api/ctxkeys"
	pkgauth "github.com/matiasleandrokruk/promptpolish/pkg/auth"
)

// TokenParser validates a bearer token.
type TokenParser interface {
	Parse(token string) (*pkgauth.Claims, error)
}

// Auth rejects requests without a valid token with 401 and injects the
// token's subject and client label into the request context.
//
// The token is read from "Authorization: Bearer <token>" or, for browser
// WebSocket clients that cannot set headers, the "token" query parameter.
func Auth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r)
			if raw == "" {
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}
			claims, err := tokens.Parse(raw)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}
			ctx := ctxkeys.WithValue(r.Context(), ctxkeys.Subject, claims.Subject)
			ctx = ctxkeys.WithValue(ctx, ctxkeys.Client, claims.Client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	const prefix = "Bearer "
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(header, prefix) {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
