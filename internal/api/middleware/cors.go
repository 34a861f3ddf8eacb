package middleware

import (
	"net/http"
	"strings"
)

// CORS answers preflight requests and decorates every response with the
// proxy's CORS headers. An empty origins list allows any origin.
func CORS(origins []string, methods ...string) func(http.Handler) http.Handler {
	allowMethods := strings.Join(append(methods, http.MethodOptions), ", ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin(origins, r.Header.Get("Origin")))
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			if len(origins) > 0 {
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigin(origins []string, origin string) string {
	if len(origins) == 0 {
		return "*"
	}
	for _, o := range origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return origin
		}
	}
	// Browsers drop the response; non-browser clients are unaffected.
	return "null"
}
