// Shared response helpers for the proxy handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	headerContentType = "Content-Type"
	mimeJSON          = "application/json"

	// maxBodyBytes bounds request bodies; input text is capped far below this.
	maxBodyBytes = 1 << 20

	defaultListLimit = 50
	maxListLimit     = 500
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseLimit reads ?limit=, clamped to (0, maxListLimit].
func parseLimit(r *http.Request) int {
	lim, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || lim <= 0 {
		return defaultListLimit
	}
	if lim > maxListLimit {
		return maxListLimit
	}
	return lim
}
