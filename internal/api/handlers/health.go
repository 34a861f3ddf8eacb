package handlers

import (
	"context"
	"net/http"
	"time"
)

// ProviderChecker probes the configured LLM providers.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) map[string]error
	Keys() []string
}

// Health answers liveness probes.
// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProviderHealth reports per-provider reachability; 503 if any provider fails.
// GET /health/providers
func ProviderHealth(checker ProviderChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		failures := checker.HealthCheck(ctx)
		providers := make(map[string]string, len(checker.Keys()))
		for _, k := range checker.Keys() {
			providers[k] = "ok"
			if err, bad := failures[k]; bad {
				providers[k] = err.Error()
			}
		}

		status, code := "ok", http.StatusOK
		if len(failures) > 0 {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "providers": providers})
	}
}
