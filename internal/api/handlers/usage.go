package handlers

import (
	"context"
	"net/http"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/usage"
)

// UsageReader exposes the proxy's request log.
type UsageReader interface {
	CountsByMode(ctx context.Context) ([]usage.ModeCount, error)
	Recent(ctx context.Context, limit int) ([]usage.Record, error)
}

// UsageHandler serves the usage log endpoints.
type UsageHandler struct {
	store UsageReader
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(store UsageReader) *UsageHandler {
	return &UsageHandler{store: store}
}

// Counts returns per-mode totals.
// GET /v1/usage
func (h *UsageHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountsByMode(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read usage log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": counts})
}

// Recent returns the newest records.
// GET /v1/usage/recent?limit=N
func (h *UsageHandler) Recent(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Recent(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read usage log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}
