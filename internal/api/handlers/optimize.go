package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/prompt"
)

// msgProviderFailed is all a client learns about a provider failure; the
// cause is logged.
const msgProviderFailed = "The AI provider could not complete the request. Please try again later."

// Optimizer is the proxy's optimization service.
type Optimizer interface {
	Optimize(ctx context.Context, in prompt.Input) (*prompt.Result, error)
}

// OptimizeHandler serves POST / and POST /v1/optimize.
type OptimizeHandler struct {
	service Optimizer
	limits  polish.Limits
	logger  *zap.Logger
}

// NewOptimizeHandler creates a handler. Inputs over limits are rejected
// with 400 before any provider call.
func NewOptimizeHandler(service Optimizer, limits polish.Limits, logger *zap.Logger) *OptimizeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OptimizeHandler{service: service, limits: limits, logger: logger}
}

// OptimizeRequest is the wire body sent by clients. intent, userPrompt and
// isClarifyRequest are accepted for compatibility and ignored.
type OptimizeRequest struct {
	InputText         string `json:"inputText"`
	Mode              string `json:"mode"`
	CustomInstruction string `json:"customInstruction"`
	DeepPolish        bool   `json:"deepPolish"`
	Intent            string `json:"intent,omitempty"`
	UserPrompt        string `json:"userPrompt,omitempty"`
	IsClarifyRequest  bool   `json:"isClarifyRequest,omitempty"`
}

// Optimize handles one optimization request.
func (h *OptimizeHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := polish.Validate(req.InputText, req.CustomInstruction, h.limits); err != nil {
		writeJSON(w, http.StatusBadRequest, polish.ErrorEnvelope(err))
		return
	}

	res, err := h.service.Optimize(r.Context(), prompt.Input{
		Text:              req.InputText,
		Mode:              polish.Mode(req.Mode),
		CustomInstruction: req.CustomInstruction,
		DeepPolish:        req.DeepPolish,
	})
	switch {
	case errors.Is(err, prompt.ErrInputRequired):
		writeError(w, http.StatusBadRequest, prompt.ErrInputRequired.Message)
		return
	case err != nil:
		h.logger.Error("optimize failed", zap.String("mode", req.Mode), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, polish.Failure(polish.KindUpstreamError, msgProviderFailed))
		return
	}

	writeJSON(w, http.StatusOK, polish.Envelope{Success: true, Data: res.Data, Type: res.Type})
}

// MethodNotAllowed answers any non-POST method on the optimize routes.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
