// Package proxyclient is the request orchestrator: it posts one optimization
// request to the configured proxy endpoint under a timeout watchdog and maps
// every outcome, including transport failures, onto a polish.Envelope.
//
// Endpoint contract:
//   - POST {endpoint} with a JSON body {intent, inputText, userPrompt, mode, ...}
//   - any 2xx body is run through polish.Normalize
//   - 429 and 5xx carry fixed user-facing messages
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"

	// DefaultTimeout bounds a single round-trip when the caller passes none.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20

	// snippetLen is how much of a non-JSON error body is echoed back.
	snippetLen = 100

	msgRateLimited     = "Rate limit exceeded. Please try again later."
	msgServerError     = "Server error. Please try again later."
	msgNetwork         = "Network error. Please check your internet connection."
	msgMissingEndpoint = "Proxy endpoint is not configured."
	msgUnknownWorker   = "Unknown error from worker."
	msgTooLarge        = "Response from the proxy was too large."
)

// Client implements polish.Transport over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests inject a RoundTripper here).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets the default watchdog duration.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for endpoint. The HTTP client carries no timeout of its
// own; every call is bounded by a context deadline instead.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string { return c.endpoint }

// requestBody is the wire shape posted to the proxy. userPrompt duplicates
// inputText for older deployments that read the original field name.
type requestBody struct {
	Intent            string      `json:"intent"`
	InputText         string      `json:"inputText"`
	UserPrompt        string      `json:"userPrompt"`
	Mode              polish.Mode `json:"mode"`
	CustomInstruction string      `json:"customInstruction"`
	IsClarifyRequest  bool        `json:"isClarifyRequest"`
	DeepPolish        bool        `json:"deepPolish,omitempty"`
}

func buildBody(req polish.Request) requestBody {
	text := polish.Sanitize(req.InputText)
	return requestBody{
		Intent:            "rewrite",
		InputText:         text,
		UserPrompt:        text,
		Mode:              req.Mode.OrDefault(),
		CustomInstruction: polish.Sanitize(req.CustomInstruction),
		IsClarifyRequest:  req.IsClarifyRequest,
		DeepPolish:        req.DeepPolish,
	}
}

// Send performs one round-trip. It never returns an error: every failure is a
// type=error envelope. A timeout <= 0 uses the client default.
func (c *Client) Send(ctx context.Context, req polish.Request, timeout time.Duration) polish.Envelope {
	if c.endpoint == "" {
		return polish.Failure(polish.KindMissingEndpoint, msgMissingEndpoint)
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	start := time.Now()
	env, status := c.roundTrip(ctx, req, timeout)

	fields := []zap.Field{
		zap.String("mode", string(req.Mode.OrDefault())),
		zap.Int("status", status),
		zap.Duration("latency", time.Since(start)),
		zap.Bool("success", env.Success),
	}
	if !env.Success {
		c.logger.Warn("proxy request failed", append(fields, zap.String("code", string(env.Code)))...)
	} else {
		c.logger.Debug("proxy request", fields...)
	}
	return env
}

func (c *Client) roundTrip(ctx context.Context, req polish.Request, timeout time.Duration) (polish.Envelope, int) {
	payload, err := json.Marshal(buildBody(req))
	if err != nil {
		return polish.ErrorEnvelope(polish.WrapError(polish.KindUnknown, "Could not encode request.", err)), 0
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return polish.ErrorEnvelope(polish.WrapError(polish.KindMissingEndpoint, msgMissingEndpoint, err)), 0
	}
	httpReq.Header.Set(headerContentType, mimeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportFailure(ctx, err, timeout), 0
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return transportFailure(ctx, err, timeout), resp.StatusCode
	}
	if len(raw) > maxResponseBytes {
		// A cut body never normalizes as a success.
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return polish.Failure(polish.KindUpstreamError, msgTooLarge), resp.StatusCode
		}
		raw = raw[:maxResponseBytes]
	}
	return classify(resp.StatusCode, raw), resp.StatusCode
}

// transportFailure distinguishes the watchdog firing from other network errors.
func transportFailure(ctx context.Context, err error, timeout time.Duration) polish.Envelope {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return polish.ErrorEnvelope(polish.WrapError(polish.KindTimeout, timeoutMessage(timeout), err))
	}
	return polish.ErrorEnvelope(polish.WrapError(polish.KindNetwork, msgNetwork, err))
}

func timeoutMessage(d time.Duration) string {
	secs := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	unit := "seconds"
	if secs == "1" {
		unit = "second"
	}
	return fmt.Sprintf("Request timed out after %s %s. Please try again.", secs, unit)
}

// classify maps status and body onto an envelope. A normalization failure on a
// 2xx response is still a failure.
func classify(status int, raw []byte) polish.Envelope {
	normalized := polish.Normalize(raw)

	switch {
	case status == http.StatusTooManyRequests:
		return polish.Failure(polish.KindRateLimited, msgRateLimited)
	case status >= 500:
		return polish.Failure(polish.KindUpstreamUnavailable, msgServerError)
	case status < 200 || status >= 300:
		detail := normalized.Error
		if normalized.Success || detail == "" {
			detail = truncate(string(raw), snippetLen)
		}
		return polish.Failure(polish.KindUpstreamError, fmt.Sprintf("HTTP %d: %s", status, detail))
	}

	if !normalized.Success && normalized.Error == "" {
		return polish.Failure(polish.KindUpstreamReported, msgUnknownWorker)
	}
	return normalized
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
