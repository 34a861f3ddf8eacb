// Package llm: Ollama adapter.
// OllamaProvider talks to a local Ollama daemon over its REST API:
//   - POST /api/chat  non-streaming chat completion
//   - GET  /api/tags  health check; the configured model must be pulled
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"

	defaultOllamaModel = "llama3.2:3b"

	// ollamaErrBodyLen caps how much of an unparseable error body is quoted.
	ollamaErrBodyLen = 200
)

// OllamaProvider implements LLMProvider against a running Ollama instance.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithOllamaHTTPClient replaces the HTTP client.
func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(p *OllamaProvider) { p.httpClient = c }
}

// NewOllamaProvider creates an OllamaProvider. The default client allows 60s
// per call since local models are slow on a cold start.
func NewOllamaProvider(baseURL, model string, opts ...OllamaOption) *OllamaProvider {
	if model == "" {
		model = defaultOllamaModel
	}
	p := &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ─── wire types ─────────────────────────────────────────────────────────────

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// ─── LLMProvider ────────────────────────────────────────────────────────────

// ChatCompletion performs a non-streaming chat via POST /api/chat.
func (p *OllamaProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	chat := ollamaChatRequest{Model: model, Messages: make([]ollamaMessage, len(req.Messages))}
	for i, m := range req.Messages {
		chat.Messages[i] = ollamaMessage(m)
	}
	if req.Temperature != 0 || req.MaxTokens != 0 {
		chat.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}
	body, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: encode: %w", err)
	}

	raw, err := p.do(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	var resp ollamaChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("ollama chat: decode: %w", err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return nil, errors.New("ollama chat: empty response from model")
	}
	return &ChatResponse{
		Content:    resp.Message.Content,
		StopReason: resp.DoneReason,
		Tokens:     resp.PromptEvalCount + resp.EvalCount,
	}, nil
}

// ModelInfo returns static metadata for this provider/model.
func (p *OllamaProvider) ModelInfo() ModelMeta {
	return ModelMeta{ID: p.model, Provider: "ollama", Version: "v1", MaxTokens: 2048}
}

// HealthCheck lists the local models and fails when the configured one is
// missing. Tags may omit ":latest", so both spellings match.
func (p *OllamaProvider) HealthCheck(ctx context.Context) error {
	raw, err := p.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama healthcheck: %w", err)
	}
	want := strings.TrimSuffix(p.model, ":latest")
	for _, name := range gjson.GetBytes(raw, "models.#.name").Array() {
		if strings.TrimSuffix(name.String(), ":latest") == want {
			return nil
		}
	}
	return fmt.Errorf("ollama healthcheck: model %q not pulled", p.model)
}

// do sends one request and returns the body of a 2xx response. Non-2xx
// responses become errors carrying Ollama's {"error": "..."} message.
func (p *OllamaProvider) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: build request: %w", path, err)
	}
	if body != nil {
		req.Header.Set(headerContentType, mimeJSON)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: read: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, upstreamMessage(raw))
	}
	return raw, nil
}

func upstreamMessage(raw []byte) string {
	if msg := gjson.GetBytes(raw, "error").String(); msg != "" {
		return msg
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > ollamaErrBodyLen {
		s = s[:ollamaErrBodyLen]
	}
	return s
}
