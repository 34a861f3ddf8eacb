// Package llm: provider interface.
// Adapters (Gemini, OpenAI-compatible, Ollama) implement this interface so the
// proxy is never coupled to a specific LLM vendor.
package llm

import "context"

// LLMProvider is the model-agnostic interface for completions.
type LLMProvider interface {
	// ChatCompletion performs a non-streaming chat completion.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ModelInfo returns static metadata about the provider/model.
	ModelInfo() ModelMeta

	// HealthCheck returns nil if the provider is reachable and operational.
	HealthCheck(ctx context.Context) error
}
