// Package llm defines the model-agnostic provider abstraction used by the
// proxy to turn a rendered optimization prompt into text.
package llm

import "strings"

// Message represents a single turn in a conversation (role + content).
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is the input for a non-streaming chat completion.
type ChatRequest struct {
	// Model overrides the provider default when non-empty.
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// ChatResponse is the output from a non-streaming chat completion.
type ChatResponse struct {
	Content    string // The assistant message text.
	StopReason string // "stop" | "length" | "error"
	Tokens     int    // Total tokens consumed (prompt + completion).
}

// ModelMeta describes the model / provider identity.
type ModelMeta struct {
	ID        string // e.g. "gemini-1.5-flash", "llama3.2:3b"
	Provider  string // e.g. "gemini", "openai", "ollama"
	Version   string
	MaxTokens int // Maximum output tokens the proxy will request.
}

// joinPrompt flattens messages for providers that take a single prompt.
func joinPrompt(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}
