// Package polish holds the client-side optimization contract: requests, modes,
// the canonical result envelope, input sanitizing, response normalization and
// the coded error taxonomy shared by the bridge, the orchestrator and the
// session state machine.
package polish

// Mode tags an optimization request. Backends may not support every tag;
// unknown tags are passed through and the proxy decides.
type Mode string

const (
	ModeConcise           Mode = "concise"
	ModeCreative          Mode = "creative"
	ModeFormal            Mode = "formal"
	ModeProfessional      Mode = "professional"
	ModeCasual            Mode = "casual"
	ModePersuasive        Mode = "persuasive"
	ModeAnalytical        Mode = "analytical"
	ModeTechnical         Mode = "technical"
	ModeCustom            Mode = "custom"
	ModeClarify           Mode = "clarify"
	ModeAnalyze           Mode = "analyze"
	ModeAnalyzeComparison Mode = "analyze_comparison"
)

// DefaultMode is used when neither the request nor the settings name a mode.
const DefaultMode = ModeConcise

// Modes lists every known tag in declaration order.
func Modes() []Mode {
	return []Mode{
		ModeConcise, ModeCreative, ModeFormal, ModeProfessional, ModeCasual,
		ModePersuasive, ModeAnalytical, ModeTechnical, ModeCustom,
		ModeClarify, ModeAnalyze, ModeAnalyzeComparison,
	}
}

// Known reports whether m is one of the declared tags.
func (m Mode) Known() bool {
	for _, k := range Modes() {
		if k == m {
			return true
		}
	}
	return false
}

// TextOptional reports whether a request in this mode may carry empty input.
func (m Mode) TextOptional() bool {
	switch m {
	case ModeAnalyze, ModeClarify, ModeAnalyzeComparison:
		return true
	}
	return false
}

// OrDefault returns m, or DefaultMode when m is empty.
func (m Mode) OrDefault() Mode {
	if m == "" {
		return DefaultMode
	}
	return m
}

// Request is one optimization call. It is built fresh per user action and
// never mutated after it has been handed to a sender.
type Request struct {
	InputText         string `json:"inputText"`
	Mode              Mode   `json:"mode"`
	CustomInstruction string `json:"customInstruction"`
	IsClarifyRequest  bool   `json:"isClarifyRequest,omitempty"`
	// DeepPolish is opaque to the client; the proxy switches prompting strategy on it.
	DeepPolish bool `json:"deepPolish,omitempty"`
}
