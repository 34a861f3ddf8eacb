package session

import (
	"strings"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

// DefaultVagueWordThreshold is the word count below which an initial
// submission is routed to clarification when auto-clarify is on.
const DefaultVagueWordThreshold = 5

// Settings is a read-only snapshot of user preferences.
type Settings struct {
	DefaultMode        polish.Mode
	CustomInstruction  string
	AutoClarify        bool
	Enabled            bool
	AllowedHosts       []string
	DeepPolish         bool
	VagueWordThreshold int
}

// DefaultSettings mirrors a fresh install.
func DefaultSettings() Settings {
	return Settings{
		DefaultMode:        polish.DefaultMode,
		AutoClarify:        true,
		Enabled:            true,
		VagueWordThreshold: DefaultVagueWordThreshold,
	}
}

// SettingsSource yields the current settings. The machine snapshots it at
// each user action and never writes to it.
type SettingsSource interface {
	Snapshot() Settings
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings Settings

// Snapshot implements SettingsSource.
func (s StaticSettings) Snapshot() Settings {
	out := Settings(s)
	out.AllowedHosts = append([]string(nil), s.AllowedHosts...)
	return out
}

func (s Settings) mode() polish.Mode { return s.DefaultMode.OrDefault() }

func (s Settings) threshold() int {
	if s.VagueWordThreshold <= 0 {
		return DefaultVagueWordThreshold
	}
	return s.VagueWordThreshold
}

// instructionFor returns the custom instruction to send with mode. Only the
// custom mode carries the user's instruction.
func (s Settings) instructionFor(mode polish.Mode) string {
	if mode == polish.ModeCustom {
		return s.CustomInstruction
	}
	return ""
}

// HostAllowed reports whether host may attach. An empty allow-list admits
// every host; entries match the host itself or any of its subdomains.
func (s Settings) HostAllowed(host string) bool {
	if len(s.AllowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	for _, allowed := range s.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// isVague reports whether text has fewer than threshold words.
func isVague(text string, threshold int) bool {
	return len(strings.Fields(text)) < threshold
}
