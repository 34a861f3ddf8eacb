package session

import (
	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

// State is the lifecycle position of one field's conversation.
type State int

const (
	StateIdle State = iota
	StateSending
	StateSuggested
	StateNeedsClarification
	StateAnalyzed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateSuggested:
		return "suggested"
	case StateNeedsClarification:
		return "needs_clarification"
	case StateAnalyzed:
		return "analyzed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the state ends a request.
func (s State) Terminal() bool {
	return s != StateIdle && s != StateSending
}

// FieldID identifies one editable region on the host page.
type FieldID string

// TopicTransition is the eventbus topic every state change is published on.
const TopicTransition = "session.transition"

// Transition is the payload published on TopicTransition.
type Transition struct {
	Field FieldID
	From  State
	To    State
	Mode  polish.Mode
}

// Outcome is what a user action resolved to.
type Outcome struct {
	State    State
	Envelope polish.Envelope
	// Mode is the mode the request was actually sent with.
	Mode polish.Mode
	// Suggestions are the entries offered for Apply when State is Suggested.
	Suggestions []string
	// Actions are the follow-ups offered when State is Suggested.
	Actions []polish.Mode
}

// requestKind distinguishes how a response is interpreted.
type requestKind int

const (
	kindInitial requestKind = iota
	kindFollowUp
	kindComparison
)

// conversation is the per-field context. It is only touched while holding mu.
type conversation struct {
	id    FieldID
	gen   uint64
	host  string
	state State

	originalText   string
	lastSuggestion string
	activeMode     polish.Mode
	suggestions    []string

	lastRequest *polish.Request
	lastKind    requestKind
	lastOutcome Outcome

	undoText  string
	undoReady bool

	busy bool
}
