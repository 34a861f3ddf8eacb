// Package session implements the per-field conversation state machine of the
// UI context: initial submission with auto-clarify, follow-up actions,
// apply/undo, dismiss and retry. Each attached field has its own context and
// at most one request in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/eventbus"
)

const (
	msgEmptyInput        = "Input is empty. Please type a prompt first."
	msgNoData            = "Received no data from the AI."
	msgNoChanges         = "No significant changes suggested."
	msgAnalysisComplete  = "Analysis complete."
	msgNeedMoreDetail    = "Please provide more details."
	msgConnectionFailed  = "Connection to background service failed. Please reload the page or extension."
	msgUnexpectedFailure = "An unexpected error occurred. Please try again."
)

var (
	ErrDisabled         = errors.New("session: disabled")
	ErrHostNotAllowed   = errors.New("session: host not allowed")
	ErrUnknownField     = errors.New("session: field not attached")
	ErrNoSuggestion     = errors.New("session: no suggestion to act on")
	ErrActionNotOffered = errors.New("session: follow-up action not offered")
	ErrIndexOutOfRange  = errors.New("session: suggestion index out of range")
	ErrNothingToUndo    = errors.New("session: nothing to undo")
	ErrNothingToRetry   = errors.New("session: nothing to retry")
	ErrBusy             = errors.New("session: request in flight")
)

const (
	opSubmit   = "submit"
	opRetry    = "retry"
	opFollowUp = "follow-up:"
)

// followUpActions are the actions offered on a suggestion, in display order.
var followUpActions = []polish.Mode{
	polish.ModeFormal,
	polish.ModeCreative,
	polish.ModeConcise,
	polish.ModeAnalyzeComparison,
}

// Sender carries a request to the network context. An error means the
// network context could not be reached at all.
type Sender interface {
	Send(ctx context.Context, req polish.Request) (polish.Envelope, error)
}

// Machine owns the contexts of all attached fields.
type Machine struct {
	sender   Sender
	settings SettingsSource
	limits   polish.Limits
	bus      eventbus.EventBus
	logger   *zap.Logger

	flight singleflight.Group

	mu     sync.Mutex
	fields map[FieldID]*conversation
	gen    uint64
}

// Option configures a Machine.
type Option func(*Machine)

// WithLimits overrides the default length limits.
func WithLimits(l polish.Limits) Option { return func(m *Machine) { m.limits = l } }

// WithEventBus publishes transitions on bus.
func WithEventBus(bus eventbus.EventBus) Option { return func(m *Machine) { m.bus = bus } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMachine creates a Machine. settings is read at every user action.
func NewMachine(sender Sender, settings SettingsSource, opts ...Option) *Machine {
	m := &Machine{
		sender:   sender,
		settings: settings,
		limits:   polish.DefaultLimits(),
		logger:   zap.NewNop(),
		fields:   make(map[FieldID]*conversation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach starts tracking a field on host. Attaching twice is a no-op.
func (m *Machine) Attach(id FieldID, host string) error {
	s := m.settings.Snapshot()
	if !s.Enabled {
		return ErrDisabled
	}
	if !s.HostAllowed(host) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fields[id]; !ok {
		m.gen++
		m.fields[id] = &conversation{id: id, gen: m.gen, host: host, state: StateIdle}
	}
	return nil
}

// Detach drops a field's context. In-flight results for it are discarded and
// a later Attach of the same field never joins them.
func (m *Machine) Detach(id FieldID) {
	m.mu.Lock()
	delete(m.fields, id)
	m.mu.Unlock()
}

// State returns the current state of a field.
func (m *Machine) State(id FieldID) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.fields[id]
	if !ok {
		return StateIdle, ErrUnknownField
	}
	return conv.state, nil
}

// Busy reports whether a request is in flight for the field.
func (m *Machine) Busy(id FieldID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.fields[id]
	return ok && conv.busy
}

// Last returns the outcome of the field's most recent request.
func (m *Machine) Last(id FieldID) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.fields[id]
	if !ok {
		return Outcome{}, ErrUnknownField
	}
	return conv.lastOutcome, nil
}

// OfferedActions lists the follow-ups available on the current suggestion.
func (m *Machine) OfferedActions(id FieldID) ([]polish.Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.fields[id]
	if !ok {
		return nil, ErrUnknownField
	}
	if conv.state != StateSuggested {
		return nil, nil
	}
	return offeredActions(conv.activeMode), nil
}

// Submit starts a new conversation with the field's current text.
// A repeated trigger while a submission is in flight joins it.
func (m *Machine) Submit(ctx context.Context, id FieldID, text string) (Outcome, error) {
	conv, err := m.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	return m.exclusive(conv, opSubmit, func() (Outcome, error) {
		return m.submit(ctx, conv, text), nil
	})
}

func (m *Machine) submit(ctx context.Context, conv *conversation, text string) Outcome {
	s := m.settings.Snapshot()
	text = strings.TrimSpace(text)

	m.mu.Lock()
	conv.originalText = text
	conv.lastSuggestion = ""
	conv.suggestions = nil
	conv.lastRequest = nil
	m.mu.Unlock()

	mode := s.mode()
	req := polish.Request{
		InputText:         text,
		Mode:              mode,
		CustomInstruction: s.instructionFor(mode),
		DeepPolish:        s.DeepPolish,
	}
	if text == "" && !mode.TextOptional() {
		return m.settle(conv, req, kindInitial, polish.Failure(polish.KindEmptyInput, msgEmptyInput))
	}
	// An explicit analyze request is never rerouted to clarification.
	if s.AutoClarify && mode != polish.ModeAnalyze && isVague(text, s.threshold()) {
		req.Mode = polish.ModeClarify
		req.IsClarifyRequest = true
		req.CustomInstruction = ""
	}
	return m.dispatch(ctx, conv, req, kindInitial)
}

// FollowUp refines the current suggestion with action.
func (m *Machine) FollowUp(ctx context.Context, id FieldID, action polish.Mode) (Outcome, error) {
	conv, err := m.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	return m.exclusive(conv, opFollowUp+string(action), func() (Outcome, error) {
		m.mu.Lock()
		state, active := conv.state, conv.activeMode
		original, last := conv.originalText, conv.lastSuggestion
		m.mu.Unlock()

		if state != StateSuggested {
			return Outcome{}, ErrNoSuggestion
		}
		if !slices.Contains(offeredActions(active), action) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrActionNotOffered, action)
		}

		s := m.settings.Snapshot()
		req := polish.Request{Mode: action, DeepPolish: s.DeepPolish}
		kind := kindFollowUp
		if action == polish.ModeAnalyzeComparison {
			// The comparison carries the original prompt as input and the
			// suggestion under review as the instruction.
			req.InputText = original
			req.CustomInstruction = last
			kind = kindComparison
		} else {
			req.InputText = last
			req.CustomInstruction = s.instructionFor(action)
		}
		return m.dispatch(ctx, conv, req, kind), nil
	})
}

// Retry re-issues the field's most recent request.
func (m *Machine) Retry(ctx context.Context, id FieldID) (Outcome, error) {
	conv, err := m.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	return m.exclusive(conv, opRetry, func() (Outcome, error) {
		m.mu.Lock()
		last, kind := conv.lastRequest, conv.lastKind
		m.mu.Unlock()
		if last == nil {
			return Outcome{}, ErrNothingToRetry
		}
		return m.dispatch(ctx, conv, *last, kind), nil
	})
}

// Dismiss closes whatever the field is showing and returns it to Idle.
func (m *Machine) Dismiss(id FieldID) error {
	conv, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if conv.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	m.mu.Unlock()
	m.transition(conv, StateIdle, "")
	return nil
}

// Apply returns suggestion index for insertion into the field and remembers
// currentText so that one Undo can restore it.
func (m *Machine) Apply(id FieldID, index int, currentText string) (string, error) {
	conv, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	if conv.state != StateSuggested {
		m.mu.Unlock()
		return "", ErrNoSuggestion
	}
	if index < 0 || index >= len(conv.suggestions) {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	text := conv.suggestions[index]
	conv.undoText = currentText
	conv.undoReady = true
	m.mu.Unlock()

	m.transition(conv, StateIdle, "")
	return text, nil
}

// Undo returns the text replaced by the last Apply. It succeeds once.
func (m *Machine) Undo(id FieldID) (string, error) {
	conv, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !conv.undoReady {
		return "", ErrNothingToUndo
	}
	text := conv.undoText
	conv.undoText = ""
	conv.undoReady = false
	return text, nil
}

func (m *Machine) lookup(id FieldID) (*conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.fields[id]
	if !ok {
		return nil, ErrUnknownField
	}
	return conv, nil
}

// exclusive runs fn as the context's single in-flight operation. Callers
// repeating the same op share the first caller's result; any other op fails
// with ErrBusy until it settles.
func (m *Machine) exclusive(conv *conversation, op string, fn func() (Outcome, error)) (Outcome, error) {
	key := fmt.Sprintf("%s#%d#%s", conv.id, conv.gen, op)
	v, err, shared := m.flight.Do(key, func() (any, error) {
		if !m.claim(conv) {
			return Outcome{}, ErrBusy
		}
		defer m.release(conv)
		return fn()
	})
	if shared {
		m.logger.Debug("joined in-flight request", zap.String("field", string(conv.id)), zap.String("op", op))
	}
	out, _ := v.(Outcome)
	return out, err
}

func (m *Machine) claim(conv *conversation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv.busy {
		return false
	}
	conv.busy = true
	return true
}

func (m *Machine) release(conv *conversation) {
	m.mu.Lock()
	conv.busy = false
	m.mu.Unlock()
}

func (m *Machine) dispatch(ctx context.Context, conv *conversation, req polish.Request, kind requestKind) Outcome {
	m.mu.Lock()
	recorded := req
	conv.lastRequest = &recorded
	conv.lastKind = kind
	m.mu.Unlock()

	if err := polish.Validate(req.InputText, req.CustomInstruction, m.limits); err != nil {
		return m.settle(conv, req, kind, polish.ErrorEnvelope(err))
	}
	m.transition(conv, StateSending, req.Mode)
	return m.settle(conv, req, kind, m.send(ctx, req))
}

// send swallows bridge failures into an error envelope.
func (m *Machine) send(ctx context.Context, req polish.Request) polish.Envelope {
	env, err := m.sender.Send(ctx, req)
	if err == nil {
		return env
	}
	m.logger.Warn("sender failed", zap.String("mode", string(req.Mode)), zap.Error(err))
	if polish.KindOf(err) == polish.KindUnknown {
		return polish.Failure(polish.KindContextGone, msgConnectionFailed)
	}
	return polish.ErrorEnvelope(err)
}

func (m *Machine) settle(conv *conversation, req polish.Request, kind requestKind, env polish.Envelope) Outcome {
	out := resolve(req, kind, env)

	m.mu.Lock()
	conv.activeMode = req.Mode
	if out.State == StateSuggested {
		conv.suggestions = out.Suggestions
		conv.lastSuggestion = out.Suggestions[0]
		out.Actions = offeredActions(req.Mode)
	}
	conv.lastOutcome = out
	m.mu.Unlock()

	m.transition(conv, out.State, req.Mode)
	return out
}

func (m *Machine) transition(conv *conversation, to State, mode polish.Mode) {
	m.mu.Lock()
	from := conv.state
	conv.state = to
	if to == StateIdle {
		conv.suggestions = nil
	}
	m.mu.Unlock()

	m.logger.Debug("session transition",
		zap.String("field", string(conv.id)),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("mode", string(mode)),
	)
	if m.bus != nil {
		m.bus.Publish(TopicTransition, Transition{Field: conv.id, From: from, To: to, Mode: mode})
	}
}

// resolve interprets an envelope for the request that produced it.
func resolve(req polish.Request, kind requestKind, env polish.Envelope) Outcome {
	out := Outcome{Mode: req.Mode}

	if !env.Success {
		if env.Error == "" {
			env = polish.Failure(polish.KindUnknown, msgUnexpectedFailure)
		}
		env.Type = polish.TypeError
		out.State, out.Envelope = StateFailed, env
		return out
	}

	if kind == kindComparison {
		env.Type = polish.TypeAnalysis
	}
	switch env.Type {
	case polish.TypeAnalysis:
		if env.Data.Empty() {
			env.Data = polish.Text(msgAnalysisComplete)
		}
		out.State, out.Envelope = StateAnalyzed, env
		return out
	case polish.TypeClarification:
		if env.Data.Empty() {
			env.Data = polish.Text(msgNeedMoreDetail)
		}
		out.State, out.Envelope = StateNeedsClarification, env
		return out
	}

	items := nonEmpty(env.Data.Items())
	if len(items) == 0 {
		out.State, out.Envelope = StateFailed, polish.Failure(polish.KindEmptyResult, msgNoData)
		return out
	}
	if kind == kindInitial {
		items = slices.DeleteFunc(items, func(s string) bool { return s == req.InputText })
		if len(items) == 0 {
			out.State = StateAnalyzed
			out.Envelope = polish.Envelope{Success: true, Data: polish.Text(msgNoChanges), Type: polish.TypeAnalysis}
			return out
		}
	}
	out.State, out.Envelope, out.Suggestions = StateSuggested, env, items
	return out
}

func nonEmpty(items []string) []string {
	out := items[:0]
	for _, s := range items {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// offeredActions returns the follow-ups for a suggestion produced in active
// mode. The comparison is always offered; the others exclude the active mode.
func offeredActions(active polish.Mode) []polish.Mode {
	out := make([]polish.Mode, 0, len(followUpActions))
	for _, a := range followUpActions {
		if a == polish.ModeAnalyzeComparison || a != active {
			out = append(out, a)
		}
	}
	return out
}
