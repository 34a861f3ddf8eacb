// Unit tests for the per-field conversation state machine.
// A scripted fake sender stands in for the bridge.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/eventbus"
)

const longPrompt = "please rewrite this paragraph about our quarterly results"

type fakeSender struct {
	mu       sync.Mutex
	requests []polish.Request
	replies  []polish.Envelope
	err      error
	gate     chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, req polish.Request) (polish.Envelope, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return polish.Envelope{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return polish.Envelope{}, f.err
	}
	if len(f.replies) == 0 {
		return polish.Suggestion(polish.Text("default reply")), nil
	}
	env := f.replies[0]
	f.replies = f.replies[1:]
	return env, nil
}

func (f *fakeSender) sent() []polish.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]polish.Request(nil), f.requests...)
}

func newMachine(t *testing.T, s Settings, sender Sender, opts ...Option) *Machine {
	t.Helper()
	m := NewMachine(sender, StaticSettings(s), opts...)
	require.NoError(t, m.Attach("f1", "chat.openai.com"))
	return m
}

func TestSubmit_SuggestionOffersFollowUps(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{polish.Suggestion(polish.Text("A tighter paragraph."))}}
	m := newMachine(t, DefaultSettings(), sender)

	out, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)
	assert.Equal(t, StateSuggested, out.State)
	assert.Equal(t, []string{"A tighter paragraph."}, out.Suggestions)
	assert.Equal(t, []polish.Mode{polish.ModeFormal, polish.ModeCreative, polish.ModeAnalyzeComparison}, out.Actions)

	reqs := sender.sent()
	require.Len(t, reqs, 1)
	assert.Equal(t, polish.ModeConcise, reqs[0].Mode)
	assert.False(t, reqs[0].IsClarifyRequest)
	assert.Empty(t, reqs[0].CustomInstruction)
}

func TestSubmit_VagueInputGoesToClarify(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{{
		Success: true, Data: polish.Text("What audience is this for?"), Type: polish.TypeClarification,
	}}}
	m := newMachine(t, DefaultSettings(), sender)

	out, err := m.Submit(context.Background(), "f1", "fix my essay")
	require.NoError(t, err)
	assert.Equal(t, StateNeedsClarification, out.State)

	reqs := sender.sent()
	require.Len(t, reqs, 1)
	assert.Equal(t, polish.ModeClarify, reqs[0].Mode)
	assert.True(t, reqs[0].IsClarifyRequest)
}

func TestSubmit_AutoClarifyOff(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.AutoClarify = false
	sender := &fakeSender{}
	m := newMachine(t, s, sender)

	_, err := m.Submit(context.Background(), "f1", "fix my essay")
	require.NoError(t, err)
	assert.Equal(t, polish.ModeConcise, sender.sent()[0].Mode)
}

func TestSubmit_CustomInstructionOnlyForCustomMode(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.CustomInstruction = "use British spelling"
	sender := &fakeSender{}
	m := newMachine(t, s, sender)

	_, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)
	assert.Empty(t, sender.sent()[0].CustomInstruction)

	s.DefaultMode = polish.ModeCustom
	m2 := newMachine(t, s, sender)
	_, err = m2.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)
	assert.Equal(t, "use British spelling", sender.sent()[1].CustomInstruction)
}

func TestSubmit_IdenticalOutputIsAnalysis(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{polish.Suggestion(polish.Text(longPrompt))}}
	m := newMachine(t, DefaultSettings(), sender)

	out, err := m.Submit(context.Background(), "f1", "  "+longPrompt+"  ")
	require.NoError(t, err)
	assert.Equal(t, StateAnalyzed, out.State)
	assert.Equal(t, "No significant changes suggested.", out.Envelope.Data.First())
	assert.Equal(t, polish.TypeAnalysis, out.Envelope.Type)
}

func TestSubmit_ListDropsUnchangedEntries(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{polish.Suggestion(polish.List([]string{longPrompt, "B", ""}))}}
	m := newMachine(t, DefaultSettings(), sender)

	out, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)
	assert.Equal(t, StateSuggested, out.State)
	assert.Equal(t, []string{"B"}, out.Suggestions)
}

func TestSubmit_EmptyInput(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	m := newMachine(t, DefaultSettings(), sender)

	out, err := m.Submit(context.Background(), "f1", "   ")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, polish.KindEmptyInput, out.Envelope.Code)
	assert.Empty(t, sender.sent())

	_, err = m.Retry(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestSubmit_TooLongNeverSends(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	m := newMachine(t, DefaultSettings(), sender)

	out, err := m.Submit(context.Background(), "f1", strings.Repeat("word ", 2001))
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, polish.KindTooLong, out.Envelope.Code)
	assert.Empty(t, sender.sent())
}

func TestSubmit_NoDataFails(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{polish.Suggestion(polish.Text(""))}}
	m := newMachine(t, DefaultSettings(), sender)

	out, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, "Received no data from the AI.", out.Envelope.Error)
}

func TestSubmit_SenderErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: errors.New("port closed")}
	m := newMachine(t, DefaultSettings(), sender)

	out, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, polish.KindContextGone, out.Envelope.Code)
	assert.Equal(t, "Connection to background service failed. Please reload the page or extension.", out.Envelope.Error)
}

func TestFollowUp_Refine(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{
		polish.Suggestion(polish.Text("First draft.")),
		polish.Suggestion(polish.Text("First draft.")),
	}}
	m := newMachine(t, DefaultSettings(), sender)

	_, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)

	out, err := m.FollowUp(context.Background(), "f1", polish.ModeFormal)
	require.NoError(t, err)
	// Identical output on a follow-up is still a suggestion.
	assert.Equal(t, StateSuggested, out.State)
	assert.Equal(t, []polish.Mode{polish.ModeCreative, polish.ModeConcise, polish.ModeAnalyzeComparison}, out.Actions)

	reqs := sender.sent()
	require.Len(t, reqs, 2)
	assert.Equal(t, polish.Request{InputText: "First draft.", Mode: polish.ModeFormal}, reqs[1])
}

func TestFollowUp_AnalyzeComparison(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{
		polish.Suggestion(polish.Text("v1")),
		polish.Suggestion(polish.Text("v2")),
		polish.Suggestion(polish.Text("The rewrite drops the date.")),
	}}
	m := newMachine(t, DefaultSettings(), sender)
	ctx := context.Background()

	_, err := m.Submit(ctx, "f1", longPrompt)
	require.NoError(t, err)
	_, err = m.FollowUp(ctx, "f1", polish.ModeCreative)
	require.NoError(t, err)

	out, err := m.FollowUp(ctx, "f1", polish.ModeAnalyzeComparison)
	require.NoError(t, err)
	assert.Equal(t, StateAnalyzed, out.State)
	assert.Equal(t, polish.TypeAnalysis, out.Envelope.Type)

	reqs := sender.sent()
	require.Len(t, reqs, 3)
	assert.Equal(t, longPrompt, reqs[2].InputText, "comparison is against the original prompt")
	assert.Equal(t, "v2", reqs[2].CustomInstruction, "comparison carries the latest suggestion")
}

func TestFollowUp_Guards(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	m := newMachine(t, DefaultSettings(), sender)
	ctx := context.Background()

	_, err := m.FollowUp(ctx, "f1", polish.ModeFormal)
	assert.ErrorIs(t, err, ErrNoSuggestion)

	_, err = m.Submit(ctx, "f1", longPrompt)
	require.NoError(t, err)
	_, err = m.FollowUp(ctx, "f1", polish.ModeConcise)
	assert.ErrorIs(t, err, ErrActionNotOffered)

	_, err = m.FollowUp(ctx, "missing", polish.ModeFormal)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestApplyUndo_OneShot(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{polish.Suggestion(polish.List([]string{"one", "two"}))}}
	m := newMachine(t, DefaultSettings(), sender)

	_, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)

	_, err = m.Apply("f1", 5, longPrompt)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	text, err := m.Apply("f1", 1, longPrompt)
	require.NoError(t, err)
	assert.Equal(t, "two", text)

	state, err := m.State("f1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)

	prev, err := m.Undo("f1")
	require.NoError(t, err)
	assert.Equal(t, longPrompt, prev)

	_, err = m.Undo("f1")
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestRetry_ReissuesLastRequest(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{replies: []polish.Envelope{
		polish.Failure(polish.KindTimeout, "Request timed out after 30 seconds. Please try again."),
		polish.Suggestion(polish.Text("ok now")),
	}}
	m := newMachine(t, DefaultSettings(), sender)
	ctx := context.Background()

	out, err := m.Submit(ctx, "f1", longPrompt)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)

	out, err = m.Retry(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, StateSuggested, out.State)

	reqs := sender.sent()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0], reqs[1])
}

func TestSubmit_DuplicateTriggerJoinsInFlight(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	sender := &fakeSender{gate: gate}
	m := newMachine(t, DefaultSettings(), sender)

	var wg sync.WaitGroup
	results := make([]Outcome, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = m.Submit(context.Background(), "f1", longPrompt)
	}()

	require.Eventually(t, func() bool { return m.Busy("f1") }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = m.Submit(context.Background(), "f1", longPrompt)
	}()
	time.Sleep(20 * time.Millisecond)
	assert.ErrorIs(t, m.Dismiss("f1"), ErrBusy)
	close(gate)
	wg.Wait()

	assert.Len(t, sender.sent(), 1, "duplicate trigger must not issue a second request")
	assert.Equal(t, results[0].State, results[1].State)
	assert.False(t, m.Busy("f1"))
}

func TestFollowUp_DuringOtherRequestIsBusy(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	m := newMachine(t, DefaultSettings(), sender)
	_, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)

	gate := make(chan struct{})
	sender.gate = gate
	done := make(chan Outcome, 1)
	go func() {
		out, _ := m.Retry(context.Background(), "f1")
		done <- out
	}()
	require.Eventually(t, func() bool { return m.Busy("f1") }, time.Second, 5*time.Millisecond)

	_, err = m.FollowUp(context.Background(), "f1", polish.ModeFormal)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Submit(context.Background(), "f1", longPrompt)
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	out := <-done
	assert.Equal(t, polish.ModeConcise, out.Mode)

	reqs := sender.sent()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, polish.ModeConcise, r.Mode)
	}

	out, err = m.FollowUp(context.Background(), "f1", polish.ModeFormal)
	require.NoError(t, err)
	assert.Equal(t, polish.ModeFormal, out.Mode)
}

func TestReattach_DoesNotJoinStaleRequest(t *testing.T) {
	t.Parallel()

	const other = "draft a short note thanking the team for the launch"
	gate := make(chan struct{})
	sender := &fakeSender{gate: gate}
	m := newMachine(t, DefaultSettings(), sender)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Submit(context.Background(), "f1", longPrompt) //nolint:errcheck
	}()
	require.Eventually(t, func() bool { return m.Busy("f1") }, time.Second, 5*time.Millisecond)

	m.Detach("f1")
	require.NoError(t, m.Attach("f1", "chat.openai.com"))
	assert.False(t, m.Busy("f1"), "fresh context starts idle")

	var fresh Outcome
	var freshErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		fresh, freshErr = m.Submit(context.Background(), "f1", other)
	}()
	require.Eventually(t, func() bool { return m.Busy("f1") }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	require.NoError(t, freshErr)
	assert.Equal(t, StateSuggested, fresh.State)
	state, err := m.State("f1")
	require.NoError(t, err)
	assert.Equal(t, StateSuggested, state)

	inputs := make([]string, 0, 2)
	for _, r := range sender.sent() {
		inputs = append(inputs, r.InputText)
	}
	assert.ElementsMatch(t, []string{longPrompt, other}, inputs)
}

func TestFields_AreIndependent(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	m := newMachine(t, DefaultSettings(), sender)
	require.NoError(t, m.Attach("f2", "claude.ai"))

	_, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)

	s1, _ := m.State("f1")
	s2, _ := m.State("f2")
	assert.Equal(t, StateSuggested, s1)
	assert.Equal(t, StateIdle, s2)
}

func TestAttach_Policy(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.AllowedHosts = []string{"openai.com"}
	m := NewMachine(&fakeSender{}, StaticSettings(s))

	require.NoError(t, m.Attach("a", "chat.openai.com"))
	assert.ErrorIs(t, m.Attach("b", "example.org"), ErrHostNotAllowed)

	s.Enabled = false
	m = NewMachine(&fakeSender{}, StaticSettings(s))
	assert.ErrorIs(t, m.Attach("a", "chat.openai.com"), ErrDisabled)
}

func TestTransitions_ArePublished(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch := bus.Subscribe(TopicTransition)
	m := newMachine(t, DefaultSettings(), &fakeSender{}, WithEventBus(bus))

	_, err := m.Submit(context.Background(), "f1", longPrompt)
	require.NoError(t, err)

	var got []State
	for len(got) < 2 {
		select {
		case evt := <-ch:
			got = append(got, evt.Payload.(Transition).To)
		case <-time.After(time.Second):
			t.Fatalf("only saw transitions %v", got)
		}
	}
	assert.Equal(t, []State{StateSending, StateSuggested}, got)
}

func TestIsVague(t *testing.T) {
	t.Parallel()

	assert.True(t, isVague("fix this", 5))
	assert.True(t, isVague("  one two   three four ", 5))
	assert.False(t, isVague("one two three four five", 5))
}
