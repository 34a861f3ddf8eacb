package prompt

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/usage"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/llm"
)

// fakeProvider records the last request and answers with a fixed reply.
type fakeProvider struct {
	reply string
	err   error
	last  llm.ChatRequest
}

func (f *fakeProvider) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply, StopReason: "stop", Tokens: 42}, nil
}
func (f *fakeProvider) ModelInfo() llm.ModelMeta { return llm.ModelMeta{ID: "fake-1", Provider: "fake"} }
func (f *fakeProvider) HealthCheck(_ context.Context) error { return nil }

type memRecorder struct {
	mu      sync.Mutex
	records []usage.Record
	err     error
}

func (m *memRecorder) Record(_ context.Context, r usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return m.err
}

func newTestService(p llm.LLMProvider, rec usage.Recorder) *Service {
	router := llm.NewRouter(map[string]llm.LLMProvider{"fake": p}, "fake")
	return NewService(router, nil, rec, nil)
}

func TestService_Optimize(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{reply: "  Send the report by Friday.\n"}
	rec := &memRecorder{}
	svc := newTestService(p, rec)

	res, err := svc.Optimize(context.Background(), Input{
		Text: "pls send report friday", Mode: polish.ModeCreative, CustomInstruction: "keep it short",
	})
	require.NoError(t, err)

	assert.Equal(t, "Send the report by Friday.", res.Data.First())
	assert.Equal(t, polish.TypeSuggestion, res.Type)
	assert.Equal(t, polish.ModeCreative, res.Mode)
	assert.Equal(t, "fake", res.Provider)
	assert.Equal(t, 42, res.Tokens)

	require.Len(t, p.last.Messages, 1)
	assert.Equal(t, "user", p.last.Messages[0].Role)
	assert.Contains(t, p.last.Messages[0].Content, "<user_constraints>keep it short</user_constraints>")
	assert.InDelta(t, 0.9, p.last.Temperature, 1e-6)
	assert.Equal(t, 1000, p.last.MaxTokens)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "creative", rec.records[0].Mode)
	assert.Equal(t, "fake", rec.records[0].Provider)
	assert.Equal(t, usage.OutcomeSuccess, rec.records[0].Outcome)
	assert.NotEmpty(t, rec.records[0].ID)
}

func TestService_InputRequired(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{reply: "x"}
	rec := &memRecorder{}
	_, err := newTestService(p, rec).Optimize(context.Background(), Input{Text: "   ", Mode: polish.ModeConcise})

	assert.ErrorIs(t, err, ErrInputRequired)
	assert.Equal(t, polish.KindEmptyInput, polish.KindOf(err))
	assert.Empty(t, rec.records, "rejected input is not a provider call")
}

func TestService_ProviderFailureIsRecorded(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{err: errors.New("quota exhausted")}
	rec := &memRecorder{}
	_, err := newTestService(p, rec).Optimize(context.Background(), Input{Text: "hello", Mode: polish.ModeAnalyze})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
	require.Len(t, rec.records, 1)
	assert.Equal(t, usage.OutcomeError, rec.records[0].Outcome)
	assert.Equal(t, "analyze", rec.records[0].Mode)
}

func TestService_RecorderFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{err: errors.New("disk full")}
	res, err := newTestService(&fakeProvider{reply: "ok"}, rec).Optimize(context.Background(), Input{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Data.First())
	assert.Equal(t, polish.ModeConcise, res.Mode)
}

func TestService_RouteFailure(t *testing.T) {
	t.Parallel()

	router := llm.NewRouter(map[string]llm.LLMProvider{}, "gemini")
	_, err := NewService(router, nil, nil, nil).Optimize(context.Background(), Input{Text: "hi"})
	assert.Error(t, err)
}
