package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/usage"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/llm"
)

// ErrInputRequired is returned when the request carries no text.
var ErrInputRequired = polish.NewError(polish.KindEmptyInput, "Input text is required")

// ProviderRouter picks the provider for a request.
type ProviderRouter interface {
	Route(ctx context.Context) (llm.LLMProvider, error)
}

// Result is a completed optimization.
type Result struct {
	Data     polish.Data
	Type     polish.ResultType
	Mode     polish.Mode
	Provider string
	Tokens   int
}

// Service turns a client request into a provider call.
type Service struct {
	router  ProviderRouter
	library *Library
	usage   usage.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires a Service. A nil recorder disables usage logging.
func NewService(router ProviderRouter, library *Library, recorder usage.Recorder, logger *zap.Logger) *Service {
	if library == nil {
		library = DefaultLibrary()
	}
	if recorder == nil {
		recorder = usage.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{router: router, library: library, usage: recorder, logger: logger, now: time.Now}
}

// Optimize renders the prompt for in, calls the routed provider and records
// the outcome in the usage log.
func (s *Service) Optimize(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrInputRequired
	}

	rendered, err := s.library.Render(in)
	if err != nil {
		return nil, err
	}

	provider, err := s.router.Route(ctx)
	if err != nil {
		return nil, fmt.Errorf("route provider: %w", err)
	}
	meta := provider.ModelInfo()

	start := s.now()
	resp, err := provider.ChatCompletion(ctx, llm.ChatRequest{
		Messages:    []llm.Message{{Role: "user", Content: rendered.Prompt}},
		Temperature: rendered.Temperature,
		MaxTokens:   rendered.MaxTokens,
	})
	s.record(ctx, rendered.Mode, meta.Provider, err, s.now().Sub(start))
	if err != nil {
		s.logger.Warn("provider call failed",
			zap.String("provider", meta.Provider),
			zap.String("mode", string(rendered.Mode)),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", meta.Provider, err)
	}

	s.logger.Debug("optimized",
		zap.String("provider", meta.Provider),
		zap.String("mode", string(rendered.Mode)),
		zap.Bool("deep_polish", in.DeepPolish),
		zap.Int("tokens", resp.Tokens))

	return &Result{
		Data:     polish.Text(strings.TrimSpace(resp.Content)),
		Type:     rendered.Type,
		Mode:     rendered.Mode,
		Provider: meta.Provider,
		Tokens:   resp.Tokens,
	}, nil
}

// Library exposes the compiled template library.
func (s *Service) Library() *Library { return s.library }

func (s *Service) record(ctx context.Context, mode polish.Mode, provider string, callErr error, latency time.Duration) {
	outcome := usage.OutcomeSuccess
	if callErr != nil {
		outcome = usage.OutcomeError
	}
	rec := usage.Record{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Mode:      string(mode),
		Provider:  provider,
		Outcome:   outcome,
		LatencyMS: latency.Milliseconds(),
		CreatedAt: s.now().UTC(),
	}
	// Usage logging never fails a request.
	if err := s.usage.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("usage record failed", zap.Error(err))
	}
}
