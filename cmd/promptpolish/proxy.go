package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matiasleandrokruk/promptpolish/internal/api"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/prompt"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/usage"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/config"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/llm"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/sqlite"
	"github.com/matiasleandrokruk/promptpolish/internal/server"
)

// healthInterval is how often the proxy probes its providers in the background.
const healthInterval = 5 * time.Minute

func (a *app) proxyCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the HTTP optimize endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Proxy.Addr = addr
			}
			ctx := cmd.Context()
			p, err := newProxy(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return p.server(a.cfg.Proxy.Addr, a.logger).Start(gctx) })
			g.Go(func() error { return p.watchProviders(gctx, healthInterval, a.logger) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides PROXY_ADDR)")
	return cmd
}

// proxy is the assembled proxy: router, providers and resources to close.
type proxy struct {
	handler   http.Handler
	providers *llm.Router
	closers   []io.Closer
}

func newProxy(ctx context.Context, cfg config.Config, logger *zap.Logger) (*proxy, error) {
	router, err := newProviderRouter(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	library, err := loadLibrary(cfg.Proxy.PromptsFile)
	if err != nil {
		return nil, err
	}

	p := &proxy{providers: router}
	deps := api.ProxyDeps{
		Providers:      router,
		Limits:         limitsOf(cfg),
		RateLimit:      cfg.Proxy.RateLimit,
		AllowedOrigins: cfg.Proxy.AllowedOrigins,
		Logger:         logger,
	}

	var recorder usage.Recorder
	if cfg.Proxy.UsageDBPath != "" {
		db, err := sqlite.Open(ctx, cfg.Proxy.UsageDBPath)
		if err != nil {
			return nil, err
		}
		store := usage.NewStore(db)
		recorder, deps.Usage = store, store
		p.closers = append(p.closers, db)
	}

	deps.Optimizer = prompt.NewService(router, library, recorder, logger)
	p.handler = api.NewProxyRouter(deps)

	logger.Info("proxy configured",
		zap.String("provider", cfg.LLM.Provider),
		zap.Strings("registered", router.Keys()),
		zap.Bool("usage_log", cfg.Proxy.UsageDBPath != ""))
	return p, nil
}

func (p *proxy) server(addr string, logger *zap.Logger) *server.Server {
	return server.NewServer(p.handler, server.DefaultConfig(addr), logger, p.closers...)
}

// watchProviders logs unreachable providers every interval until ctx is done.
func (p *proxy) watchProviders(ctx context.Context, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			probe, cancel := context.WithTimeout(ctx, 10*time.Second)
			for key, err := range p.providers.HealthCheck(probe) {
				logger.Warn("provider unhealthy", zap.String("provider", key), zap.Error(err))
			}
			cancel()
		}
	}
}

// newProviderRouter registers every provider that has credentials plus
// Ollama, which needs none. The selected provider must be among them.
func newProviderRouter(ctx context.Context, cfg config.LLM) (*llm.Router, error) {
	router := llm.NewRouter(nil, cfg.Provider)

	if cfg.Gemini.APIKey != "" {
		gemini, err := llm.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		router.Register("gemini", gemini)
	}
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", llm.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model))
	}
	router.Register("ollama", llm.NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel))

	if _, err := router.Route(ctx); err != nil {
		return nil, fmt.Errorf("provider %q selected but not configured: %w", cfg.Provider, err)
	}
	return router, nil
}

// loadLibrary compiles the prompt library at path, or the built-in one when
// path is empty.
func loadLibrary(path string) (*prompt.Library, error) {
	if path == "" {
		return prompt.DefaultLibrary(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: %w", err)
	}
	set, err := prompt.ParseTemplateSet(raw)
	if err != nil {
		return nil, err
	}
	return prompt.NewLibrary(set)
}
