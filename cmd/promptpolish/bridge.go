package main

import (
	"fmt"
	"net"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matiasleandrokruk/promptpolish/internal/api"
	"github.com/matiasleandrokruk/promptpolish/internal/bridge"
	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/config"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/proxyclient"
	"github.com/matiasleandrokruk/promptpolish/internal/server"
	pkgauth "github.com/matiasleandrokruk/promptpolish/pkg/auth"
)

func (a *app) bridgeCmd() *cobra.Command {
	var (
		addr      string
		withProxy bool
	)
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Relay WebSocket clients to the proxy",
		Long: `bridge accepts optimize messages over WebSocket at /bridge and forwards
them to the configured proxy endpoint. With --with-proxy it also runs the
proxy in-process and points itself at it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Bridge.Addr = addr
			}
			ctx := cmd.Context()
			g, gctx := errgroup.WithContext(ctx)

			if withProxy {
				p, err := newProxy(ctx, a.cfg, a.logger)
				if err != nil {
					return err
				}
				endpoint, err := localEndpoint(a.cfg.Proxy.Addr)
				if err != nil {
					return err
				}
				a.cfg.Endpoint = endpoint
				g.Go(func() error { return p.server(a.cfg.Proxy.Addr, a.logger.Named("proxy")).Start(gctx) })
			}

			handler, err := newBridgeHandler(a.cfg, clientOptimizer(a.cfg, a.logger), a.logger)
			if err != nil {
				return err
			}
			srv := server.NewServer(handler, server.DefaultConfig(a.cfg.Bridge.Addr), a.logger.Named("bridge"))
			g.Go(func() error { return srv.Start(gctx) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides BRIDGE_ADDR)")
	cmd.Flags().BoolVar(&withProxy, "with-proxy", false, "also run the proxy in this process")
	return cmd
}

// clientOptimizer is the network-context pipeline: validation, then the
// proxy round-trip.
func clientOptimizer(cfg config.Config, logger *zap.Logger) *polish.Optimizer {
	client := proxyclient.New(cfg.Endpoint,
		proxyclient.WithTimeout(cfg.Timeout()),
		proxyclient.WithLogger(logger.Named("proxyclient")))
	return polish.NewOptimizer(client, limitsOf(cfg), cfg.Timeout())
}

// newBridgeHandler wires the relay behind the bridge router. Bearer tokens
// are required when a bridge secret is configured.
func newBridgeHandler(cfg config.Config, o bridge.Optimizer, logger *zap.Logger) (http.Handler, error) {
	relay := bridge.NewRelay(o, logger)
	deps := api.BridgeDeps{
		Bridge: bridge.NewWSHandler(relay, logger, cfg.Bridge.AllowedOrigins),
	}
	if cfg.Bridge.Secret != "" {
		tokens, err := pkgauth.NewTokens(cfg.Bridge.Secret, cfg.TokenTTL())
		if err != nil {
			return nil, err
		}
		deps.Tokens = tokens
	} else {
		logger.Warn("bridge secret not set; /bridge accepts unauthenticated clients")
	}
	return api.NewBridgeRouter(deps), nil
}

// localEndpoint turns a listen address into the URL of the optimize route
// on loopback.
func localEndpoint(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("proxy addr %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/v1/optimize", nil
}
