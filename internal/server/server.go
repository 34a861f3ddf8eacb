// Package server runs an http.Handler until its context is cancelled, then
// shuts it down gracefully and releases the resources it owns.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ShutdownGrace bounds how long in-flight requests may run after cancel.
	ShutdownGrace time.Duration
}

// DefaultConfig returns defaults sized for the proxy: WriteTimeout covers
// the slowest provider call.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:          addr,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  90 * time.Second,
		IdleTimeout:   60 * time.Second,
		ShutdownGrace: 10 * time.Second,
	}
}

// Server wraps an http.Server and the resources closed after it stops.
type Server struct {
	config  Config
	http    *http.Server
	logger  *zap.Logger
	closers []io.Closer
}

// NewServer creates a server for handler. closers (e.g. the usage database)
// are closed after shutdown, in order.
func NewServer(handler http.Handler, config Config, logger *zap.Logger, closers ...io.Closer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config: config,
		logger: logger,
		http: &http.Server{
			Addr:              config.Addr,
			Handler:           handler,
			ReadHeaderTimeout: config.ReadTimeout,
			ReadTimeout:       config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
		},
		closers: closers,
	}
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down. It returns nil
// after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}
	return s.Shutdown(context.WithoutCancel(ctx))
}

// Shutdown stops accepting connections, waits up to ShutdownGrace for
// in-flight requests, then runs the closers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	grace := s.config.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	err := s.http.Shutdown(ctx)
	if cerr := s.close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
