// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes a runtime over HTTP.
//
// Routes:
//
//	GET    /health
//	GET    /metrics                                        (when enabled)
//	GET    /v1/workflows
//	POST   /v1/workflows/{workflow}/runs/{conversation}         run
//	GET    /v1/workflows/{workflow}/runs/{conversation}         checkpoint
//	DELETE /v1/workflows/{workflow}/runs/{conversation}         cancel
//	POST   /v1/workflows/{workflow}/runs/{conversation}/resume  resume
//	GET    /v1/interrupts?workflow=
//	GET    /v1/events?workflow=&conversation=&type=        server-sent events
//
// With server.auth enabled every /v1 route needs a bearer token, and resume
// and cancel also need one of the reviewer roles. Run and resume count
// against server.rate_limit per client and workflow.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/waypoint/pkg/auth"
	"github.com/kadirpekel/waypoint/pkg/config"
	"github.com/kadirpekel/waypoint/pkg/ratelimit"
	"github.com/kadirpekel/waypoint/pkg/runtime"
)

// Server serves the workflow API.
type Server struct {
	rt     *runtime.Runtime
	cfg    *config.ServerConfig
	logger *slog.Logger
	limit  *ratelimit.Limiter

	tokens    auth.TokenValidator
	validator *auth.JWTValidator
	reviewers []string

	httpServer *http.Server
	listener   net.Listener
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTokenValidator requires bearer tokens checked by v on /v1, replacing
// any validator built from the auth config.
func WithTokenValidator(v auth.TokenValidator) Option {
	return func(s *Server) { s.tokens = v }
}

// New creates a Server for rt. A nil cfg uses defaults.
func New(rt *runtime.Runtime, cfg *config.ServerConfig, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	limit, err := ratelimit.NewFromConfig(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	validator, err := auth.NewValidatorFromConfig(context.Background(), cfg.Auth)
	if err != nil {
		if limit != nil {
			limit.Close()
		}
		return nil, err
	}

	s := &Server{rt: rt, cfg: cfg, logger: slog.Default(), limit: limit}
	if validator != nil {
		s.validator = validator
		s.tokens = validator
	}
	if cfg.Auth != nil {
		s.reviewers = cfg.Auth.ReviewerRoles
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// clientIdentity scopes rate limits per workflow.
func clientIdentity(r *http.Request) (string, string) {
	_, id := ratelimit.DefaultIdentifierFunc(r)
	return chi.URLParam(r, "workflow"), id
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if h := s.rt.Observability().MetricsHandler(); h != nil {
		r.Handle(s.rt.Config().Observability.Metrics.Endpoint, h)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(s.tokens))
		reviewer := auth.RequireRole(s.tokens != nil, s.reviewers...)

		r.Get("/workflows", s.handleListWorkflows)
		r.Route("/workflows/{workflow}/runs/{conversation}", func(r chi.Router) {
			limited := r.With(ratelimit.Middleware(s.limit, clientIdentity))
			limited.Post("/", s.handleRun)
			limited.With(reviewer).Post("/resume", s.handleResume)
			r.Get("/", s.handleCheckpoint)
			r.With(reviewer).Delete("/", s.handleCancel)
		})
		r.Get("/interrupts", s.handleListInterrupts)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Start listens on the configured address and serves until ctx is done
// or the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("HTTP server starting", "address", ln.Addr().String(), "workflows", s.rt.Workflows())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Address
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the rate limit store and key cache.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		s.logger.Info("HTTP server shutting down")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown error: %w", err))
		}
	}
	if s.limit != nil {
		if err := s.limit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rate limit store close error: %w", err))
		}
		s.limit = nil
	}
	if s.validator != nil {
		s.validator.Close()
		s.validator = nil
	}
	return errors.Join(errs...)
}
