// Copyright (c) 2025 David F. Watson
//
// This file is part of rsvp-site.
//
// rsvp-site is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Open an issue at https://github.com/davidfwatson/rsvp-site for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/guard"
	"github.com/davidfwatson/rsvp-site/pkg/health"
	"github.com/davidfwatson/rsvp-site/pkg/invite"
	"github.com/davidfwatson/rsvp-site/pkg/metrics"
	"github.com/davidfwatson/rsvp-site/pkg/ratelimit"
	webauthnhttp "github.com/davidfwatson/rsvp-site/pkg/webauthn/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the admin HTTP server.
type Server struct {
	server    *http.Server
	handlers  *Handlers
	passkeys  *webauthnhttp.Handler
	guard     *guard.Guard
	cookies   *guard.Cookies
	health    *health.Checker
	limiter   *ratelimit.Limiter
	config    *Config
	tlsConfig *tls.Config
	logger    *slog.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:5000)
	Addr string

	Guard    *guard.Guard
	Cookies  *guard.Cookies
	Invites  *invite.Manager
	Passkeys *webauthnhttp.Handler

	// Health serves /health/live and /health/ready when set.
	Health *health.Checker

	// Limiter throttles the public sign-in and onboarding routes when set.
	Limiter    *ratelimit.Limiter
	TrustProxy bool

	// MetricsPath serves Prometheus metrics on this listener when set.
	MetricsPath string

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	Logger *slog.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Guard == nil || cfg.Cookies == nil {
		return nil, fmt.Errorf("guard and cookies are required")
	}
	if cfg.Invites == nil {
		return nil, fmt.Errorf("invite manager is required")
	}
	if cfg.Passkeys == nil {
		return nil, fmt.Errorf("passkey handler is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:5000"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		handlers:  NewHandlers(cfg.Guard, cfg.Cookies, cfg.Invites, logger),
		passkeys:  cfg.Passkeys,
		guard:     cfg.Guard,
		cookies:   cfg.Cookies,
		health:    cfg.Health,
		limiter:   cfg.Limiter,
		config:    cfg,
		tlsConfig: cfg.TLSConfig,
		logger:    logger,
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.setupRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}
	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(RequestIDMiddleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(SecurityHeadersMiddleware)

	if s.health != nil {
		r.Get("/health/live", s.LivenessHandler)
		r.Get("/health/ready", s.ReadinessHandler)
	}
	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware(s.guard, s.cookies))

		r.With(s.throttle).Post("/admin/login", s.handlers.Login)
		r.Post("/admin/logout", s.handlers.Logout)
		r.Get("/admin/me", s.handlers.Me)

		r.Get("/admin/invites", s.handlers.ListInvites)
		r.Post("/admin/invites/create", s.handlers.CreateInvite)
		r.Post("/admin/invites/delete", s.handlers.DeleteInvite)
		r.With(s.throttle).Get("/admin/invite/{token}", s.handlers.ResolveInvite)

		for _, route := range s.passkeys.Routes() {
			var h http.Handler = route.Handler
			if route.Public {
				h = s.throttle(h)
			}
			r.Method(route.Method, route.Path, h)
		}
	})

	return r
}

// throttle applies the rate limiter when one is configured.
func (s *Server) throttle(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return ratelimit.Middleware(s.limiter, s.config.TrustProxy)(next)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	var err error
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server", "addr", ln.Addr().String())
		err = s.server.ServeTLS(ln, "", "")
	} else {
		s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())
		err = s.server.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", slog.Any("error", err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}
