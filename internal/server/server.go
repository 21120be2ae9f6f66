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

// Package server assembles the admin store, ceremony engine, session
// guard and HTTP listeners into one process.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/davidfwatson/rsvp-site/internal/config"
	"github.com/davidfwatson/rsvp-site/internal/rest"
	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/guard"
	"github.com/davidfwatson/rsvp-site/pkg/health"
	"github.com/davidfwatson/rsvp-site/pkg/invite"
	"github.com/davidfwatson/rsvp-site/pkg/logging"
	"github.com/davidfwatson/rsvp-site/pkg/metrics"
	"github.com/davidfwatson/rsvp-site/pkg/ratelimit"
	"github.com/davidfwatson/rsvp-site/pkg/webauthn"
	webauthnhttp "github.com/davidfwatson/rsvp-site/pkg/webauthn/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the RSVP admin server process.
type Server struct {
	config    *config.Config
	mu        sync.RWMutex
	logger    *slog.Logger
	logLevel  *slog.LevelVar
	logCloser io.Closer

	store      *admin.FileStore
	sessions   *guard.MemorySessionStore
	challenges *webauthn.MemoryChallengeStore
	limiter    *ratelimit.Limiter

	restServer    *rest.Server
	restListener  net.Listener
	metricsServer *http.Server

	healthChecker    *health.Checker
	metricsCollector *metrics.ResourceCollector

	// Lifecycle
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	shutdownCh chan struct{}
	stopOnce   sync.Once
}

// New builds every component from cfg. Nothing listens until Start.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.Logging.Level))
	logCfg := cfg.Logging
	logCfg.LevelVar = level
	logger, logCloser := logging.New(logCfg)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		logger:     logger,
		logLevel:   level,
		logCloser:  logCloser,
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
	}

	if err := s.initialize(); err != nil {
		cancel()
		s.closeStore()
		_ = logCloser.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) initialize() error {
	cfg := s.config

	store, err := admin.NewFileStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open admin store: %w", err)
	}
	s.store = store
	s.logger.Info("Admin store opened", "path", cfg.Store.Path)

	invites, err := invite.NewManager(store,
		invite.WithTTL(cfg.Invites.TTL),
		invite.WithBaseURL(cfg.InviteBaseURL()),
		invite.WithLogger(s.logger.With("component", "invite")))
	if err != nil {
		return fmt.Errorf("failed to create invite manager: %w", err)
	}

	s.challenges = webauthn.NewMemoryChallengeStore(cfg.WebAuthn.ChallengeTTL)
	service, err := webauthn.NewService(webauthn.ServiceParams{
		Config:     &cfg.WebAuthn,
		Store:      store,
		Invites:    invites,
		Challenges: s.challenges,
		Logger:     s.logger.With("component", "webauthn"),
	})
	if err != nil {
		return fmt.Errorf("failed to create webauthn service: %w", err)
	}

	checker, err := cfg.Auth.PasswordChecker()
	if err != nil {
		return fmt.Errorf("failed to configure password login: %w", err)
	}
	if !checker.Configured() {
		s.logger.Info("Password login disabled")
	}

	s.sessions = guard.NewMemorySessionStore(cfg.Auth.SessionTTL)
	g, err := guard.New(guard.Params{
		Store:     store,
		Engine:    service,
		Sessions:  s.sessions,
		Password:  checker,
		OwnerName: cfg.Auth.OwnerName,
		Logger:    s.logger.With("component", "guard"),
	})
	if err != nil {
		return fmt.Errorf("failed to create session guard: %w", err)
	}

	cookieCfg, err := cfg.Auth.CookieConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.SessionSecret == "" {
		s.logger.Warn("No session secret configured; sessions will not survive a restart")
	}
	cookies, err := guard.NewCookies(cookieCfg)
	if err != nil {
		return fmt.Errorf("failed to configure session cookies: %w", err)
	}

	if cfg.Health.Enabled {
		s.healthChecker = health.NewChecker()
		s.healthChecker.RegisterCheck("admin_store", health.StoreCheck(store))
	}

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(&cfg.RateLimit)
	}

	tlsConfig, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	restCfg := &rest.Config{
		Addr:         cfg.Server.Addr(),
		Guard:        g,
		Cookies:      cookies,
		Invites:      invites,
		Passkeys:     webauthnhttp.NewHandler(service, g, cookies).WithLogger(s.logger.With("component", "passkey")),
		Health:       s.healthChecker,
		Limiter:      s.limiter,
		TrustProxy:   cfg.RateLimit.TrustProxyHeaders,
		TLSConfig:    tlsConfig,
		Logger:       s.logger,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		restCfg.MetricsPath = cfg.Metrics.Path
	}

	s.restServer, err = rest.NewServer(restCfg)
	if err != nil {
		return fmt.Errorf("failed to create REST server: %w", err)
	}
	return nil
}

// Start opens the listeners and background workers and returns once they
// are running.
func (s *Server) Start() error {
	s.logger.Info("Starting RSVP admin server...")

	if s.config.Metrics.Enabled {
		metrics.Enable()
		s.metricsCollector = metrics.NewResourceCollector(15*time.Second, s.sessions.Len, s.challenges.Len)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.metricsCollector.Run(s.ctx)
		}()
	} else {
		metrics.Disable()
	}

	ln, err := net.Listen("tcp", s.restServer.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.restServer.Addr(), err)
	}
	s.mu.Lock()
	s.restListener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.serveREST(ln)

	if s.config.Metrics.Enabled && s.config.Metrics.Port != 0 {
		if err := s.startMetrics(); err != nil {
			return err
		}
	}

	s.wg.Add(1)
	go s.sweep()

	if s.healthChecker != nil {
		s.healthChecker.MarkStarted()
		s.logger.Info("Health checker marked as started")
	}

	s.logger.Info("All servers started successfully", "addr", ln.Addr().String())
	return nil
}

func (s *Server) serveREST(ln net.Listener) {
	defer s.wg.Done()
	if err := s.restServer.Serve(ln); err != nil {
		s.logger.Error("REST server error", slog.Any("error", err))
	}
}

// startMetrics serves Prometheus metrics on their own port.
func (s *Server) startMetrics() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Metrics.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.config.Metrics.Path, promhttp.Handler())
	s.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting metrics server", "address", ln.Addr().String(), "path", s.config.Metrics.Path)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error", slog.Any("error", err))
		}
	}()
	return nil
}

// sweep drops expired challenges and sessions until shutdown.
func (s *Server) sweep() {
	defer s.wg.Done()

	interval := s.config.Server.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			challenges := s.challenges.Cleanup()
			sessions := s.sessions.Cleanup()
			if challenges > 0 || sessions > 0 {
				s.logger.Debug("Swept expired state",
					"challenges", challenges,
					"sessions", sessions)
			}
		}
	}
}

// Shutdown stops the listeners, waits for background work and closes the
// admin store. It is safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down server...")

	if s.healthChecker != nil {
		s.healthChecker.MarkNotStarted()
	}
	s.cancel()

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if s.restServer != nil {
		s.logger.Info("Shutting down REST server...")
		if err := s.restServer.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.metricsServer != nil {
		s.logger.Info("Shutting down metrics server...")
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown metrics server: %w", err))
		}
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All servers stopped")
	case <-shutdownCtx.Done():
		s.logger.Warn("Shutdown timeout exceeded, forcing stop")
	}

	s.closeStore()
	close(s.shutdownCh)
	s.logger.Info("Server shutdown complete")

	if err := s.logCloser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("Error closing admin store", slog.Any("error", err))
	}
}

// WaitForShutdown blocks until Shutdown completes.
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// Addr returns the bound REST address once Start has run, or the
// configured address before.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.restListener != nil {
		return s.restListener.Addr().String()
	}
	return s.config.Server.Addr()
}

// RESTServer returns the REST server.
func (s *Server) RESTServer() *rest.Server {
	return s.restServer
}

// Store returns the admin store.
func (s *Server) Store() admin.Store {
	return s.store
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
