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

package server

import (
	"log/slog"
	"strings"

	"github.com/davidfwatson/rsvp-site/internal/config"
	"github.com/davidfwatson/rsvp-site/pkg/logging"
)

// Reload applies the parts of cfg that can change without a restart.
// Currently only the log level is live; other changes are logged and take
// effect on the next start.
func (s *Server) Reload(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Reloading server configuration...")

	s.reloadLogging(cfg)

	for _, field := range restartRequired(s.config, cfg) {
		s.logger.Warn("Configuration change requires a restart", slog.String("field", field))
	}

	// Keep the running config for everything that was not applied.
	s.config.Logging.Level = cfg.Logging.Level

	s.logger.Info("Server configuration reloaded successfully")
	return nil
}

func (s *Server) reloadLogging(cfg *config.Config) {
	if strings.EqualFold(cfg.Logging.Level, s.config.Logging.Level) {
		return
	}
	s.logger.Info("Updating log level",
		slog.String("old_level", s.config.Logging.Level),
		slog.String("new_level", cfg.Logging.Level))
	s.logLevel.Set(logging.ParseLevel(cfg.Logging.Level))
}

// restartRequired names the settings that differ but are fixed at start.
func restartRequired(old, cur *config.Config) []string {
	var fields []string
	if old.Server.Addr() != cur.Server.Addr() {
		fields = append(fields, "server")
	}
	if old.Logging.Format != cur.Logging.Format || old.Logging.File != cur.Logging.File {
		fields = append(fields, "logging.format")
	}
	if old.Store.Path != cur.Store.Path {
		fields = append(fields, "store.path")
	}
	if old.TLS.Enabled != cur.TLS.Enabled || old.TLS.CertFile != cur.TLS.CertFile || old.TLS.KeyFile != cur.TLS.KeyFile {
		fields = append(fields, "tls")
	}
	if old.WebAuthn.RPID != cur.WebAuthn.RPID || strings.Join(old.WebAuthn.RPOrigins, ",") != strings.Join(cur.WebAuthn.RPOrigins, ",") {
		fields = append(fields, "webauthn")
	}
	if old.Auth.Password != cur.Auth.Password || old.Auth.PasswordHash != cur.Auth.PasswordHash {
		fields = append(fields, "auth.password")
	}
	return fields
}
