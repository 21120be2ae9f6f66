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

package config

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/davidfwatson/rsvp-site/internal/password"
	"github.com/davidfwatson/rsvp-site/pkg/guard"
)

// AuthConfig controls sessions and the legacy owner password
type AuthConfig struct {
	// Password enables the bootstrap login. Prefer PasswordHash, which
	// keeps the plaintext out of the config file.
	Password     string `yaml:"password" mapstructure:"password"`
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`

	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`

	// SessionSecret signs session cookies. When empty a random secret is
	// generated at startup and every restart signs everyone out.
	SessionSecret string `yaml:"session_secret" mapstructure:"session_secret"`
	CookieName    string `yaml:"cookie_name" mapstructure:"cookie_name"`
	SecureCookie  bool   `yaml:"secure_cookie" mapstructure:"secure_cookie"`

	// OwnerName names the owner created by the first password login.
	OwnerName string `yaml:"owner_name" mapstructure:"owner_name"`
}

// Validate checks the auth section.
func (cfg *AuthConfig) Validate() error {
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive: %s", cfg.SessionTTL)
	}
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		return fmt.Errorf("session_secret must be at least 32 bytes")
	}
	return nil
}

// PasswordChecker builds the legacy password verifier. With neither a
// password nor a hash configured the login is disabled.
func (cfg *AuthConfig) PasswordChecker() (*password.Checker, error) {
	return password.NewChecker(cfg.Password, cfg.PasswordHash)
}

// CookieConfig returns the session cookie settings.
func (cfg *AuthConfig) CookieConfig() (guard.CookieConfig, error) {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return guard.CookieConfig{}, fmt.Errorf("generate session secret: %w", err)
		}
	}
	return guard.CookieConfig{
		Name:   cfg.CookieName,
		Secret: secret,
		TTL:    cfg.SessionTTL,
		Secure: cfg.SecureCookie,
	}, nil
}
