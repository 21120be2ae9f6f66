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
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/invite"
	"github.com/davidfwatson/rsvp-site/pkg/logging"
	"github.com/davidfwatson/rsvp-site/pkg/ratelimit"
	"github.com/davidfwatson/rsvp-site/pkg/webauthn"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RSVP_SERVER_PORT.
const EnvPrefix = "RSVP"

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Logging   logging.Config   `yaml:"logging" mapstructure:"logging"`
	TLS       TLSConfig        `yaml:"tls" mapstructure:"tls"`
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	WebAuthn  webauthn.Config  `yaml:"webauthn" mapstructure:"webauthn"`
	Auth      AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Invites   InvitesConfig    `yaml:"invites" mapstructure:"invites"`
	RateLimit ratelimit.Config `yaml:"ratelimit" mapstructure:"ratelimit"`
	Metrics   MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Health    HealthConfig     `yaml:"health" mapstructure:"health"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// CleanupInterval is how often expired challenges and sessions are swept.
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig locates the admin file
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// InvitesConfig controls invite links
type InvitesConfig struct {
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	// Port serves metrics on a separate listener when non-zero.
	Port int `yaml:"port" mapstructure:"port"`
}

// HealthConfig controls the health endpoints
type HealthConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// defaults holds every key so that environment overrides apply even when
// the file omits the key.
var defaults = map[string]any{
	"server.host":             "127.0.0.1",
	"server.port":             5000,
	"server.read_timeout":     "15s",
	"server.write_timeout":    "15s",
	"server.idle_timeout":     "60s",
	"server.shutdown_timeout": "10s",
	"server.cleanup_interval": "1m",

	"logging.level":        "info",
	"logging.format":       "json",
	"logging.file":         "",
	"logging.max_size_mb":  100,
	"logging.max_backups":  3,
	"logging.max_age_days": 28,

	"tls.enabled":     false,
	"tls.cert_file":   "",
	"tls.key_file":    "",
	"tls.min_version": "TLS1.2",

	"store.path": "admins.json",

	"webauthn.id":                       webauthn.DefaultRPID,
	"webauthn.display_name":             webauthn.DefaultRPDisplayName,
	"webauthn.origins":                  []string{webauthn.DefaultRPOrigin},
	"webauthn.timeout":                  "60s",
	"webauthn.user_verification":        "preferred",
	"webauthn.attestation":              "none",
	"webauthn.resident_key":             "preferred",
	"webauthn.authenticator_attachment": "",
	"webauthn.challenge_ttl":            webauthn.DefaultChallengeTTL.String(),
	"webauthn.debug":                    false,

	"auth.password":       "",
	"auth.password_hash":  "",
	"auth.session_ttl":    "12h",
	"auth.session_secret": "",
	"auth.cookie_name":    "rsvp_session",
	"auth.secure_cookie":  true,
	"auth.owner_name":     "Owner",

	"invites.ttl":      invite.DefaultTTL.String(),
	"invites.base_url": "",

	"ratelimit.enabled":             true,
	"ratelimit.requests_per_min":    30,
	"ratelimit.burst":               10,
	"ratelimit.cleanup_interval":    "10m",
	"ratelimit.max_idle":            "30m",
	"ratelimit.trust_proxy_headers": false,

	"metrics.enabled": true,
	"metrics.path":    "/metrics",
	"metrics.port":    0,

	"health.enabled": true,
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		// defaults are static; a decode failure is a programming error
		panic(err)
	}
	return cfg
}

// Load reads configuration from an optional YAML file, applies RSVP_*
// environment overrides and validates the result. An empty path loads
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	// viper's default decode hooks parse durations and split comma
	// separated lists such as RSVP_WEBAUTHN_ORIGINS.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Metrics.Enabled && c.Metrics.Port != 0 && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %q", c.Metrics.Path)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return errors.New("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return errors.New("TLS key_file is required when TLS is enabled")
		}
	}

	if c.Store.Path == "" {
		return errors.New("store path must be specified")
	}

	if err := c.WebAuthn.Validate(); err != nil {
		return fmt.Errorf("webauthn: %w", err)
	}
	for _, origin := range c.WebAuthn.RPOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webauthn: invalid origin %q", origin)
		}
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if c.Invites.TTL <= 0 {
		return fmt.Errorf("invite ttl must be positive: %s", c.Invites.TTL)
	}
	if c.Invites.BaseURL != "" {
		if u, err := url.Parse(c.Invites.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid invite base_url %q", c.Invites.BaseURL)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}
	return nil
}

// InviteBaseURL returns the configured base URL, falling back to the first
// relying party origin.
func (c *Config) InviteBaseURL() string {
	if c.Invites.BaseURL != "" {
		return c.Invites.BaseURL
	}
	if len(c.WebAuthn.RPOrigins) > 0 {
		return c.WebAuthn.RPOrigins[0]
	}
	return ""
}
