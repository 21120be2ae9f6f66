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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/davidfwatson/rsvp-site/internal/config"
	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/invite"
	"github.com/davidfwatson/rsvp-site/pkg/webauthn"
)

// ErrNoOwner is returned by commands that act as the owner before the
// owner account exists.
var ErrNoOwner = errors.New("no owner account yet; sign in with the admin password first")

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the server configuration file. Empty uses defaults
	// plus RSVP_* environment variables.
	ConfigFile string

	// StorePath overrides store.path from the configuration.
	StorePath string

	// OutputFormat controls output formatting (text, json, table, yaml)
	OutputFormat string

	// Verbose enables debug logging to stderr
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: string(OutputFormatText),
	}
}

// ServerConfig loads the server configuration the CLI operates on.
func (c *Config) ServerConfig() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	if c.StorePath != "" {
		cfg.Store.Path = c.StorePath
	}
	return cfg, nil
}

// env is the set of components a command works with. The store's file
// lock is taken per operation, so commands can run next to the server.
type env struct {
	cfg      *config.Config
	store    *admin.FileStore
	invites  *invite.Manager
	passkeys *webauthn.Service
}

// open builds the command environment. Logs go to stderr at warn level,
// or debug with --verbose.
func (c *Config) open(stderr io.Writer) (*env, error) {
	cfg, err := c.ServerConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	store, err := admin.NewFileStore(cfg.Store.Path, admin.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open admin store: %w", err)
	}
	logger.Debug("Using admin store", "path", cfg.Store.Path)

	invites, err := invite.NewManager(store,
		invite.WithTTL(cfg.Invites.TTL),
		invite.WithBaseURL(cfg.InviteBaseURL()),
		invite.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	passkeys, err := webauthn.NewService(webauthn.ServiceParams{
		Config:  &cfg.WebAuthn,
		Store:   store,
		Invites: invites,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &env{cfg: cfg, store: store, invites: invites, passkeys: passkeys}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// owner returns the owner account.
func (e *env) owner(ctx context.Context) (*admin.Admin, error) {
	var owner *admin.Admin
	err := e.store.View(ctx, func(doc *admin.Document) error {
		if o := doc.Owner(); o != nil {
			owner = o.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrNoOwner
	}
	return owner, nil
}
