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
	"github.com/davidfwatson/rsvp-site/internal/config"
	"github.com/spf13/cobra"
)

const redacted = "********"

func newConfigCmd(cfg *Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults and environment overrides",
		Long: `Print the configuration the server would run with, after defaults,
the config file and RSVP_* environment overrides. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg, err := cfg.ServerConfig()
			if err != nil {
				return err
			}
			return printer(cmd, cfg).PrintValue(redact(serverCfg))
		},
	})
	return configCmd
}

// redact returns a copy of cfg with secrets masked.
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	for _, secret := range []*string{&out.Auth.Password, &out.Auth.PasswordHash, &out.Auth.SessionSecret} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return &out
}
