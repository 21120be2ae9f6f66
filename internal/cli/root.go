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

// Package cli implements rsvpctl, the operator tool for the admin store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the rsvpctl command tree around cfg.
func NewRootCommand(cfg *Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rsvpctl",
		Short: "rsvpctl - RSVP site administration tool",
		Long: `rsvpctl inspects and manages the RSVP site's admin store: admin
accounts, their passkeys and pending invite links.

It reads the same configuration as the server and can run while the
server is up.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ParseOutputFormat(cfg.OutputFormat)
			return err
		},
	}

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", os.Getenv("RSVP_CONFIG"),
		"server config file (default: built-in defaults and RSVP_* environment)")
	rootCmd.PersistentFlags().StringVar(&cfg.StorePath, "store", "",
		"admin store path (overrides store.path)")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputFormat, "output", "o", cfg.OutputFormat,
		"output format (text, json, table, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(
		newAdminCmd(cfg),
		newInviteCmd(cfg),
		newPasskeyCmd(cfg),
		newPasswordCmd(cfg),
		newConfigCmd(cfg),
		newVersionCmd(cfg),
	)
	return rootCmd
}

// Execute runs rsvpctl with os.Args and returns the exit code.
func Execute() int {
	cfg := NewConfig()
	cmd := NewRootCommand(cfg)
	if err := cmd.Execute(); err != nil {
		printer := NewPrinter(cfg.OutputFormat, os.Stderr)
		if perr := printer.PrintError(err); perr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// printer returns a Printer on the command's stdout.
func printer(cmd *cobra.Command, cfg *Config) *Printer {
	return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout())
}

// withEnv opens the store for the duration of fn.
func withEnv(cmd *cobra.Command, cfg *Config, fn func(*env) error) error {
	e, err := cfg.open(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	return fn(e)
}
