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
	"fmt"

	"github.com/spf13/cobra"
)

func newPasskeyCmd(cfg *Config) *cobra.Command {
	passkeyCmd := &cobra.Command{
		Use:   "passkey",
		Short: "Inspect and remove an admin's passkeys",
	}

	listCmd := &cobra.Command{
		Use:   "list <admin-id>",
		Short: "List an admin's passkeys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, cfg, func(e *env) error {
				passkeys, err := e.passkeys.ListPasskeys(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("admin %s: %w", args[0], err)
				}
				return printer(cmd, cfg).PrintPasskeys(args[0], passkeys)
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <admin-id> <credential-id>",
		Short: "Remove a lost passkey",
		Long: `Remove a passkey from an admin account, for example after a lost
device. An admin left without passkeys can only sign in again through a
new invite, or the password if they are the owner.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, cfg, func(e *env) error {
				if err := e.passkeys.DeletePasskey(cmd.Context(), args[0], args[1]); err != nil {
					return fmt.Errorf("admin %s: %w", args[0], err)
				}
				return printer(cmd, cfg).PrintSuccess(fmt.Sprintf("Passkey %s removed", args[1]))
			})
		},
	}

	passkeyCmd.AddCommand(listCmd, deleteCmd)
	return passkeyCmd
}
