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

func newInviteCmd(cfg *Config) *cobra.Command {
	inviteCmd := &cobra.Command{
		Use:   "invite",
		Short: "Manage invite links",
		Long: `Manage one-time invite links. Every subcommand acts as the owner
account, which must already exist.`,
	}

	var name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new invite link",
		Long: `Issue a new invite link valid for invites.ttl (default 7 days).

Example:
  rsvpctl invite create --name "Jamie"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, cfg, func(e *env) error {
				owner, err := e.owner(cmd.Context())
				if err != nil {
					return err
				}
				issued, err := e.invites.Create(cmd.Context(), owner.ID, name)
				if err != nil {
					return err
				}
				return printer(cmd, cfg).PrintInvite(issued)
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "name of the invitee")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pending invites",
		Long:  `List unexpired invites, oldest first. Expired invites are removed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, cfg, func(e *env) error {
				owner, err := e.owner(cmd.Context())
				if err != nil {
					return err
				}
				issued, err := e.invites.List(cmd.Context(), owner.ID)
				if err != nil {
					return err
				}
				return printer(cmd, cfg).PrintInvites(issued)
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <token>",
		Short: "Revoke an invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, cfg, func(e *env) error {
				owner, err := e.owner(cmd.Context())
				if err != nil {
					return err
				}
				if err := e.invites.Delete(cmd.Context(), owner.ID, args[0]); err != nil {
					return err
				}
				return printer(cmd, cfg).PrintSuccess(fmt.Sprintf("Invite %s revoked", args[0]))
			})
		},
	}

	inviteCmd.AddCommand(createCmd, listCmd, deleteCmd)
	return inviteCmd
}
