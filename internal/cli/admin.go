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
	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/spf13/cobra"
)

func newAdminCmd(cfg *Config) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Inspect administrator accounts",
	}

	adminCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List administrator accounts",
		Long: `List every administrator account, owner first in registration order.

Example:
  rsvpctl admin list -o table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, cfg, func(e *env) error {
				var admins []admin.Admin
				err := e.store.View(cmd.Context(), func(doc *admin.Document) error {
					for i := range doc.Admins {
						admins = append(admins, *doc.Admins[i].Clone())
					}
					return nil
				})
				if err != nil {
					return err
				}
				return printer(cmd, cfg).PrintAdmins(admins)
			})
		},
	})
	return adminCmd
}
