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
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/davidfwatson/rsvp-site/internal/password"
	"github.com/spf13/cobra"
)

func newPasswordCmd(cfg *Config) *cobra.Command {
	passwordCmd := &cobra.Command{
		Use:   "password",
		Short: "Legacy password helpers",
	}

	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Print a bcrypt hash for auth.password_hash",
		Long: `Read a password from the first line of stdin and print its bcrypt
hash, suitable for auth.password_hash or RSVP_AUTH_PASSWORD_HASH.

Example:
  printf '%s\n' "$ADMIN_PASSWORD" | rsvpctl password hash`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := password.Hash(plaintext)
			if err != nil {
				return err
			}
			p := printer(cmd, cfg)
			switch p.format {
			case OutputFormatJSON, OutputFormatYAML:
				return p.PrintValue(map[string]string{"password_hash": hash})
			default:
				_, err := fmt.Fprintln(cmd.OutOrStdout(), hash)
				return err
			}
		},
	}

	passwordCmd.AddCommand(hashCmd)
	return passwordCmd
}

// readPassword reads one line, without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", password.ErrEmptyPassword
	}
	return line, nil
}
