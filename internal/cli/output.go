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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/invite"
	"github.com/davidfwatson/rsvp-site/pkg/webauthn"
	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatText, OutputFormatJSON, OutputFormatTable, OutputFormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(strings.ToLower(format)),
		writer: writer,
	}
}

// adminRow is the printed form of an admin; credentials are summarized.
type adminRow struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	IsOwner   bool      `json:"is_owner" yaml:"is_owner"`
	Passkeys  int       `json:"passkeys" yaml:"passkeys"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type inviteRow struct {
	Token     string    `json:"token" yaml:"token"`
	Name      string    `json:"name" yaml:"name"`
	CreatedBy string    `json:"created_by" yaml:"created_by"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
	URL       string    `json:"url" yaml:"url"`
}

func toInviteRow(inv invite.Issued) inviteRow {
	return inviteRow{
		Token:     inv.Token,
		Name:      inv.Name,
		CreatedBy: inv.CreatedBy,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
		URL:       inv.URL,
	}
}

// PrintAdmins prints administrator accounts without their key material.
func (p *Printer) PrintAdmins(admins []admin.Admin) error {
	rows := make([]adminRow, 0, len(admins))
	for _, a := range admins {
		rows = append(rows, adminRow{
			ID:        a.ID,
			Name:      a.Name,
			IsOwner:   a.IsOwner,
			Passkeys:  len(a.Credentials),
			CreatedAt: a.CreatedAt,
		})
	}

	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{"admins": rows})
	case OutputFormatYAML:
		return p.printYAML(map[string]any{"admins": rows})
	case OutputFormatTable:
		if len(rows) == 0 {
			fmt.Fprintln(p.writer, "No admins found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-36s  %-24s  %-5s  %-8s  %s\n", "ID", "NAME", "OWNER", "PASSKEYS", "CREATED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 100))
		for _, r := range rows {
			fmt.Fprintf(p.writer, "%-36s  %-24s  %-5t  %-8d  %s\n",
				r.ID, r.Name, r.IsOwner, r.Passkeys, r.CreatedAt.Format(time.RFC3339))
		}
		return nil
	case OutputFormatText:
		if len(rows) == 0 {
			fmt.Fprintln(p.writer, "No admins found")
			return nil
		}
		fmt.Fprintln(p.writer, "Admins:")
		for _, r := range rows {
			role := "admin"
			if r.IsOwner {
				role = "owner"
			}
			fmt.Fprintf(p.writer, "  - %s (%s, %s, %d passkeys)\n", r.Name, r.ID, role, r.Passkeys)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintInvites prints pending invites.
func (p *Printer) PrintInvites(invites []invite.Issued) error {
	rows := make([]inviteRow, 0, len(invites))
	for _, inv := range invites {
		rows = append(rows, toInviteRow(inv))
	}

	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{"invites": rows})
	case OutputFormatYAML:
		return p.printYAML(map[string]any{"invites": rows})
	case OutputFormatTable:
		if len(rows) == 0 {
			fmt.Fprintln(p.writer, "No pending invites")
			return nil
		}
		fmt.Fprintf(p.writer, "%-36s  %-20s  %s\n", "TOKEN", "NAME", "EXPIRES")
		fmt.Fprintln(p.writer, strings.Repeat("-", 82))
		for _, r := range rows {
			fmt.Fprintf(p.writer, "%-36s  %-20s  %s\n", r.Token, r.Name, r.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	case OutputFormatText:
		if len(rows) == 0 {
			fmt.Fprintln(p.writer, "No pending invites")
			return nil
		}
		fmt.Fprintln(p.writer, "Invites:")
		for _, r := range rows {
			fmt.Fprintf(p.writer, "  - %s %q expires %s\n", r.Token, r.Name, r.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintInvite prints a newly issued invite.
func (p *Printer) PrintInvite(inv *invite.Issued) error {
	row := toInviteRow(*inv)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(row)
	case OutputFormatYAML:
		return p.printYAML(row)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Invite created for %q\n", row.Name)
		fmt.Fprintf(p.writer, "  Token:   %s\n", row.Token)
		fmt.Fprintf(p.writer, "  URL:     %s\n", row.URL)
		fmt.Fprintf(p.writer, "  Expires: %s\n", row.ExpiresAt.Format(time.RFC3339))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintPasskeys prints an admin's passkeys.
func (p *Printer) PrintPasskeys(adminID string, passkeys []webauthn.PasskeySummary) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{"admin_id": adminID, "passkeys": passkeys})
	case OutputFormatYAML:
		return p.printYAML(map[string]any{"admin_id": adminID, "passkeys": passkeys})
	case OutputFormatTable:
		if len(passkeys) == 0 {
			fmt.Fprintln(p.writer, "No passkeys found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-44s  %-20s  %-25s  %s\n", "CREDENTIAL ID", "NAME", "CREATED", "LAST USED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 120))
		for _, pk := range passkeys {
			fmt.Fprintf(p.writer, "%-44s  %-20s  %-25s  %s\n",
				pk.CredentialID, pk.Name, pk.CreatedAt.Format(time.RFC3339), lastUsed(pk.LastUsedAt))
		}
		return nil
	case OutputFormatText:
		if len(passkeys) == 0 {
			fmt.Fprintln(p.writer, "No passkeys found")
			return nil
		}
		fmt.Fprintf(p.writer, "Passkeys for %s:\n", adminID)
		for _, pk := range passkeys {
			fmt.Fprintf(p.writer, "  - %s (%s, last used %s)\n", pk.Name, pk.CredentialID, lastUsed(pk.LastUsedAt))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func lastUsed(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// PrintValue prints an arbitrary document. Text and table fall back to
// YAML, which reads well for nested configuration.
func (p *Printer) PrintValue(v any) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(v)
	case OutputFormatYAML, OutputFormatText, OutputFormatTable:
		return p.printYAML(v)
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status":  "success",
			"message": message,
		})
	case OutputFormatYAML:
		return p.printYAML(map[string]any{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatYAML:
		return p.printYAML(map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data any) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// printYAML prints data as YAML
func (p *Printer) printYAML(data any) error {
	encoder := yaml.NewEncoder(p.writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}
