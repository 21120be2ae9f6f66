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
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davidfwatson/rsvp-site/internal/password"
	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// run executes rsvpctl with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(NewConfig())
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), err
}

// seededStore creates a store with an owner and returns its path.
func seededStore(t *testing.T) (string, *admin.Admin) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admins.json")
	store, err := admin.NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	owner, err := admin.EnsureOwner(context.Background(), store, "Owner")
	require.NoError(t, err)

	require.NoError(t, admin.AddCredential(context.Background(), store, owner.ID, admin.Credential{
		CredentialID: "cred-1",
		PublicKey:    "pk",
		Name:         "Laptop",
		CreatedAt:    time.Now().UTC(),
	}))
	return path, owner
}

func TestRoot_InvalidOutputFormat(t *testing.T) {
	_, err := run(t, "", "version", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rsvpctl version "+Version)

	out, err = run(t, "", "version", "-o", "json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

func TestAdminList(t *testing.T) {
	path, owner := seededStore(t)

	out, err := run(t, "", "--store", path, "admin", "list", "-o", "json")
	require.NoError(t, err)

	var resp struct {
		Admins []adminRow `json:"admins"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Admins, 1)
	assert.Equal(t, owner.ID, resp.Admins[0].ID)
	assert.True(t, resp.Admins[0].IsOwner)
	assert.Equal(t, 1, resp.Admins[0].Passkeys)
	assert.NotContains(t, out, "public_key")

	out, err = run(t, "", "--store", path, "admin", "list", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "PASSKEYS")
	assert.Contains(t, out, owner.ID)
}

func TestInviteCommands(t *testing.T) {
	path, owner := seededStore(t)

	out, err := run(t, "", "--store", path, "invite", "create", "--name", "Jamie", "-o", "json")
	require.NoError(t, err)
	var created inviteRow
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Jamie", created.Name)
	assert.Equal(t, owner.ID, created.CreatedBy)
	assert.True(t, strings.HasSuffix(created.URL, "/admin/invite/"+created.Token), created.URL)

	out, err = run(t, "", "--store", path, "invite", "list", "-o", "yaml")
	require.NoError(t, err)
	var listed struct {
		Invites []inviteRow `yaml:"invites"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Invites, 1)
	assert.Equal(t, created.Token, listed.Invites[0].Token)

	out, err = run(t, "", "--store", path, "invite", "delete", created.Token)
	require.NoError(t, err)
	assert.Contains(t, out, "revoked")

	out, err = run(t, "", "--store", path, "invite", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending invites")
}

func TestInviteCommands_NoOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.json")

	_, err := run(t, "", "--store", path, "invite", "create", "--name", "Jamie")
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestPasskeyCommands(t *testing.T) {
	path, owner := seededStore(t)

	out, err := run(t, "", "--store", path, "passkey", "list", owner.ID, "-o", "json")
	require.NoError(t, err)
	var listed struct {
		AdminID  string `json:"admin_id"`
		Passkeys []struct {
			CredentialID string `json:"credential_id"`
			Name         string `json:"name"`
		} `json:"passkeys"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Passkeys, 1)
	assert.Equal(t, "cred-1", listed.Passkeys[0].CredentialID)
	assert.Equal(t, "Laptop", listed.Passkeys[0].Name)

	_, err = run(t, "", "--store", path, "passkey", "delete", owner.ID, "cred-1")
	require.NoError(t, err)

	out, err = run(t, "", "--store", path, "passkey", "list", owner.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "No passkeys found")

	_, err = run(t, "", "--store", path, "passkey", "list", "no-such-admin")
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	out, err := run(t, "s3cret\n", "password", "hash")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	checker, err := password.NewChecker("", hash)
	require.NoError(t, err)
	assert.True(t, checker.Verify("s3cret"))

	_, err = run(t, "\n", "password", "hash")
	assert.ErrorIs(t, err, password.ErrEmptyPassword)
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	t.Setenv("RSVP_AUTH_PASSWORD", "plaintext-secret")
	t.Setenv("RSVP_SERVER_PORT", "8081")

	out, err := run(t, "", "config", "show", "-o", "yaml")
	require.NoError(t, err)
	assert.NotContains(t, out, "plaintext-secret")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "port: 8081")
}
