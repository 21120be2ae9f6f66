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

package admin

import (
	"fmt"
	"time"
)

// Document is the full persisted state: every administrator and every
// pending invite. It is the unit of atomic replacement on disk.
type Document struct {
	Admins  []Admin  `json:"admins"`
	Invites []Invite `json:"invites"`
}

// Admin is an administrator account.
type Admin struct {
	// ID is an opaque UUID assigned at creation. It doubles as the
	// WebAuthn user handle for every credential the admin registers.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// IsOwner grants invitation management. At most one admin has it.
	IsOwner bool `json:"is_owner"`

	// Credentials are kept in registration order.
	Credentials []Credential `json:"credentials"`

	CreatedAt time.Time `json:"created_at"`
}

// Credential is a registered passkey. Binary values are stored as
// unpadded base64url strings.
type Credential struct {
	CredentialID string `json:"credential_id"`
	PublicKey    string `json:"public_key"`
	SignCount    uint32 `json:"sign_count"`
	Name         string `json:"name"`

	// Authenticator metadata replayed to the verifier on every assertion.
	AttestationType string   `json:"attestation_type,omitempty"`
	AAGUID          string   `json:"aaguid,omitempty"`
	Transports      []string `json:"transports,omitempty"`
	Attachment      string   `json:"attachment,omitempty"`
	UserPresent     bool     `json:"user_present,omitempty"`
	UserVerified    bool     `json:"user_verified,omitempty"`
	BackupEligible  bool     `json:"backup_eligible,omitempty"`
	BackupState     bool     `json:"backup_state,omitempty"`

	CreatedAt  time.Time  `json:"created_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// LegacyAttestationType is recorded for credentials that were stored
// without authenticator metadata. Those were always registered with an
// attestation conveyance of "none".
const LegacyAttestationType = "none"

// Flags are the authenticator data flags kept with a credential.
type Flags struct {
	UserPresent    bool
	UserVerified   bool
	BackupEligible bool
	BackupState    bool
}

// Legacy reports whether the credential predates flag tracking, so its
// stored flags are unknown rather than false.
func (c *Credential) Legacy() bool {
	return c.AttestationType == "" && c.CreatedAt.IsZero()
}

// Flags returns the stored authenticator flags.
func (c *Credential) Flags() Flags {
	return Flags{
		UserPresent:    c.UserPresent,
		UserVerified:   c.UserVerified,
		BackupEligible: c.BackupEligible,
		BackupState:    c.BackupState,
	}
}

// SetFlags records verified flags. A legacy credential stops being legacy.
func (c *Credential) SetFlags(f Flags) {
	if c.Legacy() {
		c.AttestationType = LegacyAttestationType
	}
	c.UserPresent = f.UserPresent
	c.UserVerified = f.UserVerified
	c.BackupEligible = f.BackupEligible
	c.BackupState = f.BackupState
}

// Invite is a one-time onboarding token issued by the owner.
type Invite struct {
	Token     string    `json:"token"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
}

// NewDocument returns an empty document with non-nil collections so that
// it serializes as {"admins": [], "invites": []}.
func NewDocument() *Document {
	return &Document{
		Admins:  []Admin{},
		Invites: []Invite{},
	}
}

// normalize replaces nil collections left behind by json.Unmarshal.
func (d *Document) normalize() {
	if d.Admins == nil {
		d.Admins = []Admin{}
	}
	if d.Invites == nil {
		d.Invites = []Invite{}
	}
	for i := range d.Admins {
		if d.Admins[i].Credentials == nil {
			d.Admins[i].Credentials = []Credential{}
		}
	}
}

// Validate checks the invariants every persisted document must hold.
func (d *Document) Validate() error {
	adminIDs := make(map[string]struct{}, len(d.Admins))
	credIDs := make(map[string]struct{})
	owners := 0

	for _, a := range d.Admins {
		if a.ID == "" {
			return fmt.Errorf("%w: admin with empty id", ErrInvalidDocument)
		}
		if _, dup := adminIDs[a.ID]; dup {
			return fmt.Errorf("%w: duplicate admin id %s", ErrInvalidDocument, a.ID)
		}
		adminIDs[a.ID] = struct{}{}

		if a.IsOwner {
			owners++
		}

		for _, c := range a.Credentials {
			if _, dup := credIDs[c.CredentialID]; dup {
				return fmt.Errorf("%w: duplicate credential id %s", ErrInvalidDocument, c.CredentialID)
			}
			credIDs[c.CredentialID] = struct{}{}
		}
	}

	if owners > 1 {
		return fmt.Errorf("%w: %d owner accounts", ErrInvalidDocument, owners)
	}

	tokens := make(map[string]struct{}, len(d.Invites))
	for _, inv := range d.Invites {
		if _, dup := tokens[inv.Token]; dup {
			return fmt.Errorf("%w: duplicate invite token", ErrInvalidDocument)
		}
		tokens[inv.Token] = struct{}{}
	}

	return nil
}

// FindAdmin returns a pointer into the document, or nil.
func (d *Document) FindAdmin(id string) *Admin {
	for i := range d.Admins {
		if d.Admins[i].ID == id {
			return &d.Admins[i]
		}
	}
	return nil
}

// Owner returns the owner account, or nil before bootstrap.
func (d *Document) Owner() *Admin {
	for i := range d.Admins {
		if d.Admins[i].IsOwner {
			return &d.Admins[i]
		}
	}
	return nil
}

// FindCredential searches every admin for the credential id.
func (d *Document) FindCredential(credentialID string) (*Admin, *Credential) {
	for i := range d.Admins {
		a := &d.Admins[i]
		for j := range a.Credentials {
			if a.Credentials[j].CredentialID == credentialID {
				return a, &a.Credentials[j]
			}
		}
	}
	return nil, nil
}

// OwnedCredential pairs a credential with the id of the admin holding it.
type OwnedCredential struct {
	AdminID    string
	Credential Credential
}

// Credentials flattens the credentials of every admin.
func (d *Document) Credentials() []OwnedCredential {
	var out []OwnedCredential
	for _, a := range d.Admins {
		for _, c := range a.Credentials {
			out = append(out, OwnedCredential{AdminID: a.ID, Credential: c})
		}
	}
	return out
}

// FindInvite returns a pointer into the document, or nil.
func (d *Document) FindInvite(token string) *Invite {
	for i := range d.Invites {
		if d.Invites[i].Token == token {
			return &d.Invites[i]
		}
	}
	return nil
}

// RemoveInvite drops the token and reports whether it was present.
func (d *Document) RemoveInvite(token string) bool {
	kept := d.Invites[:0]
	removed := false
	for _, inv := range d.Invites {
		if inv.Token == token {
			removed = true
			continue
		}
		kept = append(kept, inv)
	}
	d.Invites = kept
	return removed
}

// PurgeInvites drops every invite created before cutoff and returns how
// many were removed.
func (d *Document) PurgeInvites(cutoff time.Time) int {
	kept := d.Invites[:0]
	purged := 0
	for _, inv := range d.Invites {
		if inv.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, inv)
	}
	d.Invites = kept
	return purged
}

// Clone returns a deep copy so callers can hold results outside a
// critical section.
func (a *Admin) Clone() *Admin {
	c := *a
	c.Credentials = make([]Credential, len(a.Credentials))
	for i, cred := range a.Credentials {
		c.Credentials[i] = cred
		if cred.Transports != nil {
			c.Credentials[i].Transports = append([]string(nil), cred.Transports...)
		}
		if cred.LastUsedAt != nil {
			t := *cred.LastUsedAt
			c.Credentials[i].LastUsedAt = &t
		}
	}
	return &c
}
