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

package webauthn

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

const (
	// DefaultInviteeName names an admin onboarded without a name.
	DefaultInviteeName = "Admin"

	// DefaultPasskeyLabel labels a credential registered without a name.
	DefaultPasskeyLabel = "Passkey"
)

// RegistrationTarget selects who a new credential is registered for. It
// is either ExistingAdmin or PendingInvite.
type RegistrationTarget interface {
	isRegistrationTarget()
}

// ExistingAdmin registers an additional passkey for a signed-in admin.
type ExistingAdmin struct {
	ID string
}

// PendingInvite onboards a new admin through an invite link. Name is the
// invitee's chosen display name.
type PendingInvite struct {
	Token string
	Name  string
}

func (ExistingAdmin) isRegistrationTarget() {}
func (PendingInvite) isRegistrationTarget() {}

// Ceremony distinguishes the two WebAuthn ceremonies.
type Ceremony string

const (
	CeremonyRegistration   Ceremony = "registration"
	CeremonyAuthentication Ceremony = "authentication"
)

// PasskeySummary is the public view of a registered credential.
type PasskeySummary struct {
	CredentialID string     `json:"credential_id"`
	Name         string     `json:"name"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// adminUser adapts an admin account to the webauthn.User interface. The
// user handle is the admin id.
type adminUser struct {
	id          string
	name        string
	credentials []webauthn.Credential
}

func newAdminUser(a *admin.Admin) (*adminUser, error) {
	u := &adminUser{id: a.ID, name: a.Name}
	for _, c := range a.Credentials {
		wc, err := toWebAuthnCredential(c)
		if err != nil {
			return nil, fmt.Errorf("credential %s: %w", c.CredentialID, err)
		}
		u.credentials = append(u.credentials, wc)
	}
	return u, nil
}

func (u *adminUser) WebAuthnID() []byte {
	return []byte(u.id)
}

func (u *adminUser) WebAuthnName() string {
	return u.name
}

func (u *adminUser) WebAuthnDisplayName() string {
	return u.name
}

func (u *adminUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// adoptFlags replaces the flags of the credential with the given id.
func (u *adminUser) adoptFlags(id []byte, flags webauthn.CredentialFlags) {
	for i := range u.credentials {
		if bytes.Equal(u.credentials[i].ID, id) {
			u.credentials[i].Flags = flags
		}
	}
}

// exclusions lists the user's credentials so the browser refuses to
// register the same authenticator twice.
func (u *adminUser) exclusions() []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(u.credentials))
	for _, c := range u.credentials {
		out = append(out, c.Descriptor())
	}
	return out
}

// encodeID renders binary WebAuthn values the way they are persisted.
func encodeID(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeID(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// toWebAuthnCredential rebuilds the verifier's credential from its stored
// form.
func toWebAuthnCredential(c admin.Credential) (webauthn.Credential, error) {
	id, err := decodeID(c.CredentialID)
	if err != nil {
		return webauthn.Credential{}, fmt.Errorf("decode credential id: %w", err)
	}
	pub, err := decodeID(c.PublicKey)
	if err != nil {
		return webauthn.Credential{}, fmt.Errorf("decode public key: %w", err)
	}
	var aaguid []byte
	if c.AAGUID != "" {
		if aaguid, err = decodeID(c.AAGUID); err != nil {
			return webauthn.Credential{}, fmt.Errorf("decode aaguid: %w", err)
		}
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:              id,
		PublicKey:       pub,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.UserPresent,
			UserVerified:   c.UserVerified,
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:     aaguid,
			SignCount:  c.SignCount,
			Attachment: protocol.AuthenticatorAttachment(c.Attachment),
		},
	}, nil
}

// fromWebAuthnCredential converts a freshly verified credential to its
// stored form.
func fromWebAuthnCredential(wc *webauthn.Credential, label string, now time.Time) admin.Credential {
	if label == "" {
		label = DefaultPasskeyLabel
	}

	transports := make([]string, 0, len(wc.Transport))
	for _, t := range wc.Transport {
		transports = append(transports, string(t))
	}

	c := admin.Credential{
		CredentialID:    encodeID(wc.ID),
		PublicKey:       encodeID(wc.PublicKey),
		SignCount:       wc.Authenticator.SignCount,
		Name:            label,
		AttestationType: wc.AttestationType,
		Transports:      transports,
		Attachment:      string(wc.Authenticator.Attachment),
		UserPresent:     wc.Flags.UserPresent,
		UserVerified:    wc.Flags.UserVerified,
		BackupEligible:  wc.Flags.BackupEligible,
		BackupState:     wc.Flags.BackupState,
		CreatedAt:       now.UTC(),
	}
	if len(wc.Authenticator.AAGUID) > 0 {
		c.AAGUID = encodeID(wc.Authenticator.AAGUID)
	}
	return c
}

// allowList describes every registered credential of every admin.
func allowList(doc *admin.Document) []protocol.CredentialDescriptor {
	owned := doc.Credentials()
	out := make([]protocol.CredentialDescriptor, 0, len(owned))
	for _, oc := range owned {
		id, err := decodeID(oc.Credential.CredentialID)
		if err != nil {
			continue
		}
		d := protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: id,
		}
		for _, t := range oc.Credential.Transports {
			d.Transport = append(d.Transport, protocol.AuthenticatorTransport(t))
		}
		out = append(out, d)
	}
	return out
}

func summarize(a *admin.Admin) []PasskeySummary {
	out := make([]PasskeySummary, 0, len(a.Credentials))
	for _, c := range a.Credentials {
		name := c.Name
		if name == "" {
			name = DefaultPasskeyLabel
		}
		out = append(out, PasskeySummary{
			CredentialID: c.CredentialID,
			Name:         name,
			CreatedAt:    c.CreatedAt,
			LastUsedAt:   c.LastUsedAt,
		})
	}
	return out
}
