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
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mutations are load-mutate-save cycles run through Store.Update.

// AddAdmin appends a new administrator.
func AddAdmin(ctx context.Context, s Store, a Admin) error {
	return s.Update(ctx, func(doc *Document) error {
		if a.IsOwner && doc.Owner() != nil {
			return ErrOwnerExists
		}
		if a.Credentials == nil {
			a.Credentials = []Credential{}
		}
		doc.Admins = append(doc.Admins, a)
		return nil
	})
}

// AddCredential appends cred to the admin. Credential ids are unique
// across every admin.
func AddCredential(ctx context.Context, s Store, adminID string, cred Credential) error {
	return s.Update(ctx, func(doc *Document) error {
		a := doc.FindAdmin(adminID)
		if a == nil {
			return fmt.Errorf("%w: %s", ErrAdminNotFound, adminID)
		}
		if owner, _ := doc.FindCredential(cred.CredentialID); owner != nil {
			return ErrCredentialExists
		}
		a.Credentials = append(a.Credentials, cred)
		return nil
	})
}

// SignCountReplayed reports whether a reported counter fails to advance
// past the stored one. Two zero counters mean the authenticator does not
// implement a counter and are accepted.
func SignCountReplayed(stored, reported uint32) bool {
	if stored == 0 && reported == 0 {
		return false
	}
	return reported <= stored
}

// UpdateSignCount records a successful assertion. The replay rule is
// checked again against the freshly loaded document so that two
// concurrent assertions cannot both advance from the same value. A
// non-nil flags value is stored alongside the count.
func UpdateSignCount(ctx context.Context, s Store, credentialID string, count uint32, usedAt time.Time, flags *Flags) (*Admin, error) {
	var updated *Admin
	err := s.Update(ctx, func(doc *Document) error {
		a, c := doc.FindCredential(credentialID)
		if c == nil {
			return ErrCredentialNotFound
		}
		if SignCountReplayed(c.SignCount, count) {
			return fmt.Errorf("%w: stored %d, reported %d", ErrSignCountReplay, c.SignCount, count)
		}
		c.SignCount = count
		if flags != nil {
			c.SetFlags(*flags)
		}
		t := usedAt.UTC()
		c.LastUsedAt = &t
		updated = a.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveCredential deletes one of the admin's credentials. Removing a
// credential that is already gone succeeds.
func RemoveCredential(ctx context.Context, s Store, adminID, credentialID string) error {
	return s.Update(ctx, func(doc *Document) error {
		a := doc.FindAdmin(adminID)
		if a == nil {
			return fmt.Errorf("%w: %s", ErrAdminNotFound, adminID)
		}
		kept := a.Credentials[:0]
		for _, c := range a.Credentials {
			if c.CredentialID != credentialID {
				kept = append(kept, c)
			}
		}
		a.Credentials = kept
		return nil
	})
}

// AddInvite appends a pending invite.
func AddInvite(ctx context.Context, s Store, inv Invite) error {
	return s.Update(ctx, func(doc *Document) error {
		doc.Invites = append(doc.Invites, inv)
		return nil
	})
}

// RemoveInvite drops a pending invite. Unknown tokens are ignored.
func RemoveInvite(ctx context.Context, s Store, token string) error {
	return s.Update(ctx, func(doc *Document) error {
		doc.RemoveInvite(token)
		return nil
	})
}

// EnsureOwner returns the owner account, creating it with the given name
// when the store has none. Repeated calls never create a second owner.
func EnsureOwner(ctx context.Context, s Store, name string) (*Admin, error) {
	var owner *Admin
	err := s.Update(ctx, func(doc *Document) error {
		if existing := doc.Owner(); existing != nil {
			owner = existing.Clone()
			return ErrNoChange
		}
		doc.Admins = append(doc.Admins, Admin{
			ID:          uuid.NewString(),
			Name:        name,
			IsOwner:     true,
			Credentials: []Credential{},
			CreatedAt:   time.Now().UTC(),
		})
		owner = doc.Admins[len(doc.Admins)-1].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}
