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

import "errors"

var (
	// ErrStoreIO is returned when the admin file cannot be read, parsed or
	// replaced. Durable state may be unreliable when it surfaces.
	ErrStoreIO = errors.New("admin store I/O error")

	// ErrInvalidDocument is returned when a mutation would break a
	// document invariant. Nothing is written.
	ErrInvalidDocument = errors.New("invalid admin document")

	// ErrAdminNotFound is returned when an admin id is not in the store.
	ErrAdminNotFound = errors.New("admin not found")

	// ErrCredentialExists is returned when a credential id is already
	// registered to any admin.
	ErrCredentialExists = errors.New("credential already registered")

	// ErrCredentialNotFound is returned when a credential id is unknown.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrOwnerExists is returned when a second owner would be created.
	ErrOwnerExists = errors.New("owner account already exists")

	// ErrUnauthorized is returned when the caller lacks an admin or owner
	// session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInviteInvalid is returned for an unknown, expired or consumed
	// invite token. Callers never learn which of the three applied.
	ErrInviteInvalid = errors.New("invite is invalid or has expired")

	// ErrSignCountReplay is returned when an assertion reports a signature
	// counter that did not advance past the stored value.
	ErrSignCountReplay = errors.New("signature counter did not increase")

	// ErrNoChange may be returned by an Update callback that made no
	// modification. Nothing is written and Update returns nil.
	ErrNoChange = errors.New("no change")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("admin store is closed")
)

// IsNotFound reports whether err means an admin or credential is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAdminNotFound) || errors.Is(err, ErrCredentialNotFound)
}
