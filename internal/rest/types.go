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

package rest

import (
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/invite"
)

// LoginRequest is the body of a legacy password login.
type LoginRequest struct {
	Password string `json:"password"`
}

// MeResponse describes the signed-in admin.
type MeResponse struct {
	AdminID  string `json:"admin_id"`
	Name     string `json:"name"`
	IsOwner  bool   `json:"is_owner"`
	Passkeys int    `json:"passkeys"`
}

// CreateInviteRequest is the body of an invite creation request.
type CreateInviteRequest struct {
	Name string `json:"name"`
}

// DeleteInviteRequest is the body of an invite revocation request.
type DeleteInviteRequest struct {
	Token string `json:"token"`
}

// InviteResponse is a single issued invite.
type InviteResponse struct {
	OK bool `json:"ok"`
	invite.Issued
}

// ListInvitesResponse lists pending invites, oldest first.
type ListInvitesResponse struct {
	Invites []invite.Issued `json:"invites"`
}

// ResolveInviteResponse is what an invitee's landing page needs.
type ResolveInviteResponse struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}
