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
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/guard"
	"github.com/davidfwatson/rsvp-site/pkg/invite"
	webauthnhttp "github.com/davidfwatson/rsvp-site/pkg/webauthn/http"
	"github.com/go-chi/chi/v5"
)

// Handlers serves the admin account and invitation routes. Every handler
// expects the session resolved by guard.Middleware in the request context.
type Handlers struct {
	guard   *guard.Guard
	cookies *guard.Cookies
	invites *invite.Manager
	logger  *slog.Logger
}

// NewHandlers creates the admin handlers.
func NewHandlers(g *guard.Guard, cookies *guard.Cookies, invites *invite.Manager, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		guard:   g,
		cookies: cookies,
		invites: invites,
		logger:  logger,
	}
}

// Login handles POST /admin/login, the legacy password sign-in. The first
// successful login creates the owner account.
//
// Request body:
//
//	{"password": "..."}
//
// Response: AuthResponse
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	bound, a, err := h.guard.LoginWithPassword(r.Context(), s.ID, req.Password)
	if errors.Is(err, admin.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, webauthnhttp.ErrorCodeUnauthorized, MessageInvalidPassword)
		return
	}
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	if err := h.cookies.Write(w, bound); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, webauthnhttp.AuthResponse{
		OK:      true,
		AdminID: a.ID,
		Name:    a.Name,
		IsOwner: a.IsOwner,
	}, http.StatusOK)
}

// Logout handles POST /admin/logout. Signing out an anonymous session
// succeeds.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.guard.Logout(r.Context(), s.ID); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.cookies.Clear(w)
	writeJSON(w, webauthnhttp.OKResponse{OK: true}, http.StatusOK)
}

// Me handles GET /admin/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	writeJSON(w, MeResponse{
		AdminID:  a.ID,
		Name:     a.Name,
		IsOwner:  a.IsOwner,
		Passkeys: len(a.Credentials),
	}, http.StatusOK)
}

// ListInvites handles GET /admin/invites (owner only).
func (h *Handlers) ListInvites(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	issued, err := h.invites.List(r.Context(), owner.ID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, ListInvitesResponse{Invites: issued}, http.StatusOK)
}

// CreateInvite handles POST /admin/invites/create (owner only).
//
// Request body (optional):
//
//	{"name": "Invitee Name"}
//
// Response: InviteResponse
func (h *Handlers) CreateInvite(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req CreateInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issued, err := h.invites.Create(r.Context(), owner.ID, req.Name)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, InviteResponse{OK: true, Issued: *issued}, http.StatusCreated)
}

// DeleteInvite handles POST /admin/invites/delete (owner only). Revoking
// an unknown token succeeds.
//
// Request body:
//
//	{"token": "..."}
func (h *Handlers) DeleteInvite(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req DeleteInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, webauthnhttp.ErrorCodeInvalidRequest, "token is required")
		return
	}

	if err := h.invites.Delete(r.Context(), owner.ID, token); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, webauthnhttp.OKResponse{OK: true}, http.StatusOK)
}

// ResolveInvite handles GET /admin/invite/{token}, the public landing
// lookup. Unknown and expired tokens are indistinguishable.
func (h *Handlers) ResolveInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invites.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	writeJSON(w, ResolveInviteResponse{
		Token:     inv.Token,
		Name:      inv.Name,
		ExpiresAt: inv.CreatedAt.Add(h.invites.TTL()),
	}, http.StatusOK)
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*guard.Session, bool) {
	s := guard.FromContext(r.Context())
	if s == nil {
		h.logger.ErrorContext(r.Context(), "Request reached admin handler without a session")
		writeError(w, http.StatusInternalServerError,
			webauthnhttp.ErrorCodeInternalError, webauthnhttp.MessageInternalError)
		return nil, false
	}
	return s, true
}

func (h *Handlers) requireAdmin(w http.ResponseWriter, r *http.Request) (*admin.Admin, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	a, err := h.guard.RequireAdmin(r.Context(), s.ID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return nil, false
	}
	return a, true
}

func (h *Handlers) requireOwner(w http.ResponseWriter, r *http.Request) (*admin.Admin, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	a, err := h.guard.RequireOwner(r.Context(), s.ID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return nil, false
	}
	return a, true
}
