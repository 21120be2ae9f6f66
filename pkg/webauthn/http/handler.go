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

package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/guard"
	"github.com/davidfwatson/rsvp-site/pkg/webauthn"
	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for passkey ceremonies. Every handler
// expects the session resolved by guard.Middleware in the request context.
type Handler struct {
	service *webauthn.Service
	guard   *guard.Guard
	cookies *guard.Cookies
	logger  *slog.Logger
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *webauthn.Service, g *guard.Guard, cookies *guard.Cookies) *Handler {
	return &Handler{
		service: service,
		guard:   g,
		cookies: cookies,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// RegisterOptions handles POST /admin/passkey/register/options for a
// signed-in admin adding a passkey.
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
func (h *Handler) RegisterOptions(w http.ResponseWriter, r *http.Request) {
	s, a, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	options, err := h.service.BeginRegistration(r.Context(), s.ID, webauthn.ExistingAdmin{ID: a.ID})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, options)
}

// RegisterVerify handles POST /admin/passkey/register/verify
//
// Request body: attestation response from the authenticator, with an
// optional "name" labelling the passkey.
// Response: PasskeyListResponse
func (h *Handler) RegisterVerify(w http.ResponseWriter, r *http.Request) {
	s, a, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	_, updated, err := h.guard.CompleteRegistration(r.Context(), s.ID,
		webauthn.ExistingAdmin{ID: a.ID}, body, nameOf(body))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	passkeys, err := h.service.ListPasskeys(r.Context(), updated.ID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PasskeyListResponse{Passkeys: passkeys})
}

// AuthOptions handles POST /admin/passkey/auth/options
//
// Response: WebAuthn PublicKeyCredentialRequestOptions listing every
// registered credential.
func (h *Handler) AuthOptions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	options, err := h.service.BeginAuthentication(r.Context(), s.ID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, options)
}

// AuthVerify handles POST /admin/passkey/auth/verify. On success the
// session cookie is replaced with one bound to the admin.
//
// Request body: assertion response from the authenticator
// Response: AuthResponse
func (h *Handler) AuthVerify(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	bound, a, err := h.guard.CompleteAuthentication(r.Context(), s.ID, body)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.signIn(w, bound, a)
}

// ListPasskeys handles GET /admin/passkey/list
//
// Response: PasskeyListResponse
func (h *Handler) ListPasskeys(w http.ResponseWriter, r *http.Request) {
	_, a, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	passkeys, err := h.service.ListPasskeys(r.Context(), a.ID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, PasskeyListResponse{Passkeys: passkeys})
}

// DeletePasskey handles POST /admin/passkey/delete
//
// Request body:
//
//	{"credential_id": "base64url-id"}
func (h *Handler) DeletePasskey(w http.ResponseWriter, r *http.Request) {
	_, a, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req DeletePasskeyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.CredentialID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "credential_id is required")
		return
	}

	if err := h.service.DeletePasskey(r.Context(), a.ID, req.CredentialID); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// InviteRegisterOptions handles POST /admin/invite/{token}/register/options
//
// Request body (optional):
//
//	{"name": "Invitee Name"}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
func (h *Handler) InviteRegisterOptions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	target := webauthn.PendingInvite{Token: inviteToken(r), Name: nameOf(body)}
	options, err := h.service.BeginRegistration(r.Context(), s.ID, target)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, options)
}

// InviteRegisterVerify handles POST /admin/invite/{token}/register/verify.
// The new admin is signed in on success.
//
// Request body: attestation response from the authenticator, with an
// optional "name" labelling the passkey.
// Response: AuthResponse
func (h *Handler) InviteRegisterVerify(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	target := webauthn.PendingInvite{Token: inviteToken(r)}
	bound, a, err := h.guard.CompleteRegistration(r.Context(), s.ID, target, body, nameOf(body))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.signIn(w, bound, a)
}

func (h *Handler) signIn(w http.ResponseWriter, s *guard.Session, a *admin.Admin) {
	if err := h.cookies.Write(w, s); err != nil {
		h.logger.Error("Failed to write session cookie", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, MessageInternalError)
		return
	}
	h.writeJSON(w, http.StatusOK, AuthResponse{
		OK:      true,
		AdminID: a.ID,
		Name:    a.Name,
		IsOwner: a.IsOwner,
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*guard.Session, bool) {
	s := guard.FromContext(r.Context())
	if s == nil {
		h.logger.Error("Request reached passkey handler without a session")
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, MessageInternalError)
		return nil, false
	}
	return s, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (*guard.Session, *admin.Admin, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, nil, false
	}
	a, err := h.guard.RequireAdmin(r.Context(), s.ID)
	if err != nil {
		h.handleServiceError(w, err)
		return nil, nil, false
	}
	return s, a, true
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return nil, false
	}
	return body, true
}

// nameOf extracts the optional "name" field. Bodies that are not JSON
// objects yield an empty name and are left for the verifier to reject.
func nameOf(body []byte) string {
	var req NamedRequest
	if len(body) == 0 || json.Unmarshal(body, &req) != nil {
		return ""
	}
	return strings.TrimSpace(req.Name)
}

func inviteToken(r *http.Request) string {
	if token := chi.URLParam(r, "token"); token != "" {
		return token
	}
	return r.PathValue("token")
}

// ErrorStatus maps an error to its HTTP status and client-facing body.
func ErrorStatus(err error) (int, ErrorResponse) {
	switch {
	case webauthn.IsCeremonyFailure(err):
		return http.StatusBadRequest, ErrorResponse{ErrorCodeCeremonyFailed, MessageCeremonyFailed}
	case errors.Is(err, admin.ErrInviteInvalid):
		return http.StatusBadRequest, ErrorResponse{ErrorCodeInviteInvalid, MessageInviteInvalid}
	case errors.Is(err, guard.ErrNotOwner):
		return http.StatusForbidden, ErrorResponse{ErrorCodeForbidden, MessageForbidden}
	case errors.Is(err, admin.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorResponse{ErrorCodeUnauthorized, MessageUnauthorized}
	case errors.Is(err, webauthn.ErrInvalidTarget):
		return http.StatusBadRequest, ErrorResponse{ErrorCodeInvalidRequest, "invalid registration target"}
	default:
		return http.StatusInternalServerError, ErrorResponse{ErrorCodeInternalError, MessageInternalError}
	}
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	status, resp := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Passkey request failed", slog.Any("error", err))
	} else {
		h.logger.Debug("Passkey request rejected", slog.Any("error", err))
	}
	h.writeJSON(w, status, resp)
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
