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

import "github.com/davidfwatson/rsvp-site/pkg/webauthn"

// MaxBodyBytes bounds request bodies. Authenticator responses are a few
// kilobytes at most.
const MaxBodyBytes = 64 << 10

// NamedRequest carries the optional display name sent alongside a
// registration request or authenticator response.
type NamedRequest struct {
	Name string `json:"name,omitempty"`
}

// DeletePasskeyRequest is the request body for deleting a passkey.
type DeletePasskeyRequest struct {
	CredentialID string `json:"credential_id"`
}

// AuthResponse is the response after a ceremony that signs an admin in.
type AuthResponse struct {
	OK      bool   `json:"ok"`
	AdminID string `json:"admin_id"`
	Name    string `json:"name"`
	IsOwner bool   `json:"is_owner"`
}

// PasskeyListResponse lists the signed-in admin's passkeys.
type PasskeyListResponse struct {
	Passkeys []webauthn.PasskeySummary `json:"passkeys"`
}

// OKResponse acknowledges a request with no other result.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeCeremonyFailed = "ceremony_failed"
	ErrorCodeInviteInvalid  = "invite_invalid"
	ErrorCodeUnauthorized   = "unauthorized"
	ErrorCodeForbidden      = "forbidden"
	ErrorCodeInternalError  = "internal_error"
)

// Client-facing messages. Ceremony failures share one message so a caller
// cannot tell which check rejected it.
const (
	MessageCeremonyFailed = "Passkey verification failed. Please try again."
	MessageInviteInvalid  = "This invite link is invalid or has expired."
	MessageUnauthorized   = "Sign in required."
	MessageForbidden      = "Only the site owner can do that."
	MessageInternalError  = "internal server error"
)
