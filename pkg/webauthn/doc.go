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

// Package webauthn runs the passkey ceremonies that admit administrators
// to the RSVP site.
//
// The package wraps the go-webauthn/webauthn library and adds:
//   - A RegistrationTarget variant selecting between adding a passkey to a
//     signed-in admin and onboarding a new admin through an invite
//   - Single-use challenges bound to the browser session
//   - Credential lookup across every admin before signature verification
//   - Signature counter replay rejection
//
// # Usage
//
//	svc, err := webauthn.NewService(webauthn.ServiceParams{
//	    Config: &webauthn.Config{
//	        RPID:          "rsvp.example.com",
//	        RPDisplayName: "RSVP Site",
//	        RPOrigins:     []string{"https://rsvp.example.com"},
//	    },
//	    Store:   store,
//	    Invites: invites,
//	})
//
// Every Finish call consumes the pending challenge for its session, so a
// failed attempt must start over with a new Begin call.
//
// # HTTP Handlers
//
// The http subpackage exposes the ceremonies as JSON endpoints:
//
//	handler := webauthnhttp.NewHandler(svc, sessions)
//	webauthnhttp.MountChi(r, handler)
//
// Note: WebAuthn requires HTTPS for all operations except on localhost.
package webauthn
