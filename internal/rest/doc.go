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

// Package rest provides the admin HTTP server for the RSVP site.
//
// Every /admin route runs behind guard.Middleware, which resolves the
// session cookie into a guard.Session before the handler sees it. Health
// and metrics endpoints sit outside that group and never create sessions.
//
// # Server Setup
//
//	server, _ := rest.NewServer(&rest.Config{
//	    Addr:     "127.0.0.1:5000",
//	    Guard:    g,
//	    Cookies:  cookies,
//	    Invites:  invites,
//	    Passkeys: webauthnhttp.NewHandler(service, g, cookies),
//	    Health:   checker,
//	    Limiter:  limiter,
//	})
//
//	go server.Start()
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	server.Stop(ctx)
//
// # API Endpoints
//
// Session:
//   - POST /admin/login - Legacy password sign-in; creates the owner on first use
//   - POST /admin/logout - End the session
//   - GET /admin/me - Describe the signed-in admin
//
// Passkeys:
//   - POST /admin/passkey/auth/options - Begin a passkey sign-in
//   - POST /admin/passkey/auth/verify - Finish a passkey sign-in
//   - POST /admin/passkey/register/options - Begin adding a passkey
//   - POST /admin/passkey/register/verify - Finish adding a passkey
//   - GET /admin/passkey/list - List the signed-in admin's passkeys
//   - POST /admin/passkey/delete - Remove one of them
//
// Invitations (owner only, except the invitee routes):
//   - GET /admin/invites - List pending invites
//   - POST /admin/invites/create - Issue an invite link
//   - POST /admin/invites/delete - Revoke an invite
//   - GET /admin/invite/{token} - Resolve an invite for its landing page
//   - POST /admin/invite/{token}/register/options - Begin invitee onboarding
//   - POST /admin/invite/{token}/register/verify - Finish onboarding and sign in
//
// Operations:
//   - GET /health/live - Liveness check
//   - GET /health/ready - Readiness check, including the admin store check
//   - GET /metrics - Prometheus metrics, when enabled on the main listener
//
// # Errors
//
// Errors are JSON objects with an "error" code and a "message". All
// passkey ceremony failures share the ceremony_failed code, and unknown
// or expired invite tokens share invite_invalid.
package rest
