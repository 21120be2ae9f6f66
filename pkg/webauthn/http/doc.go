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

// Package http exposes passkey ceremonies as JSON endpoints.
//
// # Routes
//
//	POST /admin/passkey/register/options        admin   add a passkey (begin)
//	POST /admin/passkey/register/verify         admin   add a passkey (finish)
//	POST /admin/passkey/auth/options            public  sign in (begin)
//	POST /admin/passkey/auth/verify             public  sign in (finish)
//	GET  /admin/passkey/list                    admin   list own passkeys
//	POST /admin/passkey/delete                  admin   delete own passkey
//	POST /admin/invite/{token}/register/options public  onboard (begin)
//	POST /admin/invite/{token}/register/verify  public  onboard (finish)
//
// # Error Responses
//
// Errors use a JSON body:
//
//	{"error": "ceremony_failed", "message": "Passkey verification failed. Please try again."}
//
// A missing challenge, an unknown credential and a failed verification all
// produce the same ceremony_failed response. An invalid or expired invite
// produces invite_invalid. Admin routes answer 401 without a signed-in
// session.
package http
