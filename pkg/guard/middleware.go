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

package guard

import (
	"log/slog"
	"net/http"
)

// Middleware resolves the request's session from its cookie and stores it
// in the request context. A new anonymous session gets a fresh cookie.
func Middleware(g *Guard, cookies *Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := cookies.Read(r)
			s, err := g.Resolve(r.Context(), id)
			if err != nil {
				g.logger.Error("Failed to resolve session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if s.ID != id {
				if err := cookies.Write(w, s); err != nil {
					g.logger.Error("Failed to write session cookie", slog.Any("error", err))
				}
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
