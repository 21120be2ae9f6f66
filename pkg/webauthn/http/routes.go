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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteEntry represents a single route with its method, path, and handler.
// Public routes are reachable without a signed-in session.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
	Public  bool
}

// Routes returns every passkey route. Paths are absolute and use
// {token} for the invite path parameter.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: http.MethodPost, Path: "/admin/passkey/register/options", Handler: h.RegisterOptions},
		{Method: http.MethodPost, Path: "/admin/passkey/register/verify", Handler: h.RegisterVerify},
		{Method: http.MethodPost, Path: "/admin/passkey/auth/options", Handler: h.AuthOptions, Public: true},
		{Method: http.MethodPost, Path: "/admin/passkey/auth/verify", Handler: h.AuthVerify, Public: true},
		{Method: http.MethodGet, Path: "/admin/passkey/list", Handler: h.ListPasskeys},
		{Method: http.MethodPost, Path: "/admin/passkey/delete", Handler: h.DeletePasskey},
		{Method: http.MethodPost, Path: "/admin/invite/{token}/register/options", Handler: h.InviteRegisterOptions, Public: true},
		{Method: http.MethodPost, Path: "/admin/invite/{token}/register/verify", Handler: h.InviteRegisterVerify, Public: true},
	}
}

// MountChi mounts the passkey routes on a chi router. The router must
// already run guard.Middleware.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc, g, cookies)
//	r.Group(func(r chi.Router) {
//	    r.Use(guard.Middleware(g, cookies))
//	    webauthnhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	for _, route := range h.Routes() {
		r.Method(route.Method, route.Path, route.Handler)
	}
}

// MountStdlib mounts the passkey routes on a Go 1.22+ http.ServeMux using
// method patterns.
func MountStdlib(mux *http.ServeMux, h *Handler) {
	for _, route := range h.Routes() {
		mux.HandleFunc(route.Method+" "+route.Path, route.Handler)
	}
}
