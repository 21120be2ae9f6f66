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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	webauthnhttp "github.com/davidfwatson/rsvp-site/pkg/webauthn/http"
)

// MessageInvalidPassword is returned for a rejected password login.
const MessageInvalidPassword = "Invalid password."

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, webauthnhttp.ErrorResponse{Error: code, Message: message}, statusCode)
}

// handleError maps err with the same table as the passkey routes. Server
// side failures are logged; client errors are not.
func handleError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	statusCode, resp := webauthnhttp.ErrorStatus(err)
	if statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			"path", r.URL.Path,
			slog.Any("error", err))
	}
	writeJSON(w, resp, statusCode)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are gone; nothing left but logging
		slog.Error("Failed to encode JSON response", slog.Any("error", err))
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, webauthnhttp.MaxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, webauthnhttp.ErrorCodeInvalidRequest, "invalid request body")
		return false
	}
	return true
}
