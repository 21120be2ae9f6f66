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
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/guard"
	webauthnhttp "github.com/davidfwatson/rsvp-site/pkg/webauthn/http"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	writeError(w, http.StatusBadRequest, webauthnhttp.ErrorCodeInvalidRequest, "bad input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	var resp webauthnhttp.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Error != webauthnhttp.ErrorCodeInvalidRequest {
		t.Errorf("Expected error code %s, got %s", webauthnhttp.ErrorCodeInvalidRequest, resp.Error)
	}
	if resp.Message != "bad input" {
		t.Errorf("Expected message 'bad input', got %s", resp.Message)
	}
}

func TestHandleError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "unauthorized",
			err:            admin.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   webauthnhttp.ErrorCodeUnauthorized,
		},
		{
			name:           "not owner",
			err:            guard.ErrNotOwner,
			expectedStatus: http.StatusForbidden,
			expectedCode:   webauthnhttp.ErrorCodeForbidden,
		},
		{
			name:           "wrapped invite invalid",
			err:            fmt.Errorf("resolve: %w", admin.ErrInviteInvalid),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   webauthnhttp.ErrorCodeInviteInvalid,
		},
		{
			name:           "store failure",
			err:            fmt.Errorf("%w: disk full", admin.ErrStoreIO),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   webauthnhttp.ErrorCodeInternalError,
		},
		{
			name:           "unknown error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   webauthnhttp.ErrorCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/admin/me", nil)

			handleError(w, r, logger, tt.err)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			var resp webauthnhttp.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Error != tt.expectedCode {
				t.Errorf("Expected code %s, got %s", tt.expectedCode, resp.Error)
			}
			if strings.Contains(resp.Message, "disk full") {
				t.Errorf("Internal error detail leaked to client: %s", resp.Message)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	writeJSON(w, webauthnhttp.OKResponse{OK: true}, http.StatusCreated)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d", http.StatusCreated, w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"ok":true}` {
		t.Errorf("Unexpected body %s", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("Valid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Bob"}`))

		var req CreateInviteRequest
		if !decodeJSON(w, r, &req) {
			t.Fatal("Expected decode to succeed")
		}
		if req.Name != "Bob" {
			t.Errorf("Expected name Bob, got %s", req.Name)
		}
	})

	t.Run("Empty body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", http.NoBody)

		var req CreateInviteRequest
		if !decodeJSON(w, r, &req) {
			t.Fatal("Expected empty body to be accepted")
		}
		if req.Name != "" {
			t.Errorf("Expected empty name, got %s", req.Name)
		}
	})

	t.Run("Malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))

		var req CreateInviteRequest
		if decodeJSON(w, r, &req) {
			t.Fatal("Expected decode to fail")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("Oversized body", func(t *testing.T) {
		w := httptest.NewRecorder()
		big := `{"name":"` + strings.Repeat("a", webauthnhttp.MaxBodyBytes) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))

		var req CreateInviteRequest
		if decodeJSON(w, r, &req) {
			t.Fatal("Expected oversized body to be rejected")
		}
	})
}
