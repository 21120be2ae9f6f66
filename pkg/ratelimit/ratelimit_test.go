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

package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             10,
	})
	defer limiter.Stop()

	if !limiter.IsEnabled() {
		t.Error("Expected limiter to be enabled")
	}
	if limiter.burst != 10 {
		t.Errorf("Expected burst 10, got %d", limiter.burst)
	}

	// Burst defaults to the per-minute rate.
	def := New(&Config{Enabled: true, RequestsPerMinute: 30})
	defer def.Stop()
	if def.burst != 30 {
		t.Errorf("Expected default burst 30, got %d", def.burst)
	}

	if New(nil).IsEnabled() {
		t.Error("Expected nil config to disable limiting")
	}
}

func TestAllow(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             5,
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		if !limiter.Allow("client") {
			t.Errorf("Request %d should be allowed (burst)", i+1)
		}
	}
	if limiter.Allow("client") {
		t.Error("Request should be denied after burst exhausted")
	}
}

func TestDisabledLimiter(t *testing.T) {
	limiter := New(&Config{Enabled: false, RequestsPerMinute: 1})

	for i := 0; i < 100; i++ {
		if !limiter.Allow("client") {
			t.Fatal("Disabled limiter should allow all requests")
		}
	}
	if err := limiter.Wait(context.Background(), "client"); err != nil {
		t.Errorf("Disabled limiter Wait returned %v", err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	defer limiter.Stop()

	if err := limiter.Wait(context.Background(), "client"); err != nil {
		t.Fatalf("First Wait should not block: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "client"); err == nil {
		t.Error("Expected Wait to fail once the context expires")
	}
}

func TestPerClientLimiting(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})
	defer limiter.Stop()

	if !limiter.Allow("client-1") {
		t.Error("First request for client-1 should be allowed")
	}
	if limiter.Allow("client-1") {
		t.Error("Second request for client-1 should be denied")
	}
	if !limiter.Allow("client-2") {
		t.Error("First request for client-2 should be allowed")
	}
}

func TestCleanup(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		CleanupInterval:   time.Hour,
		MaxIdle:           time.Minute,
	})
	defer limiter.Stop()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("idle")
	now = now.Add(45 * time.Second)
	limiter.Allow("active")

	now = now.Add(30 * time.Second)
	if removed := limiter.Cleanup(); removed != 1 {
		t.Errorf("Expected 1 idle client removed, got %d", removed)
	}
	if stats := limiter.Stats(); stats["active_clients"] != 1 {
		t.Errorf("Expected 1 remaining client, got %v", stats["active_clients"])
	}
}

func TestStopTwice(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60})
	limiter.Stop()
	limiter.Stop()
}

func TestMiddleware(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             2,
	})
	defer limiter.Stop()

	handler := Middleware(limiter, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/passkey/auth/options", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("Request %d: expected status 200, got %d", i+1, rr.Code)
		}
	}

	// A different source port is the same client.
	req := httptest.NewRequest(http.MethodPost, "/admin/passkey/auth/options", nil)
	req.RemoteAddr = "192.168.1.1:5678"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Expected JSON body: %v", err)
	}
	if body["error"] != "rate_limited" {
		t.Errorf("Expected rate_limited error code, got %q", body["error"])
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		expected   string
	}{
		{
			name:       "X-Forwarded-For",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			remoteAddr: "192.168.1.1:1234",
			trustProxy: true,
			expected:   "203.0.113.1",
		},
		{
			name:       "X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.1"},
			remoteAddr: "192.168.1.1:1234",
			trustProxy: true,
			expected:   "203.0.113.1",
		},
		{
			name:       "headers ignored without trust",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr: "192.168.1.1:1234",
			expected:   "192.168.1.1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.1",
			expected:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if ip := ClientIP(req, tt.trustProxy); ip != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, ip)
			}
		})
	}
}

func TestStats(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 120,
		Burst:             10,
	})
	defer limiter.Stop()

	limiter.Allow("client-1")
	limiter.Allow("client-2")

	stats := limiter.Stats()
	if stats["enabled"] != true {
		t.Error("Expected enabled to be true")
	}
	if stats["active_clients"] != 2 {
		t.Errorf("Expected 2 active clients, got %v", stats["active_clients"])
	}
	if stats["rate_per_min"] != 120.0 {
		t.Errorf("Expected rate_per_min 120, got %v", stats["rate_per_min"])
	}
	if stats["burst"] != 10 {
		t.Errorf("Expected burst 10, got %v", stats["burst"])
	}
}
