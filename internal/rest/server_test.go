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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/davidfwatson/rsvp-site/internal/password"
	"github.com/davidfwatson/rsvp-site/internal/testutil"
	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/guard"
	"github.com/davidfwatson/rsvp-site/pkg/health"
	"github.com/davidfwatson/rsvp-site/pkg/invite"
	"github.com/davidfwatson/rsvp-site/pkg/ratelimit"
	"github.com/davidfwatson/rsvp-site/pkg/webauthn"
	webauthnhttp "github.com/davidfwatson/rsvp-site/pkg/webauthn/http"
	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

type testServer struct {
	*Server
	http   *httptest.Server
	store  *admin.FileStore
	health *health.Checker
	rp     virtualwebauthn.RelyingParty
}

type testOption func(*Config)

func withLimiter(cfg *ratelimit.Config) testOption {
	return func(c *Config) {
		l := ratelimit.New(cfg)
		c.Limiter = l
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()
	logger := testLogger()
	store := testutil.NewStore(t)

	invites, err := invite.NewManager(store,
		invite.WithBaseURL("https://rsvp.example.com"),
		invite.WithLogger(logger))
	require.NoError(t, err)

	wcfg := &webauthn.Config{
		RPID:          "rsvp.example.com",
		RPDisplayName: "RSVP Site",
		RPOrigins:     []string{"https://rsvp.example.com"},
	}
	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:  wcfg,
		Store:   store,
		Invites: invites,
		Logger:  logger,
	})
	require.NoError(t, err)

	checker, err := password.NewChecker(testPassword, "")
	require.NoError(t, err)

	g, err := guard.New(guard.Params{
		Store:    store,
		Engine:   svc,
		Sessions: guard.NewMemorySessionStore(time.Hour),
		Password: checker,
		Logger:   logger,
	})
	require.NoError(t, err)

	cookies, err := guard.NewCookies(guard.CookieConfig{Secret: []byte(testutil.SessionSecret)})
	require.NoError(t, err)

	checks := health.NewChecker()
	checks.RegisterCheck("admin_store", health.StoreCheck(store))

	cfg := &Config{
		Guard:       g,
		Cookies:     cookies,
		Invites:     invites,
		Passkeys:    webauthnhttp.NewHandler(svc, g, cookies).WithLogger(logger),
		Health:      checks,
		MetricsPath: "/metrics",
		Logger:      logger,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Limiter != nil {
		t.Cleanup(cfg.Limiter.Stop)
	}

	server, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testServer{
		Server: server,
		http:   ts,
		store:  store,
		health: checks,
		rp: virtualwebauthn.RelyingParty{
			Name:   wcfg.RPDisplayName,
			ID:     wcfg.RPID,
			Origin: wcfg.RPOrigins[0],
		},
	}
}

// client is a browser with its own cookie jar.
type client struct {
	t      *testing.T
	ts     *testServer
	http   *http.Client
	header http.Header
}

func (ts *testServer) newClient(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, ts: ts, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.ts.http.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

func (c *client) login(pw string) (int, []byte) {
	c.t.Helper()
	resp, data := c.do(http.MethodPost, "/admin/login", LoginRequest{Password: pw})
	return resp.StatusCode, data
}

func (c *client) mustLogin() webauthnhttp.AuthResponse {
	c.t.Helper()
	status, data := c.login(testPassword)
	require.Equal(c.t, http.StatusOK, status, string(data))
	var resp webauthnhttp.AuthResponse
	require.NoError(c.t, json.Unmarshal(data, &resp))
	return resp
}

// onboard registers a passkey through an invite link and returns the
// signed-in invitee.
func (c *client) onboard(token string) webauthnhttp.AuthResponse {
	c.t.Helper()
	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	prefix := "/admin/invite/" + token

	resp, data := c.do(http.MethodPost, prefix+"/register/options", nil)
	require.Equal(c.t, http.StatusOK, resp.StatusCode, string(data))

	var wrapper struct {
		PublicKey json.RawMessage `json:"publicKey"`
	}
	require.NoError(c.t, json.Unmarshal(data, &wrapper))
	opts, err := virtualwebauthn.ParseAttestationOptions(string(wrapper.PublicKey))
	require.NoError(c.t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(c.ts.rp, authenticator, cred, *opts)
	resp, data = c.do(http.MethodPost, prefix+"/register/verify", attestation)
	require.Equal(c.t, http.StatusOK, resp.StatusCode, string(data))

	var auth webauthnhttp.AuthResponse
	require.NoError(c.t, json.Unmarshal(data, &auth))
	return auth
}

func decodeError(t *testing.T, data []byte) webauthnhttp.ErrorResponse {
	t.Helper()
	var resp webauthnhttp.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &resp), string(data))
	return resp
}

func TestNewServer_NilConfig(t *testing.T) {
	server, err := NewServer(nil)
	assert.Nil(t, server)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestNewServer_MissingDependencies(t *testing.T) {
	ts := newTestServer(t)
	full := *ts.config

	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"guard", func(c *Config) { c.Guard = nil }, "guard and cookies"},
		{"cookies", func(c *Config) { c.Cookies = nil }, "guard and cookies"},
		{"invites", func(c *Config) { c.Invites = nil }, "invite manager"},
		{"passkeys", func(c *Config) { c.Passkeys = nil }, "passkey handler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full
			tt.mutate(&cfg)
			server, err := NewServer(&cfg)
			assert.Nil(t, server)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewServer_Defaults(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, "127.0.0.1:5000", ts.Addr())
	assert.Equal(t, 15*time.Second, ts.server.ReadTimeout)
	assert.Equal(t, 15*time.Second, ts.server.WriteTimeout)
	assert.Equal(t, 60*time.Second, ts.server.IdleTimeout)
}

func TestServer_PasswordLoginBootstrapsOwner(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)

	status, data := c.login("wrong")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, MessageInvalidPassword, decodeError(t, data).Message)

	first := c.mustLogin()
	assert.True(t, first.OK)
	assert.True(t, first.IsOwner)
	assert.Equal(t, "Owner", first.Name)

	second := ts.newClient(t).mustLogin()
	assert.Equal(t, first.AdminID, second.AdminID, "later logins reuse the owner")

	err := ts.store.View(context.Background(), func(doc *admin.Document) error {
		assert.Len(t, doc.Admins, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestServer_Me(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)

	resp, data := c.do(http.MethodGet, "/admin/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, webauthnhttp.ErrorCodeUnauthorized, decodeError(t, data).Error)

	owner := c.mustLogin()

	resp, data = c.do(http.MethodGet, "/admin/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	var me MeResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, owner.AdminID, me.AdminID)
	assert.True(t, me.IsOwner)
	assert.Zero(t, me.Passkeys)
}

func TestServer_Logout(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)
	c.mustLogin()

	resp, _ := c.do(http.MethodPost, "/admin/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodGet, "/admin/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_InviteLifecycle(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.newClient(t)
	owner.mustLogin()

	resp, data := owner.do(http.MethodPost, "/admin/invites/create", CreateInviteRequest{Name: " Bob "})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var created InviteResponse
	require.NoError(t, json.Unmarshal(data, &created))
	assert.True(t, created.OK)
	assert.Equal(t, "Bob", created.Name)
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "https://rsvp.example.com/admin/invite/"+created.Token, created.URL)
	assert.Equal(t, invite.DefaultTTL, created.ExpiresAt.Sub(created.CreatedAt))

	resp, data = owner.do(http.MethodGet, "/admin/invites", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list ListInvitesResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Invites, 1)
	assert.Equal(t, created.Token, list.Invites[0].Token)

	// The landing lookup is public.
	stranger := ts.newClient(t)
	resp, data = stranger.do(http.MethodGet, "/admin/invite/"+created.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var resolved ResolveInviteResponse
	require.NoError(t, json.Unmarshal(data, &resolved))
	assert.Equal(t, "Bob", resolved.Name)
	assert.True(t, resolved.ExpiresAt.Equal(created.ExpiresAt))

	resp, _ = owner.do(http.MethodPost, "/admin/invites/delete", DeleteInviteRequest{Token: created.Token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = stranger.do(http.MethodGet, "/admin/invite/"+created.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, webauthnhttp.ErrorCodeInviteInvalid, decodeError(t, data).Error)

	resp, data = owner.do(http.MethodGet, "/admin/invites", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Empty(t, list.Invites)
}

func TestServer_DeleteInvite(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.newClient(t)
	owner.mustLogin()

	t.Run("Missing token", func(t *testing.T) {
		resp, data := owner.do(http.MethodPost, "/admin/invites/delete", DeleteInviteRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, webauthnhttp.ErrorCodeInvalidRequest, decodeError(t, data).Error)
	})

	t.Run("Unknown token", func(t *testing.T) {
		resp, _ := owner.do(http.MethodPost, "/admin/invites/delete", DeleteInviteRequest{Token: "nope"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Malformed body", func(t *testing.T) {
		resp, _ := owner.do(http.MethodPost, "/admin/invites/delete", "{")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_InviteRoutesRequireSignIn(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/admin/invites"},
		{http.MethodPost, "/admin/invites/create"},
		{http.MethodPost, "/admin/invites/delete"},
	}
	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			resp, _ := c.do(route.method, route.path, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestServer_InviteeOnboardingIsNotOwner(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.newClient(t)
	ownerAuth := owner.mustLogin()

	resp, data := owner.do(http.MethodPost, "/admin/invites/create", CreateInviteRequest{Name: "Carol"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var created InviteResponse
	require.NoError(t, json.Unmarshal(data, &created))

	invitee := ts.newClient(t)
	auth := invitee.onboard(created.Token)
	assert.Equal(t, "Carol", auth.Name)
	assert.False(t, auth.IsOwner)
	assert.NotEqual(t, ownerAuth.AdminID, auth.AdminID)

	resp, data = invitee.do(http.MethodGet, "/admin/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me MeResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, 1, me.Passkeys)

	for _, path := range []string{"/admin/invites", "/admin/invites/create"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "create") {
			method = http.MethodPost
		}
		resp, data = invitee.do(method, path, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
		assert.Equal(t, webauthnhttp.ErrorCodeForbidden, decodeError(t, data).Error)
	}

	// The invite was consumed.
	resp, _ = invitee.do(http.MethodGet, "/admin/invite/"+created.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)

	resp, data := c.do(http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var live HealthCheckResponse
	require.NoError(t, json.Unmarshal(data, &live))
	assert.Equal(t, health.StatusHealthy, live.Status)

	resp, _ = c.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "not ready before startup completes")

	ts.health.MarkStarted()

	resp, data = c.do(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ready HealthCheckResponse
	require.NoError(t, json.Unmarshal(data, &ready))
	assert.Equal(t, health.StatusDegraded, ready.Status, "no admins yet")

	c.mustLogin()

	resp, data = c.do(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &ready))
	assert.Equal(t, health.StatusHealthy, ready.Status)
	assert.Equal(t, "All checks passed", ready.Message)

	// Health checks never mint session cookies.
	assert.Empty(t, resp.Cookies())
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)

	resp, data := c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "go_goroutines")
}

func TestServer_RateLimitsPublicRoutes(t *testing.T) {
	ts := newTestServer(t, withLimiter(&ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             2,
	}))
	c := ts.newClient(t)

	for i := 0; i < 2; i++ {
		status, _ := c.login("wrong")
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	status, data := c.login(testPassword)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, string(data), "rate_limited")

	// Session routes are not throttled.
	for i := 0; i < 3; i++ {
		resp, _ := c.do(http.MethodGet, "/admin/me", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestServer_ResponseHeaders(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)

	resp, _ := c.do(http.MethodGet, "/admin/me", nil)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))
}

func TestServer_ServeAndStop(t *testing.T) {
	ts := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ts.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health/live")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.Stop(ctx))
	require.NoError(t, <-done)
}
