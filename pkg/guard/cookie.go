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
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultCookieName is the session cookie name.
	DefaultCookieName = "rsvp_session"

	// DefaultIssuer is the iss claim of session tokens.
	DefaultIssuer = "rsvp-site"
)

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name   string
	Secret []byte
	Issuer string
	TTL    time.Duration
	Secure bool
}

// Cookies carries session ids in a signed cookie. The value is an HS256
// token whose jti claim is the session id.
type Cookies struct {
	name   string
	secret []byte
	issuer string
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewCookies creates a cookie codec.
func NewCookies(cfg CookieConfig) (*Cookies, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	c := &Cookies{
		name:   cfg.Name,
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		secure: cfg.Secure,
		now:    time.Now,
	}
	if c.name == "" {
		c.name = DefaultCookieName
	}
	if c.issuer == "" {
		c.issuer = DefaultIssuer
	}
	if c.ttl <= 0 {
		c.ttl = DefaultSessionTTL
	}
	return c, nil
}

// Name returns the cookie name.
func (c *Cookies) Name() string {
	return c.name
}

// Sign returns the token for a session id.
func (c *Cookies) Sign(sessionID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Parse returns the session id carried by token.
func (c *Cookies) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", fmt.Errorf("token has no session id")
	}
	return claims.ID, nil
}

// Write sets the session cookie.
func (c *Cookies) Write(w http.ResponseWriter, s *Session) error {
	token, err := c.Sign(s.ID)
	if err != nil {
		return fmt.Errorf("sign session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.ttl / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read returns the session id from the request cookie. A missing,
// tampered or expired cookie reads as no session.
func (c *Cookies) Read(r *http.Request) string {
	cookie, err := r.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	id, err := c.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return id
}

// Clear expires the session cookie.
func (c *Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
