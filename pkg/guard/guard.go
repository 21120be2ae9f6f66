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

// Package guard tracks browser sessions and gates admin-only operations.
// A session starts anonymous and is bound to an admin by a successful
// passkey ceremony or the legacy owner password. Binding always issues a
// new session id.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/metrics"
	"github.com/davidfwatson/rsvp-site/pkg/webauthn"
	"github.com/google/uuid"
)

// DefaultOwnerName names the owner created by the first password login.
const DefaultOwnerName = "Owner"

// ErrNotOwner is returned by RequireOwner for a signed-in admin who is not
// the owner. It matches admin.ErrUnauthorized.
var ErrNotOwner = fmt.Errorf("%w: owner required", admin.ErrUnauthorized)

// Engine finishes passkey ceremonies. *webauthn.Service implements it.
type Engine interface {
	FinishAuthentication(ctx context.Context, sessionID string, body []byte) (*admin.Admin, error)
	FinishRegistration(ctx context.Context, sessionID string, target webauthn.RegistrationTarget, body []byte, label string) (*admin.Admin, error)
}

// PasswordChecker verifies the legacy owner password.
type PasswordChecker interface {
	// Configured reports whether a password is set at all.
	Configured() bool
	Verify(candidate string) bool
}

// Params contains dependencies for creating a Guard.
type Params struct {
	Store    admin.Store
	Engine   Engine
	Sessions SessionStore

	// Password enables the legacy owner login. Nil disables it.
	Password PasswordChecker

	// OwnerName defaults to DefaultOwnerName.
	OwnerName string

	Logger *slog.Logger
}

// Guard resolves sessions to admins.
type Guard struct {
	store     admin.Store
	engine    Engine
	sessions  SessionStore
	password  PasswordChecker
	ownerName string
	logger    *slog.Logger
}

// New creates a Guard.
func New(p Params) (*Guard, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("admin store is required")
	}
	if p.Engine == nil {
		return nil, fmt.Errorf("ceremony engine is required")
	}
	if p.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	g := &Guard{
		store:     p.Store,
		engine:    p.Engine,
		sessions:  p.Sessions,
		password:  p.Password,
		ownerName: p.OwnerName,
		logger:    p.Logger,
	}
	if g.ownerName == "" {
		g.ownerName = DefaultOwnerName
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Start creates a new anonymous session.
func (g *Guard) Start(ctx context.Context) (*Session, error) {
	s := &Session{ID: uuid.NewString()}
	if err := g.sessions.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// Resolve returns the live session for id. An empty, unknown or expired
// id yields a fresh anonymous session.
func (g *Guard) Resolve(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		s, err := g.sessions.Get(ctx, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}
	return g.Start(ctx)
}

// RequireAdmin returns the admin bound to session id. A session bound to
// an admin who no longer exists is demoted to anonymous.
func (g *Guard) RequireAdmin(ctx context.Context, id string) (*admin.Admin, error) {
	s, err := g.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, admin.ErrUnauthorized
		}
		return nil, err
	}
	if !s.Authenticated() {
		return nil, admin.ErrUnauthorized
	}

	var found *admin.Admin
	err = g.store.View(ctx, func(doc *admin.Document) error {
		if a := doc.FindAdmin(s.AdminID); a != nil {
			found = a.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		g.logger.Warn("Demoting session of removed admin",
			slog.String("admin_id", s.AdminID))
		s.AdminID = ""
		if err := g.sessions.Put(ctx, s); err != nil {
			return nil, err
		}
		return nil, admin.ErrUnauthorized
	}
	return found, nil
}

// RequireOwner is RequireAdmin restricted to the owner.
func (g *Guard) RequireOwner(ctx context.Context, id string) (*admin.Admin, error) {
	a, err := g.RequireAdmin(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsOwner {
		return nil, ErrNotOwner
	}
	return a, nil
}

// CompleteAuthentication finishes a passkey login and binds the admin to a
// new session, which replaces id.
func (g *Guard) CompleteAuthentication(ctx context.Context, id string, body []byte) (*Session, *admin.Admin, error) {
	a, err := g.engine.FinishAuthentication(ctx, id, body)
	if err != nil {
		return nil, nil, err
	}
	s, err := g.bind(ctx, id, a.ID)
	if err != nil {
		return nil, nil, err
	}
	return s, a, nil
}

// CompleteRegistration finishes a passkey registration. Invite onboarding
// signs the new admin in; adding a passkey keeps the current session, which
// is returned unchanged.
func (g *Guard) CompleteRegistration(ctx context.Context, id string, target webauthn.RegistrationTarget, body []byte, label string) (*Session, *admin.Admin, error) {
	a, err := g.engine.FinishRegistration(ctx, id, target, body, label)
	if err != nil {
		return nil, nil, err
	}

	if _, ok := target.(webauthn.PendingInvite); ok {
		s, err := g.bind(ctx, id, a.ID)
		if err != nil {
			return nil, nil, err
		}
		return s, a, nil
	}

	s, err := g.sessions.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return s, a, nil
}

// LoginWithPassword signs in the owner with the legacy password. The first
// successful login creates the owner; later ones reuse it.
func (g *Guard) LoginWithPassword(ctx context.Context, id, password string) (*Session, *admin.Admin, error) {
	if g.password == nil || !g.password.Configured() || !g.password.Verify(password) {
		metrics.RecordCeremony(metrics.CeremonyPassword, metrics.OutcomeUnauthorized)
		g.logger.Warn("Password login rejected")
		return nil, nil, admin.ErrUnauthorized
	}

	owner, err := admin.EnsureOwner(ctx, g.store, g.ownerName)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyPassword, metrics.OutcomeError)
		return nil, nil, err
	}

	s, err := g.bind(ctx, id, owner.ID)
	if err != nil {
		return nil, nil, err
	}
	metrics.RecordCeremony(metrics.CeremonyPassword, metrics.OutcomeSuccess)
	return s, owner, nil
}

// Logout deletes the session.
func (g *Guard) Logout(ctx context.Context, id string) error {
	return g.sessions.Delete(ctx, id)
}

// bind replaces session oldID with a new session bound to adminID.
func (g *Guard) bind(ctx context.Context, oldID, adminID string) (*Session, error) {
	if oldID != "" {
		if err := g.sessions.Delete(ctx, oldID); err != nil {
			return nil, err
		}
	}
	s := &Session{ID: uuid.NewString(), AdminID: adminID}
	if err := g.sessions.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("bind session: %w", err)
	}
	g.logger.Info("Session bound", slog.String("admin_id", adminID))
	return s, nil
}
