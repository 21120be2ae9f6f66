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

// Package invite manages one-time onboarding links issued by the owner.
//
// An invite is valid from creation until its TTL elapses or it is
// consumed by a successful passkey registration, whichever comes first.
// Expired invites are purged lazily whenever invites are created, listed,
// resolved or redeemed.
package invite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/metrics"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long an invite link stays usable.
	DefaultTTL = 7 * 24 * time.Hour

	// PathPrefix is the public route serving invite links.
	PathPrefix = "/admin/invite/"
)

// Issued is an invite as presented to the owner.
type Issued struct {
	admin.Invite
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager issues, lists, revokes, resolves and redeems invites.
type Manager struct {
	store   admin.Store
	ttl     time.Duration
	now     func() time.Time
	baseURL string
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithBaseURL sets the scheme and host used to build invite links.
func WithBaseURL(baseURL string) Option {
	return func(m *Manager) {
		m.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager returns a Manager over store.
func NewManager(store admin.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	m := &Manager{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the configured invite lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Valid reports whether inv is still within its lifetime at now.
func (m *Manager) Valid(inv admin.Invite, now time.Time) bool {
	return now.Sub(inv.CreatedAt) <= m.ttl
}

// URL returns the onboarding link for token.
func (m *Manager) URL(token string) string {
	return m.baseURL + PathPrefix + token
}

// Create issues a new invite. Only the owner may call it.
func (m *Manager) Create(ctx context.Context, callerID, name string) (*Issued, error) {
	now := m.now().UTC()
	inv := admin.Invite{
		Token:     uuid.NewString(),
		CreatedBy: callerID,
		CreatedAt: now,
		Name:      strings.TrimSpace(name),
	}

	var purged int
	err := m.store.Update(ctx, func(doc *admin.Document) error {
		if err := requireOwner(doc, callerID); err != nil {
			return err
		}
		purged = m.purge(doc, now)
		doc.Invites = append(doc.Invites, inv)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordInvite(metrics.InviteExpired, purged)
	metrics.RecordInvite(metrics.InviteCreated, 1)
	m.logger.Info("Invite created",
		slog.String("created_by", callerID),
		slog.String("name", inv.Name))

	return m.issued(inv), nil
}

// List returns every unexpired invite, oldest first. Expired invites are
// removed from the store as a side effect. Only the owner may call it.
func (m *Manager) List(ctx context.Context, callerID string) ([]Issued, error) {
	now := m.now().UTC()

	var (
		purged  int
		pending []admin.Invite
	)
	err := m.store.Update(ctx, func(doc *admin.Document) error {
		if err := requireOwner(doc, callerID); err != nil {
			return err
		}
		purged = m.purge(doc, now)
		pending = append(pending, doc.Invites...)
		if purged == 0 {
			return admin.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordInvite(metrics.InviteExpired, purged)

	out := make([]Issued, 0, len(pending))
	for _, inv := range pending {
		out = append(out, *m.issued(inv))
	}
	return out, nil
}

// Delete revokes an invite. Deleting an unknown token succeeds. Only the
// owner may call it.
func (m *Manager) Delete(ctx context.Context, callerID, token string) error {
	var removed bool
	err := m.store.Update(ctx, func(doc *admin.Document) error {
		if err := requireOwner(doc, callerID); err != nil {
			return err
		}
		removed = doc.RemoveInvite(token)
		if !removed {
			return admin.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return err
	}
	if removed {
		metrics.RecordInvite(metrics.InviteDeleted, 1)
		m.logger.Info("Invite deleted", slog.String("deleted_by", callerID))
	}
	return nil
}

// Resolve returns the invite for token if it exists and has not expired.
// It requires no authentication. Unknown, expired and consumed tokens are
// indistinguishable and all yield admin.ErrInviteInvalid.
func (m *Manager) Resolve(ctx context.Context, token string) (*admin.Invite, error) {
	now := m.now().UTC()

	var (
		purged int
		found  *admin.Invite
	)
	err := m.store.Update(ctx, func(doc *admin.Document) error {
		purged = m.purge(doc, now)
		if inv := doc.FindInvite(token); inv != nil {
			c := *inv
			found = &c
		}
		if purged == 0 {
			return admin.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordInvite(metrics.InviteExpired, purged)

	if found == nil {
		return nil, admin.ErrInviteInvalid
	}
	return found, nil
}

// Redeem consumes token and creates newAdmin in the same critical
// section. Of several concurrent redemptions of one token exactly one
// succeeds; the others get admin.ErrInviteInvalid and write nothing.
func (m *Manager) Redeem(ctx context.Context, token string, newAdmin admin.Admin) error {
	now := m.now().UTC()
	newAdmin.IsOwner = false
	if newAdmin.Credentials == nil {
		newAdmin.Credentials = []admin.Credential{}
	}

	var (
		purged  int
		invalid bool
	)
	err := m.store.Update(ctx, func(doc *admin.Document) error {
		purged = m.purge(doc, now)
		if doc.FindInvite(token) == nil {
			invalid = true
			if purged == 0 {
				return admin.ErrNoChange
			}
			return nil
		}
		for _, c := range newAdmin.Credentials {
			if owner, _ := doc.FindCredential(c.CredentialID); owner != nil {
				return admin.ErrCredentialExists
			}
		}
		doc.Admins = append(doc.Admins, newAdmin)
		doc.RemoveInvite(token)
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordInvite(metrics.InviteExpired, purged)
	if invalid {
		return admin.ErrInviteInvalid
	}

	metrics.RecordInvite(metrics.InviteRedeemed, 1)
	m.logger.Info("Invite redeemed",
		slog.String("admin_id", newAdmin.ID),
		slog.String("name", newAdmin.Name))
	return nil
}

func (m *Manager) purge(doc *admin.Document, now time.Time) int {
	n := doc.PurgeInvites(now.Add(-m.ttl))
	if n > 0 {
		m.logger.Debug("Purged expired invites", slog.Int("count", n))
	}
	return n
}

func (m *Manager) issued(inv admin.Invite) *Issued {
	return &Issued{
		Invite:    inv,
		URL:       m.URL(inv.Token),
		ExpiresAt: inv.CreatedAt.Add(m.ttl),
	}
}

func requireOwner(doc *admin.Document, callerID string) error {
	if callerID == "" {
		return admin.ErrUnauthorized
	}
	a := doc.FindAdmin(callerID)
	if a == nil || !a.IsOwner {
		return admin.ErrUnauthorized
	}
	return nil
}
