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

package webauthn

import (
	"context"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Challenge is the server half of a ceremony in progress, bound to one
// browser session.
type Challenge struct {
	Ceremony Ceremony
	Session  webauthn.SessionData

	// Target is set for registrations only.
	Target RegistrationTarget

	// UserID and UserName identify the account being registered. For an
	// invite they are provisional until the invite is redeemed.
	UserID   string
	UserName string

	CreatedAt time.Time
}

// ChallengeStore holds at most one pending challenge per session.
type ChallengeStore interface {
	// Put stores c for sessionID, replacing any earlier challenge.
	Put(ctx context.Context, sessionID string, c *Challenge) error

	// Take removes and returns the challenge for sessionID. It returns
	// ErrChallengeMissing when there is none or it has expired.
	Take(ctx context.Context, sessionID string) (*Challenge, error)
}

// MemoryChallengeStore is an in-process ChallengeStore. Entries older
// than the TTL are treated as absent and removed by Cleanup.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	entries map[string]*Challenge
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryChallengeStore creates a store whose challenges live for ttl.
func NewMemoryChallengeStore(ttl time.Duration) *MemoryChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &MemoryChallengeStore{
		entries: make(map[string]*Challenge),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put implements ChallengeStore.
func (s *MemoryChallengeStore) Put(ctx context.Context, sessionID string, c *Challenge) error {
	if sessionID == "" {
		return ErrChallengeMissing
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.entries[sessionID] = c
	return nil
}

// Take implements ChallengeStore.
func (s *MemoryChallengeStore) Take(ctx context.Context, sessionID string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrChallengeMissing
	}
	delete(s.entries, sessionID)

	if s.now().Sub(c.CreatedAt) > s.ttl {
		return nil, ErrChallengeMissing
	}
	return c, nil
}

// Len returns the number of stored challenges, expired or not.
func (s *MemoryChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup removes expired challenges and returns how many were dropped.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, c := range s.entries {
		if now.Sub(c.CreatedAt) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
