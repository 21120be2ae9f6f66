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

// Package password verifies the legacy owner password.
//
// The password is only ever held as a bcrypt hash. A plaintext password
// from configuration is hashed once at startup and the plaintext copy is
// zeroed.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor used for new hashes.
const Cost = 12

var (
	// ErrEmptyPassword is returned when an empty password is provided.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrInvalidHash is returned for a configured hash bcrypt cannot read.
	ErrInvalidHash = errors.New("invalid password hash")
)

// Hash returns the bcrypt hash of plaintext.
func Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Checker verifies candidates against a bcrypt hash. The zero value has no
// password configured and rejects everything.
type Checker struct {
	hash []byte
}

// NewChecker builds a Checker from configuration. A hash takes precedence
// over a plaintext password. With neither, the checker is unconfigured.
func NewChecker(plaintext, hash string) (*Checker, error) {
	switch {
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
		return &Checker{hash: []byte(hash)}, nil
	case plaintext != "":
		buf := []byte(plaintext)
		defer clear(buf)
		h, err := bcrypt.GenerateFromPassword(buf, Cost)
		if err != nil {
			return nil, err
		}
		return &Checker{hash: h}, nil
	default:
		return &Checker{}, nil
	}
}

// Configured reports whether a password is set.
func (c *Checker) Configured() bool {
	return c != nil && len(c.hash) > 0
}

// Verify reports whether candidate matches.
func (c *Checker) Verify(candidate string) bool {
	if !c.Configured() || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.hash, []byte(candidate)) == nil
}
