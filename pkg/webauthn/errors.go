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
	"errors"
	"fmt"
)

// Sentinel errors for ceremony failures. Clients see one generic message
// for all three; the distinction is kept for logs, metrics and tests.
var (
	// ErrChallengeMissing is returned when a finish call has no pending
	// challenge of the matching ceremony for its session. A challenge is
	// consumed by the first finish attempt whatever its outcome.
	ErrChallengeMissing = errors.New("no pending challenge")

	// ErrUnknownCredential is returned when an assertion names a
	// credential id that no admin holds.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrVerificationFailed is returned when the authenticator response is
	// malformed, fails cryptographic verification, duplicates a stored
	// credential or replays a signature counter.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrInvalidTarget is returned for a nil or unrecognized registration
	// target.
	ErrInvalidTarget = errors.New("invalid registration target")
)

// Error wraps a ceremony error with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsCeremonyFailure reports whether err is one of the three ceremony
// failures that share a single client-facing message.
func IsCeremonyFailure(err error) bool {
	return errors.Is(err, ErrChallengeMissing) ||
		errors.Is(err, ErrUnknownCredential) ||
		errors.Is(err, ErrVerificationFailed)
}

// failure joins a sentinel with the cause that triggered it.
func failure(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
