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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/metrics"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// InviteRegistry is the part of the invite lifecycle the engine needs.
type InviteRegistry interface {
	Resolve(ctx context.Context, token string) (*admin.Invite, error)
	Redeem(ctx context.Context, token string, newAdmin admin.Admin) error
}

// Service runs passkey registration and authentication ceremonies against
// the admin store.
type Service struct {
	config     *Config
	store      admin.Store
	invites    InviteRegistry
	challenges ChallengeStore
	verifier   Verifier
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceParams contains dependencies for creating a Service.
type ServiceParams struct {
	// Config is the relying party configuration (required).
	Config *Config

	// Store is the admin store (required).
	Store admin.Store

	// Invites resolves and redeems invite tokens (required).
	Invites InviteRegistry

	// Challenges holds pending ceremonies. Defaults to an in-memory store
	// using Config.ChallengeTTL.
	Challenges ChallengeStore

	// Verifier defaults to the go-webauthn relying party built from Config.
	Verifier Verifier

	Logger *slog.Logger
	Clock  func() time.Time
}

// NewService creates a Service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("admin store is required")
	}
	if params.Invites == nil {
		return nil, fmt.Errorf("invite registry is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{
		config:     params.Config,
		store:      params.Store,
		invites:    params.Invites,
		challenges: params.Challenges,
		verifier:   params.Verifier,
		logger:     params.Logger,
		now:        params.Clock,
	}
	if s.challenges == nil {
		s.challenges = NewMemoryChallengeStore(params.Config.ChallengeTTL)
	}
	if s.verifier == nil {
		wa, err := NewVerifier(params.Config)
		if err != nil {
			return nil, err
		}
		s.verifier = wa
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// BeginRegistration issues creation options for target and binds the
// challenge, together with the resolved target, to sessionID.
func (s *Service) BeginRegistration(ctx context.Context, sessionID string, target RegistrationTarget) (*protocol.CredentialCreation, error) {
	const op = "begin registration"

	var (
		user *adminUser
		err  error
	)
	switch t := target.(type) {
	case ExistingAdmin:
		user, err = s.loadUser(ctx, t.ID)
		if err != nil {
			return nil, WrapError(op, err)
		}
	case PendingInvite:
		inv, err := s.invites.Resolve(ctx, t.Token)
		if err != nil {
			metrics.RecordCeremony(metrics.CeremonyRegistration, inviteOutcome(err))
			return nil, WrapError(op, err)
		}
		name := strings.TrimSpace(t.Name)
		if name == "" {
			name = inv.Name
		}
		if name == "" {
			name = DefaultInviteeName
		}
		t.Name = name
		target = t
		user = &adminUser{id: uuid.NewString(), name: name}
	default:
		return nil, WrapError(op, ErrInvalidTarget)
	}

	options, session, err := s.verifier.BeginRegistration(user,
		webauthn.WithExclusions(user.exclusions()),
	)
	if err != nil {
		return nil, WrapError(op, err)
	}

	err = s.challenges.Put(ctx, sessionID, &Challenge{
		Ceremony:  CeremonyRegistration,
		Session:   *session,
		Target:    target,
		UserID:    user.id,
		UserName:  user.name,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, WrapError(op, err)
	}

	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.OutcomeStarted)
	return options, nil
}

// FinishRegistration verifies an attestation and persists the new
// credential. For an invite the new admin is created and the invite
// consumed in one step. The pending challenge is consumed whatever the
// outcome.
func (s *Service) FinishRegistration(ctx context.Context, sessionID string, target RegistrationTarget, body []byte, label string) (*admin.Admin, error) {
	const op = "finish registration"
	ceremony := metrics.CeremonyRegistration

	ch, err := s.challenges.Take(ctx, sessionID)
	if err != nil || ch.Ceremony != CeremonyRegistration {
		return nil, s.fail(op, ceremony, metrics.OutcomeChallengeMissing, ErrChallengeMissing, err)
	}

	var user *adminUser
	switch bound := ch.Target.(type) {
	case ExistingAdmin:
		t, ok := target.(ExistingAdmin)
		if !ok || t.ID != bound.ID {
			return nil, s.fail(op, ceremony, metrics.OutcomeUnauthorized, admin.ErrUnauthorized,
				errors.New("registration target does not match session"))
		}
		user, err = s.loadUser(ctx, bound.ID)
		if err != nil {
			return nil, WrapError(op, err)
		}
	case PendingInvite:
		t, ok := target.(PendingInvite)
		if !ok || t.Token != bound.Token {
			return nil, s.fail(op, ceremony, metrics.OutcomeInviteInvalid, admin.ErrInviteInvalid,
				errors.New("invite token does not match session"))
		}
		if _, err := s.invites.Resolve(ctx, bound.Token); err != nil {
			return nil, s.fail(op, ceremony, inviteOutcome(err), err, nil)
		}
		user = &adminUser{id: ch.UserID, name: ch.UserName}
	default:
		return nil, WrapError(op, ErrInvalidTarget)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, s.fail(op, ceremony, metrics.OutcomeVerificationFailed, ErrVerificationFailed, err)
	}

	created, err := s.verifier.CreateCredential(user, ch.Session, parsed)
	if err != nil {
		return nil, s.fail(op, ceremony, metrics.OutcomeVerificationFailed, ErrVerificationFailed, err)
	}

	now := s.now().UTC()
	cred := fromWebAuthnCredential(created, strings.TrimSpace(label), now)

	var result *admin.Admin
	switch bound := ch.Target.(type) {
	case ExistingAdmin:
		err = admin.AddCredential(ctx, s.store, bound.ID, cred)
		if err == nil {
			result, err = s.loadAdmin(ctx, bound.ID)
		}
	case PendingInvite:
		newAdmin := admin.Admin{
			ID:          user.id,
			Name:        user.name,
			Credentials: []admin.Credential{cred},
			CreatedAt:   now,
		}
		err = s.invites.Redeem(ctx, bound.Token, newAdmin)
		if err == nil {
			result = &newAdmin
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, admin.ErrCredentialExists):
		return nil, s.fail(op, ceremony, metrics.OutcomeVerificationFailed, ErrVerificationFailed, err)
	case errors.Is(err, admin.ErrInviteInvalid):
		return nil, s.fail(op, ceremony, metrics.OutcomeInviteInvalid, err, nil)
	case errors.Is(err, admin.ErrAdminNotFound):
		return nil, s.fail(op, ceremony, metrics.OutcomeUnauthorized, admin.ErrUnauthorized, err)
	default:
		metrics.RecordCeremony(ceremony, metrics.OutcomeError)
		return nil, WrapError(op, err)
	}

	metrics.RecordCeremony(ceremony, metrics.OutcomeSuccess)
	s.logger.Info("Passkey registered",
		slog.String("admin_id", result.ID),
		slog.String("credential_id", cred.CredentialID),
		slog.String("label", cred.Name))
	return result, nil
}

// BeginAuthentication issues request options listing every registered
// credential and binds the challenge to sessionID.
func (s *Service) BeginAuthentication(ctx context.Context, sessionID string) (*protocol.CredentialAssertion, error) {
	const op = "begin authentication"

	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, WrapError(op, err)
	}

	options, session, err := s.verifier.BeginDiscoverableLogin(
		webauthn.WithAllowedCredentials(allowList(doc)),
		webauthn.WithUserVerification(s.config.userVerification()),
	)
	if err != nil {
		return nil, WrapError(op, err)
	}

	err = s.challenges.Put(ctx, sessionID, &Challenge{
		Ceremony:  CeremonyAuthentication,
		Session:   *session,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, WrapError(op, err)
	}

	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.OutcomeStarted)
	return options, nil
}

// FinishAuthentication verifies an assertion and returns the admin who
// owns the credential. An unknown credential id fails before any
// signature verification. A signature counter reported by the verifier
// that does not advance, or a clone warning, is rejected and nothing is
// written.
func (s *Service) FinishAuthentication(ctx context.Context, sessionID string, body []byte) (*admin.Admin, error) {
	const op = "finish authentication"
	ceremony := metrics.CeremonyAuthentication

	ch, err := s.challenges.Take(ctx, sessionID)
	if err != nil || ch.Ceremony != CeremonyAuthentication {
		return nil, s.fail(op, ceremony, metrics.OutcomeChallengeMissing, ErrChallengeMissing, err)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, s.fail(op, ceremony, metrics.OutcomeVerificationFailed, ErrVerificationFailed, err)
	}
	credID := encodeID(parsed.RawID)

	doc, err := s.store.Load(ctx)
	if err != nil {
		metrics.RecordCeremony(ceremony, metrics.OutcomeError)
		return nil, WrapError(op, err)
	}
	owner, stored := doc.FindCredential(credID)
	if stored == nil {
		return nil, s.fail(op, ceremony, metrics.OutcomeUnknownCredential, ErrUnknownCredential, nil,
			slog.String("credential_id", credID))
	}

	user, err := newAdminUser(owner)
	if err != nil {
		return nil, s.fail(op, ceremony, metrics.OutcomeVerificationFailed, ErrVerificationFailed, err)
	}

	// Flags were not stored for credentials carried over from the first
	// admin file. Those take the asserted flags; the verified values are
	// persisted below.
	if stored.Legacy() {
		user.adoptFlags(parsed.RawID, webauthn.NewCredentialFlags(parsed.Response.AuthenticatorData.Flags))
	}

	// The challenge was issued before the user was known. Scope it to the
	// matched admin; ownership was established by the lookup above.
	session := ch.Session
	session.UserID = user.WebAuthnID()
	session.AllowedCredentialIDs = nil

	validated, err := s.verifier.ValidateLogin(user, session, parsed)
	if err != nil {
		return nil, s.fail(op, ceremony, metrics.OutcomeVerificationFailed, ErrVerificationFailed, err,
			slog.String("credential_id", credID))
	}

	reported := validated.Authenticator.SignCount
	if validated.Authenticator.CloneWarning || admin.SignCountReplayed(stored.SignCount, reported) {
		return nil, s.fail(op, ceremony, metrics.OutcomeReplay, ErrVerificationFailed,
			fmt.Errorf("sign count %d does not exceed stored %d", reported, stored.SignCount),
			slog.String("credential_id", credID),
			slog.Uint64("authenticator_counter", uint64(parsed.Response.AuthenticatorData.Counter)),
			slog.Bool("clone_warning", validated.Authenticator.CloneWarning))
	}

	flags := admin.Flags{
		UserPresent:    validated.Flags.UserPresent,
		UserVerified:   validated.Flags.UserVerified,
		BackupEligible: validated.Flags.BackupEligible,
		BackupState:    validated.Flags.BackupState,
	}
	updated, err := admin.UpdateSignCount(ctx, s.store, credID, reported, s.now(), &flags)
	switch {
	case err == nil:
	case errors.Is(err, admin.ErrSignCountReplay):
		return nil, s.fail(op, ceremony, metrics.OutcomeReplay, ErrVerificationFailed, err,
			slog.String("credential_id", credID))
	case errors.Is(err, admin.ErrCredentialNotFound):
		return nil, s.fail(op, ceremony, metrics.OutcomeUnknownCredential, ErrUnknownCredential, err,
			slog.String("credential_id", credID))
	default:
		metrics.RecordCeremony(ceremony, metrics.OutcomeError)
		return nil, WrapError(op, err)
	}

	metrics.RecordCeremony(ceremony, metrics.OutcomeSuccess)
	s.logger.Info("Passkey authentication succeeded",
		slog.String("admin_id", updated.ID),
		slog.String("credential_id", credID))
	return updated, nil
}

// ListPasskeys returns the admin's credentials in registration order.
func (s *Service) ListPasskeys(ctx context.Context, adminID string) ([]PasskeySummary, error) {
	a, err := s.loadAdmin(ctx, adminID)
	if err != nil {
		return nil, WrapError("list passkeys", err)
	}
	return summarize(a), nil
}

// DeletePasskey removes one of the admin's credentials. Deleting an
// unknown credential succeeds.
func (s *Service) DeletePasskey(ctx context.Context, adminID, credentialID string) error {
	err := admin.RemoveCredential(ctx, s.store, adminID, credentialID)
	if errors.Is(err, admin.ErrAdminNotFound) {
		return WrapError("delete passkey", admin.ErrUnauthorized)
	}
	if err != nil {
		return WrapError("delete passkey", err)
	}
	s.logger.Info("Passkey deleted",
		slog.String("admin_id", adminID),
		slog.String("credential_id", credentialID))
	return nil
}

func (s *Service) loadAdmin(ctx context.Context, adminID string) (*admin.Admin, error) {
	var found *admin.Admin
	err := s.store.View(ctx, func(doc *admin.Document) error {
		if a := doc.FindAdmin(adminID); a != nil {
			found = a.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, admin.ErrUnauthorized
	}
	return found, nil
}

func (s *Service) loadUser(ctx context.Context, adminID string) (*adminUser, error) {
	a, err := s.loadAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	return newAdminUser(a)
}

// inviteOutcome separates a spent or unknown invite from a store failure.
func inviteOutcome(err error) string {
	if errors.Is(err, admin.ErrInviteInvalid) {
		return metrics.OutcomeInviteInvalid
	}
	return metrics.OutcomeError
}

// fail records and logs a ceremony failure and returns sentinel wrapped
// with op. The cause is kept for logs only.
func (s *Service) fail(op, ceremony, outcome string, sentinel, cause error, attrs ...any) error {
	metrics.RecordCeremony(ceremony, outcome)
	args := append([]any{
		slog.String("ceremony", ceremony),
		slog.String("outcome", outcome),
	}, attrs...)
	if cause != nil {
		args = append(args, slog.Any("error", cause))
	}
	s.logger.Warn("Passkey ceremony failed", args...)
	return WrapError(op, failure(sentinel, cause))
}
