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
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/davidfwatson/rsvp-site/pkg/invite"
	"github.com/davidfwatson/rsvp-site/pkg/metrics"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		RPID:          "rsvp.example.com",
		RPDisplayName: "RSVP Site",
		RPOrigins:     []string{"https://rsvp.example.com"},
	}
}

// countingVerifier delegates to the real relying party and counts
// assertion verifications. rewrite, when set, edits what a successful
// verification reports.
type countingVerifier struct {
	*webauthn.WebAuthn
	validateCalls atomic.Int32
	rewrite       func(c *webauthn.Credential)
}

func (v *countingVerifier) ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	v.validateCalls.Add(1)
	c, err := v.WebAuthn.ValidateLogin(user, session, response)
	if err == nil && v.rewrite != nil {
		v.rewrite(c)
	}
	return c, err
}

type testFixture struct {
	svc        *Service
	store      *admin.FileStore
	invites    *invite.Manager
	challenges *MemoryChallengeStore
	verifier   *countingVerifier
	owner      *admin.Admin
	cfg        *Config
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()

	store, err := admin.NewFileStore(filepath.Join(t.TempDir(), "admins.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	owner, err := admin.EnsureOwner(ctx, store, "Owner")
	require.NoError(t, err)

	invites, err := invite.NewManager(store, invite.WithBaseURL("https://rsvp.example.com"))
	require.NoError(t, err)

	cfg := validTestConfig()
	cfg.SetDefaults()
	wa, err := NewVerifier(cfg)
	require.NoError(t, err)
	verifier := &countingVerifier{WebAuthn: wa}

	challenges := NewMemoryChallengeStore(time.Minute)
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Store:      store,
		Invites:    invites,
		Challenges: challenges,
		Verifier:   verifier,
	})
	require.NoError(t, err)

	return &testFixture{
		svc:        svc,
		store:      store,
		invites:    invites,
		challenges: challenges,
		verifier:   verifier,
		owner:      owner,
		cfg:        cfg,
	}
}

func TestNewService(t *testing.T) {
	store, err := admin.NewFileStore(filepath.Join(t.TempDir(), "admins.json"))
	require.NoError(t, err)
	invites, err := invite.NewManager(store)
	require.NoError(t, err)

	tests := []struct {
		name    string
		params  ServiceParams
		wantErr string
	}{
		{
			name:    "missing config",
			params:  ServiceParams{Store: store, Invites: invites},
			wantErr: "config is required",
		},
		{
			name:    "missing store",
			params:  ServiceParams{Config: validTestConfig(), Invites: invites},
			wantErr: "admin store is required",
		},
		{
			name:    "missing invites",
			params:  ServiceParams{Config: validTestConfig(), Store: store},
			wantErr: "invite registry is required",
		},
		{
			name:    "invalid config",
			params:  ServiceParams{Config: &Config{RPID: "x", RPDisplayName: "x", RPOrigins: []string{"x"}, ChallengeTTL: -1}, Store: store, Invites: invites},
			wantErr: "invalid config",
		},
		{
			name:   "defaults",
			params: ServiceParams{Config: validTestConfig(), Store: store, Invites: invites},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.params)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc.challenges)
			assert.NotNil(t, svc.verifier)
			assert.NotNil(t, svc.logger)
			assert.Equal(t, DefaultChallengeTTL, svc.Config().ChallengeTTL)
		})
	}
}

func TestService_BeginRegistration_ExistingAdmin(t *testing.T) {
	f := newFixture(t)

	options, err := f.svc.BeginRegistration(context.Background(), "sid", ExistingAdmin{ID: f.owner.ID})
	require.NoError(t, err)
	require.NotNil(t, options)

	assert.Equal(t, f.cfg.RPID, options.Response.RelyingParty.ID)
	assert.Equal(t, "Owner", options.Response.User.Name)
	assert.NotEmpty(t, options.Response.Challenge)
	assert.Equal(t, 1, f.challenges.Len())
}

func TestService_BeginRegistration_UnknownAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BeginRegistration(context.Background(), "sid", ExistingAdmin{ID: "nobody"})
	assert.ErrorIs(t, err, admin.ErrUnauthorized)
	assert.Zero(t, f.challenges.Len())
}

func TestService_BeginRegistration_PendingInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	issued, err := f.invites.Create(ctx, f.owner.ID, "Jordan")
	require.NoError(t, err)

	t.Run("chosen name", func(t *testing.T) {
		options, err := f.svc.BeginRegistration(ctx, "sid-1", PendingInvite{Token: issued.Token, Name: " Sam "})
		require.NoError(t, err)
		assert.Equal(t, "Sam", options.Response.User.Name)
	})

	t.Run("invite name", func(t *testing.T) {
		options, err := f.svc.BeginRegistration(ctx, "sid-2", PendingInvite{Token: issued.Token})
		require.NoError(t, err)
		assert.Equal(t, "Jordan", options.Response.User.Name)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := f.svc.BeginRegistration(ctx, "sid-3", PendingInvite{Token: "bogus"})
		assert.ErrorIs(t, err, admin.ErrInviteInvalid)
	})

	assert.Equal(t, 2, f.challenges.Len())
}

func TestService_BeginRegistration_DefaultInviteeName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	issued, err := f.invites.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	options, err := f.svc.BeginRegistration(ctx, "sid", PendingInvite{Token: issued.Token})
	require.NoError(t, err)
	assert.Equal(t, DefaultInviteeName, options.Response.User.Name)
}

func TestService_BeginRegistration_InvalidTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BeginRegistration(context.Background(), "sid", nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestService_BeginAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, admin.AddCredential(ctx, f.store, f.owner.ID, admin.Credential{
		CredentialID: "AQID",
		PublicKey:    "BAUG",
		Transports:   []string{"internal"},
	}))

	options, err := f.svc.BeginAuthentication(ctx, "sid")
	require.NoError(t, err)
	require.Len(t, options.Response.AllowedCredentials, 1)
	assert.Equal(t, []byte{1, 2, 3}, []byte(options.Response.AllowedCredentials[0].CredentialID))
	assert.Equal(t, protocol.VerificationPreferred, options.Response.UserVerification)
	assert.Equal(t, 1, f.challenges.Len())
}

func TestService_FinishWithoutChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.FinishAuthentication(ctx, "sid", []byte(`{}`))
	assert.ErrorIs(t, err, ErrChallengeMissing)

	_, err = f.svc.FinishRegistration(ctx, "sid", ExistingAdmin{ID: f.owner.ID}, []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrChallengeMissing)
}

func TestService_FinishWrongCeremony(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.BeginAuthentication(ctx, "sid")
	require.NoError(t, err)

	_, err = f.svc.FinishRegistration(ctx, "sid", ExistingAdmin{ID: f.owner.ID}, []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrChallengeMissing)

	// The mismatched attempt consumed the challenge.
	_, err = f.svc.FinishAuthentication(ctx, "sid", []byte(`{}`))
	assert.ErrorIs(t, err, ErrChallengeMissing)
}

func TestService_FinishMalformedBody(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.BeginAuthentication(ctx, "sid")
	require.NoError(t, err)
	_, err = f.svc.FinishAuthentication(ctx, "sid", []byte(`not json`))
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Zero(t, f.verifier.validateCalls.Load())

	_, err = f.svc.BeginRegistration(ctx, "sid", ExistingAdmin{ID: f.owner.ID})
	require.NoError(t, err)
	_, err = f.svc.FinishRegistration(ctx, "sid", ExistingAdmin{ID: f.owner.ID}, []byte(`{"id":""}`), "")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestService_FinishRegistration_TargetMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.invites.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)
	second, err := f.invites.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	_, err = f.svc.BeginRegistration(ctx, "sid", PendingInvite{Token: first.Token})
	require.NoError(t, err)
	_, err = f.svc.FinishRegistration(ctx, "sid", PendingInvite{Token: second.Token}, []byte(`{}`), "")
	assert.ErrorIs(t, err, admin.ErrInviteInvalid)

	_, err = f.svc.BeginRegistration(ctx, "sid", ExistingAdmin{ID: f.owner.ID})
	require.NoError(t, err)
	_, err = f.svc.FinishRegistration(ctx, "sid", ExistingAdmin{ID: "someone-else"}, []byte(`{}`), "")
	assert.ErrorIs(t, err, admin.ErrUnauthorized)

	// Both invites are untouched.
	_, err = f.invites.Resolve(ctx, first.Token)
	assert.NoError(t, err)
	_, err = f.invites.Resolve(ctx, second.Token)
	assert.NoError(t, err)
}

func TestService_FinishRegistration_InviteRevokedMidCeremony(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	issued, err := f.invites.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)

	_, err = f.svc.BeginRegistration(ctx, "sid", PendingInvite{Token: issued.Token})
	require.NoError(t, err)
	require.NoError(t, f.invites.Delete(ctx, f.owner.ID, issued.Token))

	_, err = f.svc.FinishRegistration(ctx, "sid", PendingInvite{Token: issued.Token}, []byte(`{}`), "")
	assert.ErrorIs(t, err, admin.ErrInviteInvalid)
}

func TestService_FinishRegistration_InviteStoreFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	issued, err := f.invites.Create(ctx, f.owner.ID, "")
	require.NoError(t, err)
	_, err = f.svc.BeginRegistration(ctx, "sid", PendingInvite{Token: issued.Token})
	require.NoError(t, err)

	counter := func(outcome string) float64 {
		return testutil.ToFloat64(metrics.CeremoniesTotal.WithLabelValues(metrics.CeremonyRegistration, outcome))
	}
	invalidBefore, errorBefore := counter(metrics.OutcomeInviteInvalid), counter(metrics.OutcomeError)

	require.NoError(t, f.store.Close())
	_, err = f.svc.FinishRegistration(ctx, "sid", PendingInvite{Token: issued.Token}, []byte(`{}`), "")
	require.ErrorIs(t, err, admin.ErrStoreClosed)
	assert.NotErrorIs(t, err, admin.ErrInviteInvalid)

	if metrics.IsEnabled() {
		assert.Equal(t, invalidBefore, counter(metrics.OutcomeInviteInvalid))
		assert.Equal(t, errorBefore+1, counter(metrics.OutcomeError))
	}
}

func TestInviteOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeInviteInvalid, inviteOutcome(admin.ErrInviteInvalid))
	assert.Equal(t, metrics.OutcomeInviteInvalid, inviteOutcome(WrapError("resolve", admin.ErrInviteInvalid)))
	assert.Equal(t, metrics.OutcomeError, inviteOutcome(admin.ErrStoreIO))
	assert.Equal(t, metrics.OutcomeError, inviteOutcome(admin.ErrStoreClosed))
}

func TestService_ListAndDeletePasskeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, admin.AddCredential(ctx, f.store, f.owner.ID, admin.Credential{CredentialID: "one", PublicKey: "k", Name: "Laptop"}))
	require.NoError(t, admin.AddCredential(ctx, f.store, f.owner.ID, admin.Credential{CredentialID: "two", PublicKey: "k"}))

	keys, err := f.svc.ListPasskeys(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "Laptop", keys[0].Name)
	assert.Equal(t, DefaultPasskeyLabel, keys[1].Name)

	require.NoError(t, f.svc.DeletePasskey(ctx, f.owner.ID, "one"))
	require.NoError(t, f.svc.DeletePasskey(ctx, f.owner.ID, "one"))

	keys, err = f.svc.ListPasskeys(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "two", keys[0].CredentialID)

	_, err = f.svc.ListPasskeys(ctx, "nobody")
	assert.ErrorIs(t, err, admin.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.DeletePasskey(ctx, "nobody", "two"), admin.ErrUnauthorized)
}
