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
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

const (
	DefaultRPID          = "localhost"
	DefaultRPDisplayName = "RSVP Site"
	DefaultRPOrigin      = "http://localhost:5000"
	DefaultTimeout       = 60 * time.Second
	DefaultChallengeTTL  = 10 * time.Minute
)

var (
	userVerifications = map[string]protocol.UserVerificationRequirement{
		"required":    protocol.VerificationRequired,
		"preferred":   protocol.VerificationPreferred,
		"discouraged": protocol.VerificationDiscouraged,
	}
	attestations = map[string]protocol.ConveyancePreference{
		"none":       protocol.PreferNoAttestation,
		"indirect":   protocol.PreferIndirectAttestation,
		"direct":     protocol.PreferDirectAttestation,
		"enterprise": protocol.PreferEnterpriseAttestation,
	}
	residentKeys = map[string]protocol.ResidentKeyRequirement{
		"required":    protocol.ResidentKeyRequirementRequired,
		"preferred":   protocol.ResidentKeyRequirementPreferred,
		"discouraged": protocol.ResidentKeyRequirementDiscouraged,
	}
	attachments = map[string]protocol.AuthenticatorAttachment{
		"platform":       protocol.Platform,
		"cross-platform": protocol.CrossPlatform,
	}
)

// Config configures the ceremony engine and the relying party it
// presents to browsers. The string-valued authenticator options use the
// WebAuthn spelling; empty means the library default.
type Config struct {
	// RPID is the bare host of the site, e.g. "rsvp.example.com".
	RPID          string   `yaml:"id" json:"id" mapstructure:"id"`
	RPDisplayName string   `yaml:"display_name" json:"display_name" mapstructure:"display_name"`
	RPOrigins     []string `yaml:"origins" json:"origins" mapstructure:"origins"`

	// Timeout is the client-side ceremony timeout sent with the options
	// and enforced on finish.
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	UserVerification        string `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`
	AttestationPreference   string `yaml:"attestation" json:"attestation" mapstructure:"attestation"`
	ResidentKeyRequirement  string `yaml:"resident_key" json:"resident_key" mapstructure:"resident_key"`
	AuthenticatorAttachment string `yaml:"authenticator_attachment" json:"authenticator_attachment" mapstructure:"authenticator_attachment"`

	// ChallengeTTL bounds how long an unfinished ceremony keeps its
	// challenge.
	ChallengeTTL time.Duration `yaml:"challenge_ttl" json:"challenge_ttl" mapstructure:"challenge_ttl"`

	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// Validate reports the first missing relying party field or unknown
// option value.
func (c *Config) Validate() error {
	switch {
	case c.RPID == "":
		return fmt.Errorf("RPID is required")
	case c.RPDisplayName == "":
		return fmt.Errorf("RPDisplayName is required")
	case len(c.RPOrigins) == 0:
		return fmt.Errorf("at least one RPOrigin is required")
	case c.ChallengeTTL < 0:
		return fmt.Errorf("challenge TTL must not be negative")
	}

	if err := known(userVerifications, c.UserVerification, "user verification"); err != nil {
		return err
	}
	if err := known(attestations, c.AttestationPreference, "attestation preference"); err != nil {
		return err
	}
	if err := known(residentKeys, c.ResidentKeyRequirement, "resident key requirement"); err != nil {
		return err
	}
	return known(attachments, c.AuthenticatorAttachment, "authenticator attachment")
}

func known[V any](options map[string]V, value, what string) error {
	if value == "" {
		return nil
	}
	if _, ok := options[value]; !ok {
		return fmt.Errorf("invalid %s: %s", what, value)
	}
	return nil
}

// SetDefaults fills unset fields. The relying party defaults match a
// development server on localhost.
func (c *Config) SetDefaults() {
	setDefault(&c.RPID, DefaultRPID)
	setDefault(&c.RPDisplayName, DefaultRPDisplayName)
	setDefault(&c.UserVerification, "preferred")
	setDefault(&c.AttestationPreference, "none")
	setDefault(&c.ResidentKeyRequirement, "preferred")
	if len(c.RPOrigins) == 0 {
		c.RPOrigins = []string{DefaultRPOrigin}
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = DefaultChallengeTTL
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// userVerification is the requirement placed on both ceremonies.
func (c *Config) userVerification() protocol.UserVerificationRequirement {
	if uv, ok := userVerifications[c.UserVerification]; ok {
		return uv
	}
	return protocol.VerificationPreferred
}

// ToWebAuthnConfig converts c to the go-webauthn relying party config.
func (c *Config) ToWebAuthnConfig() *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:                  c.RPID,
		RPDisplayName:         c.RPDisplayName,
		RPOrigins:             c.RPOrigins,
		Debug:                 c.Debug,
		AttestationPreference: attestations[c.AttestationPreference],
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			UserVerification:        userVerifications[c.UserVerification],
			ResidentKey:             residentKeys[c.ResidentKeyRequirement],
			AuthenticatorAttachment: attachments[c.AuthenticatorAttachment],
		},
	}

	if c.Timeout > 0 {
		ceremony := webauthn.TimeoutConfig{Enforce: true, Timeout: c.Timeout, TimeoutUVD: c.Timeout}
		cfg.Timeouts = webauthn.TimeoutsConfig{Login: ceremony, Registration: ceremony}
	}
	return cfg
}
