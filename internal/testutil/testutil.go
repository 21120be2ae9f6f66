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

// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/stretchr/testify/require"
)

// SessionSecret is a 32 byte cookie signing secret for tests.
const SessionSecret = "test-session-secret-0123456789ab"

// NewStore returns a FileStore in a temp directory, closed on cleanup.
func NewStore(t testing.TB) *admin.FileStore {
	t.Helper()
	store, err := admin.NewFileStore(filepath.Join(t.TempDir(), "admins.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedOwner creates the owner account.
func SeedOwner(t testing.TB, store admin.Store) *admin.Admin {
	t.Helper()
	owner, err := admin.EnsureOwner(context.Background(), store, "Owner")
	require.NoError(t, err)
	return owner
}

// SeedAdmin adds a non-owner admin named name.
func SeedAdmin(t testing.TB, store admin.Store, id, name string) *admin.Admin {
	t.Helper()
	a := admin.Admin{
		ID:          id,
		Name:        name,
		Credentials: []admin.Credential{},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, admin.AddAdmin(context.Background(), store, a))
	return &a
}

// WriteServerCert writes a self-signed P-256 server certificate and key
// for dnsNames into dir and returns the two paths.
func WriteServerCert(t testing.TB, dir string, dnsNames ...string) (certFile, keyFile string) {
	t.Helper()
	if len(dnsNames) == 0 {
		dnsNames = []string{"localhost"}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: dnsNames[0]},
		DNSNames:              dnsNames,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	return certFile, keyFile
}
