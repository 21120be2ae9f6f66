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

package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/davidfwatson/rsvp-site/pkg/admin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCheck(t *testing.T) {
	checker := NewChecker()
	checker.MarkStarted()

	checker.RegisterCheck("b", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	checker.RegisterCheck("a", func(ctx context.Context) CheckResult {
		return CheckResult{Name: "custom", Status: StatusDegraded}
	})
	checker.RegisterCheck("nil", nil)

	results := checker.Ready(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "custom", results[0].Name)
	assert.Equal(t, "b", results[1].Name)
	assert.Equal(t, StatusDegraded, AggregateStatus(results))

	// Replacing keeps a single entry.
	checker.RegisterCheck("a", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	results = checker.Ready(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, AggregateStatus(results))
}

func TestReadyBeforeStart(t *testing.T) {
	checker := NewChecker()
	assert.False(t, checker.IsStarted())

	results := checker.Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "startup", results[0].Name)
	assert.Equal(t, StatusUnhealthy, AggregateStatus(results))

	checker.MarkStarted()
	assert.Empty(t, checker.Ready(context.Background()))
	assert.Equal(t, StatusHealthy, AggregateStatus(nil))

	checker.MarkNotStarted()
	assert.False(t, checker.IsStarted())
}

func TestLive(t *testing.T) {
	result := NewChecker().Live(context.Background())
	assert.Equal(t, "liveness", result.Name)
	assert.Equal(t, StatusHealthy, result.Status)
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]CheckResult, len(tt.statuses))
			for i, s := range tt.statuses {
				results[i] = CheckResult{Status: s}
			}
			assert.Equal(t, tt.want, AggregateStatus(results))
		})
	}
}

func TestStoreCheck(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "admins.json")
	store, err := admin.NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	check := StoreCheck(store)

	result := check(ctx)
	assert.Equal(t, StatusDegraded, result.Status)

	_, err = admin.EnsureOwner(ctx, store, "Owner")
	require.NoError(t, err)
	result = check(ctx)
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "1 admins, 0 invites", result.Message)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	result = check(ctx)
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.NotEmpty(t, result.Error)
}
