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

// Package metrics provides Prometheus instrumentation for the admin
// authentication stack: passkey ceremonies, invite lifecycle, admin store
// I/O, sessions and the HTTP surface.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all rsvp-site metrics
	Namespace = "rsvp"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelCeremony   = "ceremony"
	LabelOutcome    = "outcome"
	LabelAction     = "action"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Store operations
	OpLoad   = "load"
	OpSave   = "save"
	OpUpdate = "update"

	// Ceremonies
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"
	CeremonyPassword       = "password"

	// Ceremony outcomes
	OutcomeStarted            = "started"
	OutcomeSuccess            = "success"
	OutcomeChallengeMissing   = "challenge_missing"
	OutcomeUnknownCredential  = "unknown_credential"
	OutcomeVerificationFailed = "verification_failed"
	OutcomeReplay             = "replay"
	OutcomeInviteInvalid      = "invite_invalid"
	OutcomeUnauthorized       = "unauthorized"
	OutcomeError              = "error"

	// Invite actions
	InviteCreated  = "created"
	InviteDeleted  = "deleted"
	InviteRedeemed = "redeemed"
	InviteExpired  = "expired"
)

var (
	// CeremoniesTotal counts WebAuthn and password ceremonies by outcome.
	// Failure reasons are visible here and in logs only.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of authentication ceremonies by type and outcome",
		},
		[]string{LabelCeremony, LabelOutcome},
	)

	// InvitesTotal counts invite lifecycle transitions.
	InvitesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "invites_total",
			Help:      "Total number of invite lifecycle events by action",
		},
		[]string{LabelAction},
	)

	// StoreOperationsTotal tracks admin store operations by type and status.
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_operations_total",
			Help:      "Total number of admin store operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// StoreOperationDuration tracks the duration of admin store operations,
	// including time spent waiting on the file lock.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of admin store operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{LabelOperation},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// HTTPRequestsInFlight tracks requests currently being served.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	// ActiveSessions tracks live browser sessions, anonymous or bound.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Number of live sessions",
		},
	)

	// PendingChallenges tracks ceremonies begun but not yet finished.
	PendingChallenges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pending_challenges",
			Help:      "Number of outstanding WebAuthn challenges",
		},
	)

	// Goroutines tracks the current number of goroutines in the server.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordStoreOperation records an admin store operation with its duration.
// A nil err is counted as success.
//
// Example:
//
//	start := time.Now()
//	doc, err := s.read()
//	metrics.RecordStoreOperation(metrics.OpLoad, err, time.Since(start))
func RecordStoreOperation(operation string, err error, duration time.Duration) {
	if !enabled.Load() {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCeremony records a ceremony outcome (use Ceremony* and Outcome*
// constants).
func RecordCeremony(ceremony, outcome string) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, outcome).Inc()
}

// RecordInvite records n invite events of the given action.
func RecordInvite(action string, n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	InvitesTotal.WithLabelValues(action).Add(float64(n))
}

// RecordHTTPRequest records an HTTP request with its duration and status.
//
// Parameters:
//   - method: The HTTP method (GET, POST, etc.)
//   - statusCode: The HTTP status code as a string
//   - duration: The request duration in seconds
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// RecordRateLimited counts a rejected request.
func RecordRateLimited() {
	if !enabled.Load() {
		return
	}
	RateLimitedTotal.Inc()
}

// SetActiveSessions sets the live session gauge.
func SetActiveSessions(n int) {
	if !enabled.Load() {
		return
	}
	ActiveSessions.Set(float64(n))
}

// SetPendingChallenges sets the outstanding challenge gauge.
func SetPendingChallenges(n int) {
	if !enabled.Load() {
		return
	}
	PendingChallenges.Set(float64(n))
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
