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

package metrics

import (
	"context"
	"runtime"
	"time"
)

// GaugeSource reports a count sampled by the collector, such as the
// number of live sessions.
type GaugeSource func() int

// ResourceCollector periodically samples process resources and the
// session and challenge stores into their gauges.
type ResourceCollector struct {
	interval   time.Duration
	started    time.Time
	sessions   GaugeSource
	challenges GaugeSource
}

// NewResourceCollector returns a collector sampling at interval. Either
// source may be nil.
func NewResourceCollector(interval time.Duration, sessions, challenges GaugeSource) *ResourceCollector {
	return &ResourceCollector{
		interval:   interval,
		started:    time.Now(),
		sessions:   sessions,
		challenges: challenges,
	}
}

// Run collects until ctx is cancelled. It blocks and is normally started
// in its own goroutine.
func (rc *ResourceCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rc.Collect()
		}
	}
}

// Collect performs a single sample.
func (rc *ResourceCollector) Collect() {
	if !IsEnabled() {
		return
	}

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	MemoryAllocBytes.Set(float64(memStats.Alloc))

	ServerUptime.Set(time.Since(rc.started).Seconds())

	if rc.sessions != nil {
		SetActiveSessions(rc.sessions())
	}
	if rc.challenges != nil {
		SetPendingChallenges(rc.challenges())
	}
}
