// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package services

import (
	"context"
	"time"

	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/ratelimit"
)

// JanitorService sweeps the registered rate limiters on a fixed
// interval so idle keys do not accumulate between requests. Limiters
// also prune opportunistically in the request path; this service
// covers the quiet periods.
type JanitorService struct {
	limiters []*ratelimit.Limiter
	interval time.Duration
}

// NewJanitorService sweeps the given limiters every interval.
func NewJanitorService(interval time.Duration, limiters ...*ratelimit.Limiter) *JanitorService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &JanitorService{limiters: limiters, interval: interval}
}

// Serve implements suture.Service.
func (j *JanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			total := 0
			for _, l := range j.limiters {
				l.Prune()
				total += l.Len()
			}
			logging.Debug().Int("live_keys", total).Msg("Rate limiter sweep completed")
		}
	}
}

func (j *JanitorService) String() string {
	return "ratelimit-janitor"
}
