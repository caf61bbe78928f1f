// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package ratelimit implements a per-key sliding-window request
// counter. Each policy domain (event ingestion, dashboard login) owns
// its own Limiter instance so that exhausting one cannot affect the
// other.
//
// State is per process. The limiter does not coordinate across
// horizontally scaled instances; a deployment running N replicas
// behind a load balancer effectively multiplies the limit by N. That
// is a documented property, not a bug - cross-instance limiting would
// require an external shared store, which is out of scope.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// pruneInterval bounds how often the full map is swept from the
	// request path.
	pruneInterval = 30 * time.Second

	// maxEntries triggers an immediate sweep once the number of
	// distinct keys grows past it, bounding memory under sustained
	// traffic from many distinct client IPs.
	maxEntries = 5000
)

// Limiter counts requests per key within a trailing window.
// The zero value is not usable; construct with New.
type Limiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	max       int
	window    time.Duration
	lastPrune time.Time
	now       func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the limiter's time source. Tests use this to
// advance time deterministically.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New returns a limiter that rejects a key once more than maxRequests
// timestamps fall within the trailing window.
func New(maxRequests int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		hits:   make(map[string][]time.Time),
		max:    maxRequests,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastPrune = l.now()
	return l
}

// Limited records a request for key and reports whether it should be
// rejected. The first maxRequests calls within a window return false;
// subsequent calls return true until enough timestamps fall out of the
// window.
func (l *Limiter) Limited(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > pruneInterval || len(l.hits) > maxEntries {
		l.pruneLocked(now)
	}

	recent := l.hits[key][:0:0]
	for _, t := range l.hits[key] {
		if now.Sub(t) < l.window {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	l.hits[key] = recent

	return len(recent) > l.max
}

// Prune removes every key whose timestamps have all fallen out of the
// window. It is housekeeping only and never changes the outcome of a
// Limited call; a background janitor invokes it so idle keys do not
// pin memory between requests.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
}

func (l *Limiter) pruneLocked(now time.Time) {
	for key, timestamps := range l.hits {
		live := false
		for _, t := range timestamps {
			if now.Sub(t) < l.window {
				live = true
				break
			}
		}
		if !live {
			delete(l.hits, key)
		}
	}
	l.lastPrune = now
}

// RetryAfter returns the window length in whole seconds, suitable for
// a Retry-After response header.
func (l *Limiter) RetryAfter() int {
	return int(l.window / time.Second)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}
