// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package ingest

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pulsekit/pulsekit/internal/event"
	"github.com/pulsekit/pulsekit/internal/ratelimit"
)

// resolveOrigin matches an Origin header against the allow-list and
// returns the value to echo in Access-Control-Allow-Origin. Entries
// may be an exact origin, "*", or "*.domain" which matches the apex
// domain and any subdomain. A list containing "*" always echoes "*",
// even when another entry also matches.
func resolveOrigin(origin string, allowed []string) (string, bool) {
	for _, entry := range allowed {
		if entry == "*" {
			return "*", true
		}
	}
	for _, entry := range allowed {
		if entry == origin {
			return origin, true
		}
		if domain, ok := strings.CutPrefix(entry, "*."); ok {
			u, err := url.Parse(origin)
			if err != nil {
				continue
			}
			host := u.Hostname()
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return origin, true
			}
		}
	}
	return "", false
}

// clientIP resolves the rate-limit key: first X-Forwarded-For entry,
// then X-Real-IP, then a sentinel. The proxy chain is trusted to set
// these; RemoteAddr would always be the reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return "unknown"
}

func retryAfter(l *ratelimit.Limiter) string {
	return strconv.Itoa(l.RetryAfter())
}

// geoFromHeaders extracts the edge-supplied geolocation headers. Each
// field is independently optional; unparseable values become nil
// rather than errors.
func geoFromHeaders(h http.Header) event.Geo {
	var g event.Geo
	g.Country = decodedHeader(h, "X-Vercel-IP-Country")
	g.Region = decodedHeader(h, "X-Vercel-IP-Country-Region")
	g.City = decodedHeader(h, "X-Vercel-IP-City")
	if tz := h.Get("X-Vercel-IP-Timezone"); tz != "" {
		g.Timezone = &tz
	}
	g.Latitude = floatHeader(h, "X-Vercel-IP-Latitude")
	g.Longitude = floatHeader(h, "X-Vercel-IP-Longitude")
	return g
}

// decodedHeader URL-decodes a header value, falling back to the raw
// value when decoding fails.
func decodedHeader(h http.Header, name string) *string {
	raw := h.Get(name)
	if raw == "" {
		return nil
	}
	if dec, err := url.PathUnescape(raw); err == nil {
		return &dec
	}
	return &raw
}

func floatHeader(h http.Header, name string) *float64 {
	raw := h.Get(name)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}
