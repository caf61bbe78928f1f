// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package auth

import (
	"net/http"
	"strings"

	"github.com/pulsekit/pulsekit/internal/token"
)

// Gate guards privileged routes. Browser sessions authenticate with
// the pulse_auth cookie; scheduled jobs and other non-browser callers
// present the shared secret as a bearer header. The cookie is checked
// first when both are present.
type Gate struct {
	secret string
}

// NewGate builds a route guard. A missing or weak secret is a fatal
// configuration error, never an open gate.
func NewGate(secret string) (*Gate, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	return &Gate{secret: secret}, nil
}

// Require wraps next so it only runs for authenticated requests.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allowed(r) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allowed reports whether the request carries a valid credential.
func (g *Gate) Allowed(r *http.Request) bool {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if token.Verify(g.secret, c.Value) {
			return true
		}
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token.TimingSafeEqual(bearer, g.secret)
	}
	return false
}
