// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package auth implements dashboard login, logout, and the route
// guard protecting privileged endpoints. Credentials are stateless
// signed tokens carried in the pulse_auth cookie; non-browser callers
// use a bearer header holding the shared secret directly.
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/metrics"
	"github.com/pulsekit/pulsekit/internal/ratelimit"
	"github.com/pulsekit/pulsekit/internal/token"
)

// CookieName is the session cookie issued on login.
const CookieName = "pulse_auth"

// DefaultCookieMaxAge is the session TTL when none is configured.
const DefaultCookieMaxAge = 7 * 24 * time.Hour

// Login attempts permitted per client IP per minute.
const (
	loginRateLimit  = 5
	loginRateWindow = time.Minute
)

// MinSecretLen is the shortest secret the package accepts. A short
// secret makes tokens forgeable by brute force, so construction fails
// instead of degrading.
const MinSecretLen = 16

// ErrWeakSecret is returned when the configured secret is too short
// or absent.
var ErrWeakSecret = errors.New("auth: secret must be at least 16 characters")

// Handler serves the dashboard login and logout endpoint.
type Handler struct {
	secret       string
	cookieMaxAge time.Duration
	production   bool
	limiter      *ratelimit.Limiter
}

// Option configures a Handler.
type Option func(*Handler)

// WithCookieMaxAge overrides the session cookie TTL.
func WithCookieMaxAge(d time.Duration) Option {
	return func(h *Handler) { h.cookieMaxAge = d }
}

// WithProduction marks cookies Secure.
func WithProduction(on bool) Option {
	return func(h *Handler) { h.production = on }
}

// NewHandler builds the login endpoint. The secret is the single
// dashboard password; it must be at least MinSecretLen characters.
func NewHandler(secret string, opts ...Option) (*Handler, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	h := &Handler{
		secret:       secret,
		cookieMaxAge: DefaultCookieMaxAge,
		limiter:      ratelimit.New(loginRateLimit, loginRateWindow),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Limiter exposes the login rate limiter for periodic pruning.
func (h *Handler) Limiter() *ratelimit.Limiter {
	return h.limiter
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.login(w, r)
	case http.MethodDelete:
		h.logout(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// login validates the submitted password and issues the session
// cookie. The rate limit is checked before the body is parsed so
// malformed bodies still count against the limit.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Limited(clientIP(r)) {
		metrics.AuthAttempts.WithLabelValues(metrics.ResultRateLimited).Inc()
		w.Header().Set("Retry-After", strconv.Itoa(h.limiter.RetryAfter()))
		writeError(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	var body struct {
		Password any `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	password, ok := body.Password.(string)
	if !ok || password == "" {
		writeError(w, http.StatusBadRequest, "Missing password")
		return
	}

	if !token.TimingSafeEqual(password, h.secret) {
		metrics.AuthAttempts.WithLabelValues(metrics.ResultBadPassword).Inc()
		logging.Ctx(r.Context()).Warn().
			Str("client_ip", clientIP(r)).
			Msg("Failed login attempt")
		writeError(w, http.StatusUnauthorized, "Incorrect password")
		return
	}

	metrics.AuthAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token.Create(h.secret, h.cookieMaxAge),
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, okBody)
}

// logout clears the session cookie. No credential is required; a
// logged-out browser clearing an already absent cookie is harmless.
func (h *Handler) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, okBody)
}

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

var okBody = map[string]bool{"ok": true}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
