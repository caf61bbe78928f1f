// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package ingest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/pulsekit/pulsekit/internal/event"
	"github.com/pulsekit/pulsekit/internal/store"
	"github.com/pulsekit/pulsekit/internal/token"
)

func postEvent(h http.Handler, body string, mod func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/pulse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mod != nil {
		mod(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("response not JSON: %v (%q)", err, rr.Body.String())
	}
	return m
}

// ---------------------------------------------------------------------------
// Happy path
// ---------------------------------------------------------------------------

func TestIngestPersistsEvent(t *testing.T) {
	mem := store.NewMemory()
	h := NewHandler(Config{SiteID: "default"}, mem)

	rr := postEvent(h, `{"type":"pageview","path":"/test"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr); got["ok"] != true {
		t.Errorf("body = %v, want ok:true", got)
	}

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("stored events = %d, want 1", len(events))
	}
	rec := events[0]
	if rec.EventType != "pageview" || rec.Path != "/test" {
		t.Errorf("record = %+v", rec)
	}
	if rec.SiteID != "default" {
		t.Errorf("site id = %q, want default", rec.SiteID)
	}
	if rec.SessionID != nil {
		t.Errorf("session id = %v, want nil", rec.SessionID)
	}
}

func TestIngestSiteOverrideAndSession(t *testing.T) {
	mem := store.NewMemory()
	h := NewHandler(Config{SiteID: "default"}, mem)

	rr := postEvent(h, `{"type":"custom","path":"/x","siteId":"other","sessionId":"s1"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	rec := mem.Events()[0]
	if rec.SiteID != "other" {
		t.Errorf("site id = %q, want other", rec.SiteID)
	}
	if rec.SessionID == nil || *rec.SessionID != "s1" {
		t.Errorf("session id = %v, want s1", rec.SessionID)
	}
}

// ---------------------------------------------------------------------------
// Payload rejection
// ---------------------------------------------------------------------------

func TestIngestRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not JSON", `{"type":`, "Invalid JSON"},
		{"missing type", `{"path":"/"}`, "Invalid payload"},
		{"empty path", `{"type":"pageview","path":""}`, "Invalid payload"},
		{"long path", `{"type":"pageview","path":"/` + strings.Repeat("a", event.MaxPathLen) + `"}`, "Invalid payload"},
		{"unknown type", `{"type":"invalid","path":"/"}`, "Invalid payload"},
		{"oversized meta", `{"type":"custom","path":"/","meta":{"k":"` + strings.Repeat("x", event.MaxMetaBytes) + `"}}`, "Invalid payload"},
		{"array body", `[1,2,3]`, "Invalid payload"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mem := store.NewMemory()
			h := NewHandler(Config{SiteID: "default"}, mem)

			rr := postEvent(h, tc.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if got := decodeBody(t, rr)["error"]; got != tc.want {
				t.Errorf("error = %v, want %q", got, tc.want)
			}
			if n := len(mem.Events()); n != 0 {
				t.Errorf("stored events = %d, want 0", n)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Origin policy
// ---------------------------------------------------------------------------

func TestIngestOriginPolicy(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		wantStatus int
		wantACAO   string
	}{
		{"no list passes any origin", nil, "http://evil.com", http.StatusOK, ""},
		{"no origin header passes", []string{"http://a.com"}, "", http.StatusOK, ""},
		{"exact match", []string{"http://a.com"}, "http://a.com", http.StatusOK, "http://a.com"},
		{"mismatch rejected", []string{"http://a.com"}, "http://evil.com", http.StatusForbidden, ""},
		{"star matches all", []string{"*"}, "http://anything.example", http.StatusOK, "*"},
		{"star wins in mixed list", []string{"http://a.com", "*"}, "http://a.com", http.StatusOK, "*"},
		{"subdomain wildcard", []string{"*.example.com"}, "https://app.example.com", http.StatusOK, "https://app.example.com"},
		{"wildcard matches apex domain", []string{"*.example.com"}, "https://example.com", http.StatusOK, "https://example.com"},
		{"wildcard rejects other domain", []string{"*.example.com"}, "https://examplexcom.net", http.StatusForbidden, ""},
		{"wildcard rejects embedded suffix", []string{"*.example.com"}, "https://evilexample.com", http.StatusForbidden, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(Config{SiteID: "s", AllowedOrigins: tc.allowed}, store.NewMemory())

			rr := postEvent(h, `{"type":"pageview","path":"/"}`, func(r *http.Request) {
				if tc.origin != "" {
					r.Header.Set("Origin", tc.origin)
				}
			})
			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantACAO {
				t.Errorf("ACAO = %q, want %q", got, tc.wantACAO)
			}
		})
	}
}

func TestIngestPreflight(t *testing.T) {
	h := NewHandler(Config{SiteID: "s", AllowedOrigins: []string{"http://a.com"}}, store.NewMemory())

	req := httptest.NewRequest(http.MethodOptions, "/api/pulse", nil)
	req.Header.Set("Origin", "http://a.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://a.com" {
		t.Errorf("ACAO = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("allow-methods = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, TokenHeader) {
		t.Errorf("allow-headers = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("max-age = %q, want 86400", got)
	}
}

func TestIngestMethodNotAllowed(t *testing.T) {
	h := NewHandler(Config{SiteID: "s"}, store.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "/api/pulse", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Token policy
// ---------------------------------------------------------------------------

func TestIngestTokenRequired(t *testing.T) {
	const secret = "super-secret-at-least-16"
	mem := store.NewMemory()
	h := NewHandler(Config{SiteID: "s", Secret: secret}, mem)

	rr := postEvent(h, `{"type":"pageview","path":"/"}`, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("missing token: status = %d, want 403", rr.Code)
	}

	rr = postEvent(h, `{"type":"pageview","path":"/"}`, func(r *http.Request) {
		r.Header.Set(TokenHeader, "dead.beef")
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("forged token: status = %d, want 403", rr.Code)
	}

	rr = postEvent(h, `{"type":"pageview","path":"/"}`, func(r *http.Request) {
		r.Header.Set(TokenHeader, token.Create(secret, time.Hour))
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if len(mem.Events()) != 1 {
		t.Error("valid token request was not persisted")
	}
}

// ---------------------------------------------------------------------------
// Rate limit
// ---------------------------------------------------------------------------

func TestIngestRateLimit(t *testing.T) {
	h := NewHandler(Config{SiteID: "s", RateLimit: 2, RateLimitWindow: time.Minute}, store.NewMemory())

	fromIP := func(ip string) *httptest.ResponseRecorder {
		return postEvent(h, `{"type":"pageview","path":"/"}`, func(r *http.Request) {
			r.Header.Set("X-Forwarded-For", ip)
		})
	}

	for i := 0; i < 2; i++ {
		if rr := fromIP("1.2.3.4"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rr.Code)
		}
	}
	rr := fromIP("1.2.3.4")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request: status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("429 missing Retry-After")
	}
	if got := decodeBody(t, rr)["error"]; got != "Too many requests" {
		t.Errorf("error = %v", got)
	}

	// A different client is unaffected.
	if rr := fromIP("5.6.7.8"); rr.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Ignore paths and enrichment
// ---------------------------------------------------------------------------

func TestIngestIgnorePath(t *testing.T) {
	mem := store.NewMemory()
	h := NewHandler(Config{SiteID: "s", IgnorePaths: []string{"/healthz"}}, mem)

	rr := postEvent(h, `{"type":"pageview","path":"/healthz"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := decodeBody(t, rr); got["ok"] != true {
		t.Errorf("body = %v", got)
	}
	if n := len(mem.Events()); n != 0 {
		t.Errorf("ignored path was persisted (%d events)", n)
	}
}

func TestIngestGeoEnrichment(t *testing.T) {
	mem := store.NewMemory()
	h := NewHandler(Config{SiteID: "s"}, mem)

	rr := postEvent(h, `{"type":"pageview","path":"/"}`, func(r *http.Request) {
		r.Header.Set("X-Vercel-IP-Country", "DE")
		r.Header.Set("X-Vercel-IP-Country-Region", "BE")
		r.Header.Set("X-Vercel-IP-City", "Frankfurt%20am%20Main")
		r.Header.Set("X-Vercel-IP-Timezone", "Europe/Berlin")
		r.Header.Set("X-Vercel-IP-Latitude", "50.11")
		r.Header.Set("X-Vercel-IP-Longitude", "not-a-number")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	geo := mem.Events()[0].Geo
	if geo.Country == nil || *geo.Country != "DE" {
		t.Errorf("country = %v", geo.Country)
	}
	if geo.City == nil || *geo.City != "Frankfurt am Main" {
		t.Errorf("city = %v, want decoded", geo.City)
	}
	if geo.Timezone == nil || *geo.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %v", geo.Timezone)
	}
	if geo.Latitude == nil || *geo.Latitude != 50.11 {
		t.Errorf("latitude = %v", geo.Latitude)
	}
	if geo.Longitude != nil {
		t.Errorf("longitude = %v, want nil for unparseable value", geo.Longitude)
	}
}

// ---------------------------------------------------------------------------
// Persistence failure
// ---------------------------------------------------------------------------

func TestIngestStoreFailure(t *testing.T) {
	mem := store.NewMemory()
	mem.FailWith = errors.New("db down")

	var reported error
	h := NewHandler(Config{SiteID: "s", OnError: func(err error) { reported = err }}, mem)

	rr := postEvent(h, `{"type":"pageview","path":"/"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "Failed to log event" {
		t.Errorf("error = %v", got)
	}
	if reported == nil {
		t.Error("OnError callback not invoked")
	}
}

func TestClientIPResolution(t *testing.T) {
	tests := []struct {
		name string
		xff  string
		real string
		want string
	}{
		{"forwarded-for first entry", "9.9.9.9, 8.8.8.8", "7.7.7.7", "9.9.9.9"},
		{"real-ip fallback", "", "7.7.7.7", "7.7.7.7"},
		{"sentinel", "", "", "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.real != "" {
				req.Header.Set("X-Real-IP", tc.real)
			}
			if got := clientIP(req); got != tc.want {
				t.Errorf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
