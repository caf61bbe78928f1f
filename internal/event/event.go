// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package event defines the inbound analytics event, its validation
// rules, and the enriched record handed to the persistence layer.
package event

import (
	"time"

	"github.com/goccy/go-json"
)

// Known event types.
const (
	TypePageview    = "pageview"
	TypeCustom      = "custom"
	TypeVitals      = "vitals"
	TypeError       = "error"
	TypeServerError = "server_error"
)

// Payload size limits.
const (
	MaxPathLen    = 2048
	MaxSessionLen = 128
	MaxSiteIDLen  = 128
	MaxMetaBytes  = 4096
)

// Event is a validated, normalized client payload. It exists for the
// duration of one request: constructed from untrusted JSON, validated
// once, enriched, persisted, discarded.
type Event struct {
	Type      string          `json:"type" validate:"required,oneof=pageview custom vitals error server_error"`
	Path      string          `json:"path" validate:"required,max=2048"`
	SessionID string          `json:"sessionId,omitempty" validate:"omitempty,max=128"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	SiteID    string          `json:"siteId,omitempty" validate:"omitempty,max=128"`
}

// Geo holds the edge-supplied geolocation attributes of one request.
// Every field is independently nullable; the edge layer is trusted to
// populate them (see the package doc of internal/ingest).
type Geo struct {
	Country   *string
	Region    *string
	City      *string
	Timezone  *string
	Latitude  *float64
	Longitude *float64
}

// Record is the enriched row inserted into the analytics events
// relation.
type Record struct {
	SiteID    string
	SessionID *string
	Path      string
	EventType string
	Meta      json.RawMessage
	Geo       Geo
	CreatedAt time.Time
}

// NewRecord combines a validated event with request-derived metadata.
// The effective site id is the event's own override when present,
// otherwise defaultSiteID.
func NewRecord(ev *Event, defaultSiteID string, geo Geo, now time.Time) *Record {
	siteID := ev.SiteID
	if siteID == "" {
		siteID = defaultSiteID
	}

	rec := &Record{
		SiteID:    siteID,
		Path:      ev.Path,
		EventType: ev.Type,
		Meta:      ev.Meta,
		Geo:       geo,
		CreatedAt: now,
	}
	if ev.SessionID != "" {
		rec.SessionID = &ev.SessionID
	}
	return rec
}
