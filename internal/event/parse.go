// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package event

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/pulsekit/pulsekit/internal/validation"
)

// ErrInvalidPayload is returned for any structurally invalid event.
// An event is either fully valid or rejected outright; there is no
// partial acceptance.
var ErrInvalidPayload = errors.New("invalid event payload")

// Parse validates already-syntactically-valid JSON against the event
// constraints and returns a normalized Event carrying only the
// recognized fields. Unknown fields are dropped. Parse is pure: no
// I/O, and any malformed input yields ErrInvalidPayload rather than
// a panic.
func Parse(data []byte) (*Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidPayload)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ev := &Event{}

	var ok bool
	if ev.Type, ok = stringField(fields, "type"); !ok {
		return nil, fmt.Errorf("%w: type must be a string", ErrInvalidPayload)
	}
	if ev.Path, ok = stringField(fields, "path"); !ok {
		return nil, fmt.Errorf("%w: path must be a string", ErrInvalidPayload)
	}

	// sessionId is optional, but when the key is present it must be a
	// non-empty string. This presence check cannot be expressed with
	// an omitempty validator tag, which treats "" as absent.
	if raw, present := fields["sessionId"]; present {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" || len(s) > MaxSessionLen {
			return nil, fmt.Errorf("%w: bad sessionId", ErrInvalidPayload)
		}
		ev.SessionID = s
	}

	if raw, present := fields["meta"]; present {
		meta, err := compactMeta(raw)
		if err != nil {
			return nil, err
		}
		ev.Meta = meta
	}

	if raw, present := fields["siteId"]; present {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: siteId must be a string", ErrInvalidPayload)
		}
		ev.SiteID = s
	}

	if verr := validation.Struct(ev); verr != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, verr.Error())
	}
	return ev, nil
}

// compactMeta checks that meta is a JSON object and that its compact
// serialization stays within MaxMetaBytes.
func compactMeta(raw json.RawMessage) (json.RawMessage, error) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '{' {
		return nil, fmt.Errorf("%w: meta must be an object", ErrInvalidPayload)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if buf.Len() > MaxMetaBytes {
		return nil, fmt.Errorf("%w: meta exceeds %d bytes", ErrInvalidPayload, MaxMetaBytes)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// stringField extracts a required string field.
func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, present := fields[name]
	if !present {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
