// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package store

import (
	"context"
	"sync"
	"time"

	"github.com/pulsekit/pulsekit/internal/event"
)

// Memory is an in-process Store used by tests and by deployments that
// run without a database configured.
type Memory struct {
	mu     sync.Mutex
	events []event.Record

	// FailWith, when set, is returned by every mutating call.
	FailWith error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) InsertEvent(_ context.Context, rec *event.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.events = append(m.events, *rec)
	return nil
}

func (m *Memory) RefreshAggregates(_ context.Context, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailWith
}

func (m *Memory) ConsolidateAndCleanup(_ context.Context, retentionDays int) (ConsolidateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return ConsolidateResult{}, m.FailWith
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	var kept []event.Record
	var res ConsolidateResult
	for _, rec := range m.events {
		if rec.CreatedAt.Before(cutoff) {
			res.RowsConsolidated++
			res.RowsDeleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.events = kept
	return res, nil
}

func (m *Memory) Ready(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailWith
}

func (m *Memory) Close() {}

// Events returns a copy of everything inserted so far.
func (m *Memory) Events() []event.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Record, len(m.events))
	copy(out, m.events)
	return out
}
