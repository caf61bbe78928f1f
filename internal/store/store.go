// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package store persists analytics events and drives the aggregate
// maintenance routines. The production implementation is backed by
// PostgreSQL; an in-memory implementation backs tests.
package store

import (
	"context"
	"errors"

	"github.com/pulsekit/pulsekit/internal/event"
)

// ErrUnavailable is returned when the backing store rejects work
// because it is down or its circuit breaker is open.
var ErrUnavailable = errors.New("store: unavailable")

// ConsolidateResult reports the effect of a consolidation run.
type ConsolidateResult struct {
	RowsConsolidated int64 `json:"rowsConsolidated"`
	RowsDeleted      int64 `json:"rowsDeleted"`
}

// Store is the persistence surface used by the ingestion handler and
// the maintenance endpoints.
type Store interface {
	// InsertEvent persists a single enriched event record.
	InsertEvent(ctx context.Context, rec *event.Record) error

	// RefreshAggregates recomputes rollup tables for the trailing
	// daysBack days.
	RefreshAggregates(ctx context.Context, daysBack int) error

	// ConsolidateAndCleanup folds raw events older than the retention
	// window into daily aggregates and deletes the raw rows.
	ConsolidateAndCleanup(ctx context.Context, retentionDays int) (ConsolidateResult, error)

	// Ready reports whether the store can serve queries.
	Ready(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}
