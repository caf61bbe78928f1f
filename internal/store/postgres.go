// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker/v2"

	"github.com/pulsekit/pulsekit/internal/event"
	"github.com/pulsekit/pulsekit/internal/logging"
)

const (
	insertEventSQL = `INSERT INTO analytics.pulse_events
		(site_id, session_id, path, event_type, meta,
		 country, region, city, timezone, latitude, longitude, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	refreshAggregatesSQL = `SELECT analytics.pulse_refresh_aggregates($1)`

	consolidateSQL = `SELECT rows_consolidated, rows_deleted
		FROM analytics.pulse_consolidate_and_cleanup($1)`
)

// Postgres implements Store on top of a pgx connection pool. Event
// inserts run behind a circuit breaker so a dead database sheds
// ingestion load quickly instead of tying up request goroutines.
type Postgres struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker[interface{}]
}

// NewPostgres connects to the database at dsn and verifies the
// connection before returning.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "pulse-event-insert",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Postgres{pool: pool, breaker: breaker}, nil
}

// InsertEvent writes one event row. When the breaker is open the
// error wraps ErrUnavailable.
func (p *Postgres) InsertEvent(ctx context.Context, rec *event.Record) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		_, err := p.pool.Exec(ctx, insertEventSQL,
			rec.SiteID,
			rec.SessionID,
			rec.Path,
			rec.EventType,
			rec.Meta,
			rec.Geo.Country,
			rec.Geo.Region,
			rec.Geo.City,
			rec.Geo.Timezone,
			rec.Geo.Latitude,
			rec.Geo.Longitude,
			rec.CreatedAt,
		)
		return nil, err
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// RefreshAggregates recomputes rollups for the trailing daysBack days.
func (p *Postgres) RefreshAggregates(ctx context.Context, daysBack int) error {
	if _, err := p.pool.Exec(ctx, refreshAggregatesSQL, daysBack); err != nil {
		return fmt.Errorf("store: refresh aggregates: %w", err)
	}
	return nil
}

// ConsolidateAndCleanup folds raw events older than retentionDays into
// daily aggregates and deletes the folded rows.
func (p *Postgres) ConsolidateAndCleanup(ctx context.Context, retentionDays int) (ConsolidateResult, error) {
	var res ConsolidateResult
	row := p.pool.QueryRow(ctx, consolidateSQL, retentionDays)
	if err := row.Scan(&res.RowsConsolidated, &res.RowsDeleted); err != nil {
		return ConsolidateResult{}, fmt.Errorf("store: consolidate: %w", err)
	}
	return res, nil
}

// Ready checks connectivity with a trivial query.
func (p *Postgres) Ready(ctx context.Context) error {
	var one int
	if err := p.pool.QueryRow(ctx, "select 1").Scan(&one); err != nil {
		return fmt.Errorf("store: not ready: %w", err)
	}
	return nil
}

// Close drains and closes the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
