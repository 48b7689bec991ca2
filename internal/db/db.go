// Package db owns the relational pools and the typed queries of the read
// models. Reads go to the replica pool when one is configured; writes
// always go to the primary.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mcjars/www-sub000/internal/config"
)

// ErrNotFound marks lookups with no matching row.
var ErrNotFound = sql.ErrNoRows

// Database bundles the read and write pools.
type Database struct {
	read   *sqlx.DB
	write  *sqlx.DB
	logger *slog.Logger
}

// New connects both pools and pings them. A failed ping is fatal to
// startup, so it surfaces as an error here.
func New(ctx context.Context, cfg config.Database, logger *slog.Logger) (*Database, error) {
	write, err := connect(ctx, cfg.WriteURL())
	if err != nil {
		return nil, fmt.Errorf("connect primary: %w", err)
	}

	read := write
	if cfg.PrimaryURL != "" {
		if read, err = connect(ctx, cfg.URL); err != nil {
			write.Close()
			return nil, fmt.Errorf("connect replica: %w", err)
		}
	}

	return &Database{read: read, write: write, logger: logger}, nil
}

func connect(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases both pools.
func (d *Database) Close() error {
	if d.read != d.write {
		d.read.Close()
	}
	return d.write.Close()
}

// Ping verifies both pools are reachable.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.read.PingContext(ctx); err != nil {
		return fmt.Errorf("ping read pool: %w", err)
	}
	return d.write.PingContext(ctx)
}

// IncrementCounter adds delta to the named row of the counters table,
// creating it on first use.
func (d *Database) IncrementCounter(ctx context.Context, name string, delta int64) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO counters (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + EXCLUDED.value`,
		name, delta,
	)
	if err != nil {
		return fmt.Errorf("increment counter %s: %w", name, err)
	}
	return nil
}

// TouchFile records the last access time of a cached artifact under a
// monotonic guard: the write only lands when the stored time is older or
// null, so delayed flushes never move access times backwards.
func (d *Database) TouchFile(ctx context.Context, path []string, at time.Time) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO files (name, last_access)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET last_access = EXCLUDED.last_access
		WHERE files.last_access IS NULL OR files.last_access < EXCLUDED.last_access`,
		pq.Array(path), at,
	)
	if err != nil {
		return fmt.Errorf("touch file %v: %w", path, err)
	}
	return nil
}

// RefreshViews rebuilds the materialized rollups behind the stats
// endpoints. Runs every 30 minutes when DATABASE_REFRESH is enabled.
func (d *Database) RefreshViews(ctx context.Context) error {
	for _, view := range []string{"mv_builds_stats", "mv_versions_stats"} {
		if _, err := d.write.ExecContext(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+view); err != nil {
			return fmt.Errorf("refresh %s: %w", view, err)
		}
	}
	return nil
}
