package db

import (
	"context"
	"fmt"

	"github.com/mcjars/www-sub000/internal/models"
)

// typeStatsRow is one row of the mv_builds_stats materialized view.
type typeStatsRow struct {
	Type              models.ServerType `db:"type"`
	Builds            int64             `db:"builds"`
	VersionsMinecraft int64             `db:"versions_minecraft"`
	VersionsProject   int64             `db:"versions_project"`
}

// TypeStats returns the static metadata of every server family together
// with its build and version rollups, in enumeration order. The rollups
// come from a materialized view refreshed every 30 minutes.
func (d *Database) TypeStats(ctx context.Context) ([]*models.TypeStats, error) {
	var rows []typeStatsRow
	err := d.read.SelectContext(ctx, &rows, `
		SELECT type, builds, versions_minecraft, versions_project
		FROM mv_builds_stats`)
	if err != nil {
		return nil, fmt.Errorf("type stats: %w", err)
	}

	byType := make(map[models.ServerType]typeStatsRow, len(rows))
	for _, row := range rows {
		byType[row.Type] = row
	}

	out := make([]*models.TypeStats, 0, len(models.Types()))
	for _, t := range models.Types() {
		stats := &models.TypeStats{TypeInfo: t.Info()}
		if row, ok := byType[t]; ok {
			stats.Builds = row.Builds
			stats.Versions.Minecraft = row.VersionsMinecraft
			stats.Versions.Project = row.VersionsProject
		}
		out = append(out, stats)
	}
	return out, nil
}

// Stats is the site-wide rollup behind /api/v1/stats.
type Stats struct {
	Builds   int64 `json:"builds"`
	Hashes   int64 `json:"hashes"`
	Requests int64 `json:"requests"`
	Size     struct {
		Database int64 `json:"database"`
	} `json:"size"`
}

// SiteStats aggregates the global counters: total builds, stored hashes,
// lifetime request count and database size.
func (d *Database) SiteStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := d.read.GetContext(ctx, &stats.Builds, `SELECT COUNT(*) FROM builds`)
	if err != nil {
		return nil, fmt.Errorf("site stats builds: %w", err)
	}
	if err := d.read.GetContext(ctx, &stats.Hashes, `SELECT COUNT(*) FROM build_hashes`); err != nil {
		return nil, fmt.Errorf("site stats hashes: %w", err)
	}
	err = d.read.GetContext(ctx, &stats.Requests,
		`SELECT COALESCE(SUM(value), 0) FROM counters WHERE name = 'requests'`)
	if err != nil {
		return nil, fmt.Errorf("site stats requests: %w", err)
	}
	err = d.read.GetContext(ctx, &stats.Size.Database,
		`SELECT pg_database_size(current_database())`)
	if err != nil {
		return nil, fmt.Errorf("site stats size: %w", err)
	}
	return stats, nil
}
