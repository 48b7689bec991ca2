package db

import (
	"context"
	"fmt"
	"time"

	"github.com/mcjars/www-sub000/internal/models"
)

// VersionLocation determines which builds column identifies version id for
// family t: the project version column for project-identified families,
// the Minecraft version column when id names a known Minecraft version,
// nil otherwise.
func (d *Database) VersionLocation(ctx context.Context, t models.ServerType, id string) (*models.VersionLocation, error) {
	if t.ProjectAsIdentifier() {
		loc := models.LocationProject
		return &loc, nil
	}

	var exists bool
	err := d.read.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM minecraft_versions WHERE id = $1)`, id)
	if err != nil {
		return nil, fmt.Errorf("version location %s: %w", id, err)
	}
	if !exists {
		return nil, nil
	}
	loc := models.LocationMinecraft
	return &loc, nil
}

// versionRow is one aggregated row of the per-family version listing.
type versionRow struct {
	ID        string             `db:"id"`
	Type      models.VersionKind `db:"type"`
	Supported bool               `db:"supported"`
	Java      int                `db:"java"`
	Builds    int64              `db:"builds"`
	Created   time.Time          `db:"created"`
}

// Versions enumerates every version of family t with its build count and
// latest build, ordered by version creation ascending.
func (d *Database) Versions(ctx context.Context, t models.ServerType) ([]*models.Version, error) {
	var rows []versionRow
	var err error

	if t.ProjectAsIdentifier() {
		err = d.read.SelectContext(ctx, &rows, `
			SELECT b.project_version_id AS id, 'RELEASE' AS type, TRUE AS supported,
			       21 AS java, COUNT(b.id) AS builds, MIN(b.created) AS created
			FROM builds b
			WHERE b.type = $1 AND b.project_version_id IS NOT NULL
			GROUP BY b.project_version_id
			ORDER BY MIN(b.created) ASC`,
			t,
		)
	} else {
		err = d.read.SelectContext(ctx, &rows, `
			SELECT v.id, v.type, v.supported, v.java,
			       COUNT(b.id) AS builds, v.created AS created
			FROM minecraft_versions v
			JOIN builds b ON b.version_id = v.id AND b.type = $1
			GROUP BY v.id, v.type, v.supported, v.java, v.created
			ORDER BY v.created ASC`,
			t,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("versions %s: %w", t, err)
	}

	latest, err := d.latestBuilds(ctx, t)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Version, 0, len(rows))
	for _, row := range rows {
		version := &models.Version{
			ID:        row.ID,
			Type:      row.Type,
			Supported: row.Supported,
			Java:      row.Java,
			Builds:    row.Builds,
			Created:   row.Created,
		}
		if b, ok := latest[row.ID]; ok {
			minified := b.Minify()
			version.Latest = &minified
		}
		out = append(out, version)
	}
	return out, nil
}

// latestBuilds fetches the newest build of every version of family t in
// one pass, keyed by the version identifier.
func (d *Database) latestBuilds(ctx context.Context, t models.ServerType) (map[string]*models.Build, error) {
	column := versionColumn(t)

	var rows []buildRow
	err := d.read.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (`+column+`) `+buildColumns+`
		FROM builds b
		WHERE b.type = $1 AND `+column+` IS NOT NULL
		ORDER BY `+column+`, b.build_number DESC`,
		t,
	)
	if err != nil {
		return nil, fmt.Errorf("latest builds %s: %w", t, err)
	}

	out := make(map[string]*models.Build, len(rows))
	for i := range rows {
		b := rows[i].toBuild()
		out[b.EffectiveVersion()] = b
	}
	return out, nil
}

// Version returns one version of family t with its rollup.
func (d *Database) Version(ctx context.Context, t models.ServerType, id string) (*models.MinifiedVersion, error) {
	return d.versionStats(ctx, t, id)
}

// TypesForVersion counts builds per family for one version string, checked
// against both identifying columns.
func (d *Database) TypesForVersion(ctx context.Context, version string) (map[models.ServerType]int64, error) {
	var rows []struct {
		Type   models.ServerType `db:"type"`
		Builds int64             `db:"builds"`
	}
	err := d.read.SelectContext(ctx, &rows, `
		SELECT b.type, COUNT(b.id) AS builds
		FROM builds b
		WHERE b.version_id = $1 OR b.project_version_id = $1
		GROUP BY b.type`,
		version,
	)
	if err != nil {
		return nil, fmt.Errorf("types for version %s: %w", version, err)
	}

	out := make(map[models.ServerType]int64, len(rows))
	for _, row := range rows {
		out[row.Type] = row.Builds
	}
	return out, nil
}
