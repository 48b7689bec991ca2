package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mcjars/www-sub000/internal/models"
)

const buildColumns = `
	b.id, b.type, b.version_id, b.project_version_id, b.build_number,
	b.experimental, b.jar_url, b.jar_size, b.jar_location,
	b.zip_url, b.zip_size, b.installation, b.changes, b.created`

// buildRow is the raw builds row; Name is derived, not stored.
type buildRow struct {
	ID               int64             `db:"id"`
	Type             models.ServerType `db:"type"`
	VersionID        *string           `db:"version_id"`
	ProjectVersionID *string           `db:"project_version_id"`
	BuildNumber      int               `db:"build_number"`
	Experimental     bool              `db:"experimental"`
	JarURL           *string           `db:"jar_url"`
	JarSize          *int64            `db:"jar_size"`
	JarLocation      *string           `db:"jar_location"`
	ZipURL           *string           `db:"zip_url"`
	ZipSize          *int64            `db:"zip_size"`
	Installation     models.Stages     `db:"installation"`
	Changes          models.Changes    `db:"changes"`
	Created          time.Time         `db:"created"`
}

func (r *buildRow) toBuild() *models.Build {
	return &models.Build{
		ID:               r.ID,
		Type:             r.Type,
		VersionID:        r.VersionID,
		ProjectVersionID: r.ProjectVersionID,
		BuildNumber:      r.BuildNumber,
		Name:             models.BuildName(r.ProjectVersionID, r.BuildNumber),
		Experimental:     r.Experimental,
		JarURL:           r.JarURL,
		JarSize:          r.JarSize,
		JarLocation:      r.JarLocation,
		ZipURL:           r.ZipURL,
		ZipSize:          r.ZipSize,
		Installation:     r.Installation,
		Changes:          r.Changes,
		Created:          r.Created,
	}
}

// BuildLookup is the result of identifying a build: the matched build, the
// newest build of the same family and version, and the version rollup.
type BuildLookup struct {
	Build   *models.Build           `json:"build"`
	Latest  *models.Build           `json:"latest"`
	Version *models.MinifiedVersion `json:"version"`
}

// BuildByV1Identifier resolves ident to a build. A numeric ident is a row
// id; otherwise its length selects the hash column to match against.
func (d *Database) BuildByV1Identifier(ctx context.Context, ident string) (*BuildLookup, error) {
	if id, err := strconv.ParseInt(ident, 10, 64); err == nil {
		return d.lookupBuild(ctx, `WHERE b.id = $1`, id)
	}

	column, ok := models.HashColumn(ident)
	if !ok {
		return nil, fmt.Errorf("%w: not a build id or hash", ErrNotFound)
	}
	return d.lookupBuild(ctx,
		fmt.Sprintf(`JOIN build_hashes h ON h.build_id = b.id WHERE h.%s = $1`, column),
		ident,
	)
}

// BuildByHash resolves a build through one named hash column.
func (d *Database) BuildByHash(ctx context.Context, algorithm, hash string) (*BuildLookup, error) {
	expected, ok := models.HashColumn(hash)
	if !ok || expected != algorithm {
		return nil, fmt.Errorf("%w: malformed %s hash", ErrNotFound, algorithm)
	}
	return d.lookupBuild(ctx,
		fmt.Sprintf(`JOIN build_hashes h ON h.build_id = b.id WHERE h.%s = $1`, algorithm),
		hash,
	)
}

// BuildByID resolves a build by its row id.
func (d *Database) BuildByID(ctx context.Context, id int64) (*BuildLookup, error) {
	return d.lookupBuild(ctx, `WHERE b.id = $1`, id)
}

func (d *Database) lookupBuild(ctx context.Context, clause string, arg any) (*BuildLookup, error) {
	var row buildRow
	query := `SELECT ` + buildColumns + ` FROM builds b ` + clause + ` LIMIT 1`
	if err := d.read.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup build: %w", err)
	}

	build := row.toBuild()
	lookup := &BuildLookup{Build: build}

	version := build.EffectiveVersion()
	if version == "" {
		return lookup, nil
	}

	latest, err := d.LatestBuild(ctx, build.Type, version)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	lookup.Latest = latest

	stats, err := d.versionStats(ctx, build.Type, version)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	lookup.Version = stats

	return lookup, nil
}

// LatestBuild returns the newest build of (family, version).
func (d *Database) LatestBuild(ctx context.Context, t models.ServerType, version string) (*models.Build, error) {
	var row buildRow
	err := d.read.GetContext(ctx, &row, `
		SELECT `+buildColumns+`
		FROM builds b
		WHERE b.type = $1 AND `+versionColumn(t)+` = $2
		ORDER BY b.build_number DESC
		LIMIT 1`,
		t, version,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("latest build %s %s: %w", t, version, err)
	}
	return row.toBuild(), nil
}

// Builds returns every build of (family, version), oldest first.
func (d *Database) Builds(ctx context.Context, t models.ServerType, version string) ([]*models.Build, error) {
	var rows []buildRow
	err := d.read.SelectContext(ctx, &rows, `
		SELECT `+buildColumns+`
		FROM builds b
		WHERE b.type = $1 AND `+versionColumn(t)+` = $2
		ORDER BY b.build_number ASC`,
		t, version,
	)
	if err != nil {
		return nil, fmt.Errorf("builds %s %s: %w", t, version, err)
	}

	out := make([]*models.Build, len(rows))
	for i := range rows {
		out[i] = rows[i].toBuild()
	}
	return out, nil
}

// BuildByNumber returns one build of (family, version) by its number.
func (d *Database) BuildByNumber(ctx context.Context, t models.ServerType, version string, number int) (*models.Build, error) {
	var row buildRow
	err := d.read.GetContext(ctx, &row, `
		SELECT `+buildColumns+`
		FROM builds b
		WHERE b.type = $1 AND `+versionColumn(t)+` = $2 AND b.build_number = $3
		LIMIT 1`,
		t, version, number,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("build %s %s #%d: %w", t, version, number, err)
	}
	return row.toBuild(), nil
}

// versionStats assembles the MinifiedVersion rollup for (family, version).
func (d *Database) versionStats(ctx context.Context, t models.ServerType, version string) (*models.MinifiedVersion, error) {
	if t.ProjectAsIdentifier() {
		var stats models.MinifiedVersion
		err := d.read.GetContext(ctx, &stats, `
			SELECT $2 AS id, 'RELEASE' AS type, TRUE AS supported, 21 AS java,
			       COUNT(b.id) AS builds, COALESCE(MIN(b.created), NOW()) AS created
			FROM builds b
			WHERE b.type = $1 AND b.project_version_id = $2`,
			t, version,
		)
		if err != nil {
			return nil, fmt.Errorf("version stats %s %s: %w", t, version, err)
		}
		return &stats, nil
	}

	var stats models.MinifiedVersion
	err := d.read.GetContext(ctx, &stats, `
		SELECT v.id, v.type, v.supported, v.java,
		       COUNT(b.id) AS builds, COALESCE(MIN(b.created), NOW()) AS created
		FROM minecraft_versions v
		LEFT JOIN builds b ON b.version_id = v.id AND b.type = $1
		WHERE v.id = $2
		GROUP BY v.id, v.type, v.supported, v.java`,
		t, version,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("version stats %s %s: %w", t, version, err)
	}
	return &stats, nil
}

// versionColumn names the builds column identifying versions of t.
func versionColumn(t models.ServerType) string {
	if t.ProjectAsIdentifier() {
		return "b.project_version_id"
	}
	return "b.version_id"
}

// JarHash returns the stored sha256 of the artifact at path, used as a
// strong ETag for downloads. Paths without a matching build return
// ErrNotFound.
func (d *Database) JarHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := d.read.GetContext(ctx, &hash, `
		SELECT h.sha256
		FROM builds b
		JOIN build_hashes h ON h.build_id = b.id
		WHERE b.jar_location = $1
		LIMIT 1`,
		path,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("jar hash %s: %w", path, err)
	}
	return hash, nil
}
