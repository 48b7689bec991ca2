package models

import "time"

// VersionKind distinguishes release lines from snapshots.
type VersionKind string

// Version kinds.
const (
	KindRelease  VersionKind = "RELEASE"
	KindSnapshot VersionKind = "SNAPSHOT"
)

// Version is one version of a server family together with its rollup. The
// identifier is either a Minecraft version string or a project version
// string, depending on the family.
type Version struct {
	ID        string         `json:"id" db:"id"`
	Type      VersionKind    `json:"type" db:"type"`
	Supported bool           `json:"supported" db:"supported"`
	Java      int            `json:"java" db:"java"`
	Builds    int64          `json:"builds" db:"builds"`
	Created   time.Time      `json:"created" db:"created"`
	Latest    *MinifiedBuild `json:"latest,omitempty" db:"-"`
}

// MinifiedVersion carries just the rollup facts for a version, used next
// to build lookups.
type MinifiedVersion struct {
	ID        string      `json:"id" db:"id"`
	Type      VersionKind `json:"type" db:"type"`
	Supported bool        `json:"supported" db:"supported"`
	Java      int         `json:"java" db:"java"`
	Builds    int64       `json:"builds" db:"builds"`
	Created   time.Time   `json:"created" db:"created"`
}

// VersionLocation names the builds column that identifies versions of a
// family: project_version_id for project-identified families, version_id
// for Minecraft-identified ones.
type VersionLocation string

// Version locations.
const (
	LocationProject   VersionLocation = "project_version_id"
	LocationMinecraft VersionLocation = "version_id"
)
