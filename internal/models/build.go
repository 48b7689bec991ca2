package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Build is one published artifact of a server family. Rows are immutable
// once created; the core only reads them.
type Build struct {
	ID               int64      `json:"id" db:"id"`
	Type             ServerType `json:"type" db:"type"`
	VersionID        *string    `json:"versionId" db:"version_id"`
	ProjectVersionID *string    `json:"projectVersionId" db:"project_version_id"`
	BuildNumber      int        `json:"buildNumber" db:"build_number"`
	Name             string     `json:"name" db:"-"`
	Experimental     bool       `json:"experimental" db:"experimental"`
	JarURL           *string    `json:"jarUrl" db:"jar_url"`
	JarSize          *int64     `json:"jarSize" db:"jar_size"`
	JarLocation      *string    `json:"jarLocation" db:"jar_location"`
	ZipURL           *string    `json:"zipUrl" db:"zip_url"`
	ZipSize          *int64     `json:"zipSize" db:"zip_size"`
	Installation     Stages     `json:"installation" db:"installation"`
	Changes          Changes    `json:"changes" db:"changes"`
	Created          time.Time  `json:"created" db:"created"`
}

// EffectiveVersion returns the string identifying the build's version for
// its family.
func (b *Build) EffectiveVersion() string {
	if b.Type.ProjectAsIdentifier() {
		if b.ProjectVersionID != nil {
			return *b.ProjectVersionID
		}
		return ""
	}
	if b.VersionID != nil {
		return *b.VersionID
	}
	return ""
}

// BuildName derives the display name of a build. The first build of a
// project version is named after the version itself; every later build is
// "#<number>". Every code path that materializes a build row must use this
// one derivation.
func BuildName(projectVersionID *string, buildNumber int) string {
	if projectVersionID != nil && buildNumber == 1 {
		return *projectVersionID
	}
	return fmt.Sprintf("#%d", buildNumber)
}

// Installation step kinds.
const (
	StepDownload = "download"
	StepUnzip    = "unzip"
	StepRemove   = "remove"
)

// InstallationStep is one action of an installation stage. Exactly one of
// the payload groups is populated, selected by Type.
type InstallationStep struct {
	Type string `json:"type"`

	// download
	URL  string `json:"url,omitempty"`
	File string `json:"file,omitempty"`
	Size int64  `json:"size,omitempty"`

	// unzip and remove
	Location string `json:"location,omitempty"`
}

// Validate checks the discriminator and its payload.
func (s *InstallationStep) Validate() error {
	switch s.Type {
	case StepDownload:
		if s.URL == "" || s.File == "" {
			return fmt.Errorf("download step requires url and file")
		}
	case StepUnzip:
		if s.File == "" || s.Location == "" {
			return fmt.Errorf("unzip step requires file and location")
		}
	case StepRemove:
		if s.Location == "" {
			return fmt.Errorf("remove step requires location")
		}
	default:
		return fmt.Errorf("unknown installation step type %q", s.Type)
	}
	return nil
}

// Stages is the ordered installation plan: each inner slice is one stage
// whose steps run in parallel. Stored as a JSONB column.
type Stages [][]InstallationStep

// Scan implements sql.Scanner for the JSONB installation column.
func (s *Stages) Scan(src any) error {
	return scanJSON(src, s, "installation")
}

// Changes is the free-text change list of a build, stored as a JSONB array.
type Changes []string

// Scan implements sql.Scanner for the JSONB changes column.
func (c *Changes) Scan(src any) error {
	return scanJSON(src, c, "changes")
}

func scanJSON(src, dest any, column string) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("scan %s: unsupported type %T", column, src)
	}
}

// MinifiedBuild is the compact build representation used in telemetry data
// and latest-build summaries.
type MinifiedBuild struct {
	ID               int64      `json:"id"`
	Type             ServerType `json:"type"`
	VersionID        *string    `json:"versionId"`
	ProjectVersionID *string    `json:"projectVersionId"`
	BuildNumber      int        `json:"buildNumber"`
	Name             string     `json:"name"`
	Experimental     bool       `json:"experimental"`
	Created          time.Time  `json:"created"`
}

// Minify reduces a build to its telemetry shape.
func (b *Build) Minify() MinifiedBuild {
	return MinifiedBuild{
		ID:               b.ID,
		Type:             b.Type,
		VersionID:        b.VersionID,
		ProjectVersionID: b.ProjectVersionID,
		BuildNumber:      b.BuildNumber,
		Name:             b.Name,
		Experimental:     b.Experimental,
		Created:          b.Created,
	}
}

// HashColumn maps a hex digest length onto the matching hash column of the
// build_hashes table. Unknown lengths return false.
func HashColumn(hash string) (string, bool) {
	switch len(hash) {
	case 32:
		return "md5", true
	case 40:
		return "sha1", true
	case 56:
		return "sha224", true
	case 64:
		return "sha256", true
	case 96:
		return "sha384", true
	case 128:
		return "sha512", true
	default:
		return "", false
	}
}
