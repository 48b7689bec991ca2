package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/httputil"
	"github.com/mcjars/www-sub000/internal/models"
)

// maxBulkSearches bounds the POST /api/v2/build array form.
const maxBulkSearches = 10

// lookupTag is the telemetry data attached to identified builds.
type lookupTag struct {
	Type  string         `json:"type"`
	Build lookupTagBuild `json:"build"`
}

type lookupTagBuild struct {
	ID               int64             `json:"id"`
	Type             models.ServerType `json:"type"`
	VersionID        *string           `json:"versionId"`
	ProjectVersionID *string           `json:"projectVersionId"`
	BuildNumber      int               `json:"buildNumber"`
	Java             int               `json:"java"`
}

func tagLookup(r *http.Request, lookup *db.BuildLookup) {
	java := 0
	if lookup.Version != nil {
		java = lookup.Version.Java
	}
	SetData(r, lookupTag{
		Type: "lookup",
		Build: lookupTagBuild{
			ID:               lookup.Build.ID,
			Type:             lookup.Build.Type,
			VersionID:        lookup.Build.VersionID,
			ProjectVersionID: lookup.Build.ProjectVersionID,
			BuildNumber:      lookup.Build.BuildNumber,
			Java:             java,
		},
	})
}

// handleV1Build identifies a build by row id or artifact hash.
func (s *Server) handleV1Build(r *http.Request) (*Response, error) {
	ident := strings.ToLower(r.PathValue("build"))

	lookup, err := cache.Cached(r.Context(), s.cache, "build::"+ident, ttlLookup,
		func(ctx context.Context) (*db.BuildLookup, error) {
			found, err := s.store.BuildByV1Identifier(ctx, ident)
			if errors.Is(err, db.ErrNotFound) {
				return nil, nil
			}
			return found, err
		})
	if err != nil {
		return nil, err
	}
	if lookup == nil {
		return nil, NotFound("build not found")
	}

	tagLookup(r, lookup)
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"build":   lookup.Build,
		"latest":  lookup.Latest,
		"version": lookup.Version,
	}), nil
}

// buildSearch is one entry of the POST /api/v2/build payload.
type buildSearch struct {
	ID   *int64            `json:"id"`
	Hash map[string]string `json:"hash"`
}

func (q *buildSearch) validate() error {
	if q.ID == nil && len(q.Hash) == 0 {
		return BadRequest("search requires an id or a hash")
	}
	if len(q.Hash) > 1 {
		return BadRequest("search accepts exactly one hash")
	}
	for algorithm := range q.Hash {
		switch algorithm {
		case "md5", "sha1", "sha224", "sha256", "sha384", "sha512":
		default:
			return BadRequest("unknown hash algorithm %q", algorithm)
		}
	}
	return nil
}

func (s *Server) searchBuild(ctx context.Context, q buildSearch) (*db.BuildLookup, error) {
	key, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	return cache.Cached(ctx, s.cache, "build::"+string(key), ttlLookup,
		func(ctx context.Context) (*db.BuildLookup, error) {
			var (
				found *db.BuildLookup
				err   error
			)
			if q.ID != nil {
				found, err = s.store.BuildByID(ctx, *q.ID)
			} else {
				for algorithm, hash := range q.Hash {
					found, err = s.store.BuildByHash(ctx, algorithm, strings.ToLower(hash))
				}
			}
			if errors.Is(err, db.ErrNotFound) {
				return nil, nil
			}
			return found, err
		})
}

// handleV2Build identifies one build (object payload) or up to ten
// (array payload), optionally trimming the response to ?fields=.
func (s *Server) handleV2Build(r *http.Request) (*Response, error) {
	raw, err := httputil.ReadLimitedBody(r.Body, httputil.DefaultMaxBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return nil, TooLarge("payload too large")
		}
		return nil, BadRequest("unreadable body")
	}

	fields := parseFields(r.URL.Query().Get("fields"))

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var searches []buildSearch
		if err := json.Unmarshal(raw, &searches); err != nil {
			return nil, BadRequest("invalid json body")
		}
		if len(searches) > maxBulkSearches {
			return nil, TooLarge("payload too large")
		}
		SetBody(r, searches)

		results := make([]map[string]any, len(searches))
		for i, q := range searches {
			if err := q.validate(); err != nil {
				return nil, err
			}
			lookup, err := s.searchBuild(r.Context(), q)
			if err != nil {
				return nil, err
			}
			results[i] = buildResult(lookup, fields)
		}
		return JSON(http.StatusOK, map[string]any{
			"success": true,
			"builds":  results,
		}), nil
	}

	var q buildSearch
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, BadRequest("invalid json body")
	}
	if err := q.validate(); err != nil {
		return nil, err
	}
	SetBody(r, q)

	lookup, err := s.searchBuild(r.Context(), q)
	if err != nil {
		return nil, err
	}
	if lookup == nil {
		return nil, NotFound("build not found")
	}

	tagLookup(r, lookup)

	configs := make(map[string]models.ConfigInfo)
	for path, info := range models.KnownConfigs() {
		if info.Type == lookup.Build.Type {
			configs[path] = info
		}
	}

	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"build":   filterFields(lookup.Build, fields),
		"latest":  filterFields(lookup.Latest, fields),
		"version": lookup.Version,
		"configs": configs,
	}), nil
}

// buildResult renders one bulk search outcome; unmatched searches come
// back as explicit misses.
func buildResult(lookup *db.BuildLookup, fields map[string]bool) map[string]any {
	if lookup == nil {
		return map[string]any{"success": false}
	}
	return map[string]any{
		"success": true,
		"build":   filterFields(lookup.Build, fields),
		"latest":  filterFields(lookup.Latest, fields),
		"version": lookup.Version,
	}
}

func parseFields(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	fields := make(map[string]bool)
	for _, field := range strings.Split(raw, ",") {
		if field = strings.TrimSpace(field); field != "" {
			fields[field] = true
		}
	}
	return fields
}

// filterFields reduces a build to the requested JSON fields. A nil filter
// passes the value through untouched.
func filterFields(b *models.Build, fields map[string]bool) any {
	if b == nil {
		return nil
	}
	if len(fields) == 0 {
		return b
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return b
	}
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return b
	}

	out := make(map[string]any, len(fields))
	for field := range fields {
		if value, ok := full[field]; ok {
			out[field] = value
		}
	}
	return out
}

// handleV1Builds lists the versions of a family with their latest builds.
func (s *Server) handleV1Builds(r *http.Request) (*Response, error) {
	t, err := parseType(r)
	if err != nil {
		return nil, err
	}

	versions, err := s.cachedVersions(r.Context(), t)
	if err != nil {
		return nil, err
	}

	builds := make(map[string]*models.Version, len(versions))
	for _, v := range versions {
		builds[v.ID] = v
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"builds":  builds,
	}), nil
}

// handleVersionBuilds lists every build of (family, version).
func (s *Server) handleVersionBuilds(r *http.Request) (*Response, error) {
	t, err := parseType(r)
	if err != nil {
		return nil, err
	}
	version := r.PathValue("version")

	location, err := s.versionLocation(r.Context(), t, version)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, NotFound("version not found")
	}

	builds, err := cache.Cached(r.Context(), s.cache,
		fmt.Sprintf("builds::%s::%s", t, version), ttlBuilds,
		func(ctx context.Context) ([]*models.Build, error) {
			return s.store.Builds(ctx, t, version)
		})
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"builds":  builds,
	}), nil
}

// handleVersionBuild returns one build of (family, version) by number, or
// the newest one for "latest".
func (s *Server) handleVersionBuild(r *http.Request) (*Response, error) {
	t, err := parseType(r)
	if err != nil {
		return nil, err
	}
	version := r.PathValue("version")
	ident := r.PathValue("build")

	var build *models.Build
	if strings.EqualFold(ident, "latest") {
		build, err = s.store.LatestBuild(r.Context(), t, version)
	} else {
		number, convErr := strconv.Atoi(ident)
		if convErr != nil {
			return nil, BadRequest("invalid build number %q", ident)
		}
		build, err = s.store.BuildByNumber(r.Context(), t, version, number)
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, NotFound("build not found")
	}
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"build":   build,
	}), nil
}

func (s *Server) versionLocation(ctx context.Context, t models.ServerType, version string) (*models.VersionLocation, error) {
	return cache.Cached(ctx, s.cache,
		fmt.Sprintf("version_location::%s::%s", t, version), ttlLocation,
		func(ctx context.Context) (*models.VersionLocation, error) {
			return s.store.VersionLocation(ctx, t, version)
		})
}

func (s *Server) cachedVersions(ctx context.Context, t models.ServerType) ([]*models.Version, error) {
	return cache.Cached(ctx, s.cache, "versions::"+string(t), ttlVersions,
		func(ctx context.Context) ([]*models.Version, error) {
			return s.store.Versions(ctx, t)
		})
}

// handleV2Builds lists the versions of a family in order.
func (s *Server) handleV2Builds(r *http.Request) (*Response, error) {
	t, err := parseType(r)
	if err != nil {
		return nil, err
	}

	versions, err := s.cachedVersions(r.Context(), t)
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"builds":  versions,
	}), nil
}

// handleV1Version summarizes one version across families.
func (s *Server) handleV1Version(r *http.Request) (*Response, error) {
	version := r.PathValue("version")

	types, err := cache.Cached(r.Context(), s.cache, "version::"+version+"::stats", ttlTypes,
		func(ctx context.Context) (map[models.ServerType]int64, error) {
			return s.store.TypesForVersion(ctx, version)
		})
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, NotFound("version not found")
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"version": version,
		"types":   types,
	}), nil
}

// handleV1VersionBuilds is the deprecated flat listing of every build for
// a version across all families.
func (s *Server) handleV1VersionBuilds(r *http.Request) (*Response, error) {
	version := r.PathValue("version")

	types, err := s.store.TypesForVersion(r.Context(), version)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, NotFound("version not found")
	}

	all := make([]*models.Build, 0)
	for t := range types {
		builds, err := s.store.Builds(r.Context(), t, version)
		if err != nil {
			return nil, err
		}
		all = append(all, builds...)
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"builds":  all,
	}), nil
}
