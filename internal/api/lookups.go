package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/models"
)

// handleLookups serves the all-time lookup aggregates grouped by family or
// version.
func (s *Server) handleLookups(r *http.Request) (*Response, error) {
	group := r.PathValue("group")
	if group != "types" && group != "versions" {
		return nil, NotFound("unknown lookup group %q", group)
	}

	stats, err := cache.Cached(r.Context(), s.cache,
		fmt.Sprintf("lookups::%s::all", group), ttlVersions,
		func(ctx context.Context) (map[string]db.LookupStats, error) {
			if group == "types" {
				return s.analytics.LookupsByType(ctx)
			}
			return s.analytics.LookupsByVersion(ctx, nil)
		})
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		group:     stats,
	}), nil
}

// handleLookupHistory serves per-day lookup aggregates for one month.
func (s *Server) handleLookupHistory(r *http.Request) (*Response, error) {
	group := r.PathValue("group")
	if group != "types" && group != "versions" {
		return nil, NotFound("unknown lookup group %q", group)
	}
	start, end, err := parseMonth(r)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("lookups::%s::all::history::%d::%d", group, start.Unix(), end.Unix())
	history, err := cache.Cached(r.Context(), s.cache, key, ttlHistory,
		func(ctx context.Context) (map[string][]db.DayStats, error) {
			return s.analytics.LookupHistory(ctx, group, start, end)
		})
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		group:     history,
	}), nil
}

// parseMonth validates the {year}/{month} path segments; analytics only
// exist from 2024 onwards.
func parseMonth(r *http.Request) (time.Time, time.Time, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 2024 {
		return time.Time{}, time.Time{}, BadRequest("invalid year %q", r.PathValue("year"))
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, time.Time{}, BadRequest("invalid month %q", r.PathValue("month"))
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// handleRequests serves the request aggregates for a family or a version.
func (s *Server) handleRequests(r *http.Request) (*Response, error) {
	target := r.PathValue("target")

	if t, ok := models.ParseType(target); ok {
		stats, err := cache.Cached(r.Context(), s.cache, "requests::types::"+string(t), ttlVersions,
			func(ctx context.Context) (*db.LookupStats, error) {
				return s.analytics.RequestStats(ctx, t, nil)
			})
		if err != nil {
			return nil, err
		}
		return JSON(http.StatusOK, map[string]any{
			"success":  true,
			"requests": stats,
		}), nil
	}

	stats, err := cache.Cached(r.Context(), s.cache, "requests::versions::"+target, ttlVersions,
		func(ctx context.Context) (db.LookupStats, error) {
			all, err := s.analytics.LookupsByVersion(ctx, nil)
			if err != nil {
				return db.LookupStats{}, err
			}
			return all[target], nil
		})
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success":  true,
		"requests": stats,
	}), nil
}

// handleStats serves build and lookup rollups for a family, optionally
// narrowed to one version.
func (s *Server) handleStats(r *http.Request) (*Response, error) {
	t, err := parseType(r)
	if err != nil {
		return nil, err
	}

	var version *string
	if v := r.PathValue("version"); v != "" {
		version = &v
	}

	key := "stats::types::" + string(t)
	if version != nil {
		key += "::" + *version
	}

	type statsResult struct {
		Builds  int64           `json:"builds"`
		Lookups *db.LookupStats `json:"lookups"`
	}
	stats, err := cache.Cached(r.Context(), s.cache, key, ttlTypes,
		func(ctx context.Context) (*statsResult, error) {
			lookups, err := s.analytics.RequestStats(ctx, t, version)
			if err != nil {
				return nil, err
			}

			result := &statsResult{Lookups: lookups}
			if version != nil {
				rollup, err := s.store.Version(ctx, t, *version)
				if err != nil {
					return nil, err
				}
				result.Builds = rollup.Builds
			} else {
				versions, err := s.cachedVersions(ctx, t)
				if err != nil {
					return nil, err
				}
				for _, v := range versions {
					result.Builds += v.Builds
				}
			}
			return result, nil
		})
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	}), nil
}

// handleStatsHistory serves per-day aggregates for (family[, version])
// over one month.
func (s *Server) handleStatsHistory(r *http.Request) (*Response, error) {
	t, err := parseType(r)
	if err != nil {
		return nil, err
	}
	start, end, err := parseMonth(r)
	if err != nil {
		return nil, err
	}

	var version *string
	versionKey := ""
	if v := r.PathValue("version"); v != "" {
		version = &v
		versionKey = v
	}

	key := fmt.Sprintf("stats::types::%s::%s::history::%d::%d", t, versionKey, start.Unix(), end.Unix())
	history, err := cache.Cached(r.Context(), s.cache, key, ttlHistory,
		func(ctx context.Context) ([]db.DayStats, error) {
			return s.analytics.StatsHistory(ctx, t, version, start, end)
		})
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"stats":   history,
	}), nil
}
