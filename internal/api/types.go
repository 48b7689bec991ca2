package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/models"
)

// Cache lifetimes by content class: personalized data expires fast,
// historical aggregates live for hours.
const (
	ttlPersonal = time.Minute
	ttlBuilds   = 10 * time.Minute
	ttlVersions = 30 * time.Minute
	ttlTypes    = time.Hour
	ttlLookup   = time.Hour
	ttlHistory  = 3 * time.Hour
	ttlLocation = 24 * time.Hour
)

func (s *Server) typeStats(ctx context.Context) ([]*models.TypeStats, error) {
	return cache.Cached(ctx, s.cache, "types::all", ttlTypes,
		func(ctx context.Context) ([]*models.TypeStats, error) {
			return s.store.TypeStats(ctx)
		})
}

// handleV1Types returns the per-family metadata keyed by identifier.
func (s *Server) handleV1Types(r *http.Request) (*Response, error) {
	stats, err := s.typeStats(r.Context())
	if err != nil {
		return nil, err
	}

	types := make(map[string]*models.TypeStats, len(stats))
	for _, t := range stats {
		types[string(t.Identifier)] = t
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"types":   types,
	}), nil
}

// handleV2Types groups the families by category.
func (s *Server) handleV2Types(r *http.Request) (*Response, error) {
	stats, err := s.typeStats(r.Context())
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*models.TypeStats)
	for _, t := range stats {
		for _, category := range t.Categories {
			grouped[category] = append(grouped[category], t)
		}
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"types":   grouped,
	}), nil
}

// handleV1Stats serves the site-wide rollup.
func (s *Server) handleV1Stats(r *http.Request) (*Response, error) {
	stats, err := cache.Cached(r.Context(), s.cache, "stats::all", ttlTypes,
		func(ctx context.Context) (*db.Stats, error) {
			return s.store.SiteStats(ctx)
		})
	if err != nil {
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	}), nil
}

// parseType resolves the {type} path segment or fails with a 404.
func parseType(r *http.Request) (models.ServerType, error) {
	t, ok := models.ParseType(r.PathValue("type"))
	if !ok {
		return "", NotFound("unknown server type %q", r.PathValue("type"))
	}
	return t, nil
}
