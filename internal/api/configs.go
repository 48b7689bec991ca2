package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/httputil"
	"github.com/mcjars/www-sub000/internal/models"
)

// handleV2Configs lists every known config file.
func (s *Server) handleV2Configs(r *http.Request) (*Response, error) {
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"configs": models.KnownConfigs(),
	}), nil
}

// configPayload is the POST /api/v2/config body.
type configPayload struct {
	File   string `json:"file"`
	Config string `json:"config"`
}

// configMatch is the normalization result for one submitted config.
type configMatch struct {
	Formatted string            `json:"formatted"`
	Version   *string           `json:"version"`
	File      string            `json:"file"`
	Config    models.ConfigInfo `json:"config"`
}

// handleV2Config normalizes a submitted config file for similarity search
// against known build configs.
func (s *Server) handleV2Config(r *http.Request) (*Response, error) {
	raw, err := httputil.ReadLimitedBody(r.Body, httputil.DefaultMaxBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return nil, TooLarge("payload too large")
		}
		return nil, BadRequest("unreadable body")
	}

	var payload configPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, BadRequest("invalid json body")
	}
	if payload.File == "" || payload.Config == "" {
		return nil, BadRequest("file and config are required")
	}
	SetBody(r, map[string]any{"file": payload.File})

	key, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	match, err := cache.Cached(r.Context(), s.cache, "config::"+string(key), ttlTypes,
		func(ctx context.Context) (*configMatch, error) {
			file, info, ok := models.LookupConfig(payload.File)
			if !ok {
				return nil, nil
			}

			formatted, version := models.FormatConfig(payload.File, payload.Config)
			result := &configMatch{
				Formatted: formatted,
				File:      file,
				Config:    info,
			}
			if version != "" {
				result.Version = &version
			}
			return result, nil
		})
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, NotFound("unknown config file %q", payload.File)
	}

	return JSON(http.StatusOK, map[string]any{
		"success":   true,
		"formatted": match.Formatted,
		"version":   match.Version,
		"file":      match.File,
		"config":    match.Config,
	}), nil
}
