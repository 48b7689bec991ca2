package api

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 5 * time.Second

// handleHealth probes every backing store and reports per-dependency
// status. Any failing probe turns the whole response into a 503.
func (s *Server) handleHealth(r *http.Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := map[string]bool{
		"redis":      s.cache.Ping(ctx) == nil,
		"database":   s.store.Ping(ctx) == nil,
		"clickhouse": s.analytics.Ping(ctx) == nil,
	}

	status := http.StatusOK
	healthy := true
	for _, ok := range checks {
		if !ok {
			status = http.StatusServiceUnavailable
			healthy = false
		}
	}

	return JSON(status, map[string]any{
		"success": healthy,
		"checks":  checks,
	}), nil
}
