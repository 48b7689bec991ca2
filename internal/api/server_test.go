package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/config"
	"github.com/mcjars/www-sub000/internal/geo"
	"github.com/mcjars/www-sub000/internal/models"
	"github.com/mcjars/www-sub000/internal/requestlog"
	"github.com/mcjars/www-sub000/internal/storage"
)

// stubStore overrides the methods a test exercises; calling anything else
// panics through the nil embedded interface.
type stubStore struct {
	Store
	organizationByKey func(ctx context.Context, key string) (*models.Organization, error)
	typeStats         func(ctx context.Context) ([]*models.TypeStats, error)
}

func (s *stubStore) OrganizationByKey(ctx context.Context, key string) (*models.Organization, error) {
	return s.organizationByKey(ctx, key)
}

func (s *stubStore) TypeStats(ctx context.Context) ([]*models.TypeStats, error) {
	return s.typeStats(ctx)
}

type stubAnalytics struct {
	Analytics
}

// stubArtifacts serves fixed byte blobs by path.
type stubArtifacts struct {
	files map[string][]byte
}

func (s *stubArtifacts) Get(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	content, ok := s.files[path]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), int64(len(content)), nil
}

type noopInserter struct{}

func (noopInserter) InsertRequests(ctx context.Context, records []*requestlog.Record) error {
	return nil
}

type noopCounters struct{}

func (noopCounters) IncrementCounter(ctx context.Context, name string, delta int64) error {
	return nil
}

type noopGeo struct{}

func (noopGeo) Lookup(ctx context.Context, ips []string) (map[string]geo.Location, error) {
	return nil, nil
}

func newTestServer(t *testing.T, store Store) (*Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cacheClient, err := cache.New(config.Redis{Mode: config.RedisModeSingle, URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheClient.Close() })

	logger := slog.New(slog.DiscardHandler)
	reqlog := requestlog.NewLogger(noopInserter{}, noopCounters{}, noopGeo{}, logger)
	limiter := requestlog.NewRateLimiter(cacheClient.Redis())

	cfg := &config.Config{
		AppURL:       "http://localhost:6969",
		FrontendURL:  "http://localhost:5173",
		CookieDomain: "localhost",
		ServerName:   "test-node",
	}

	srv := NewServer(cfg, cacheClient, store, &stubAnalytics{}, &stubArtifacts{}, nil, reqlog, limiter, logger)
	return srv, mr
}
