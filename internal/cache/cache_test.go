package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcjars/www-sub000/internal/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := New(config.Redis{Mode: config.RedisModeSingle, URL: "redis://" + s.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewBadURL(t *testing.T) {
	_, err := New(config.Redis{Mode: config.RedisModeSingle, URL: "://nope"})
	assert.Error(t, err)
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	type row struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	require.NoError(t, c.Set(ctx, "version::1.21::stats", row{ID: 7, Name: "#7"}, time.Hour))

	var got row
	found, err := c.Get(ctx, "version::1.21::stats", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, row{ID: 7, Name: "#7"}, got)

	found, err = c.Get(ctx, "version::1.8::stats", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetMalformed(t *testing.T) {
	c, s := newTestClient(t)
	require.NoError(t, s.Set("types::all", "{not json"))

	var dest map[string]any
	_, err := c.Get(context.Background(), "types::all", &dest)
	assert.ErrorContains(t, err, "decode cached value")
}

func TestCachedComputesOnce(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"VANILLA", "PAPER"}, nil
	}

	got, err := Cached(ctx, c, "types::all", time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, []string{"VANILLA", "PAPER"}, got)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 1, c.Misses())

	// Served by the in-process tier.
	got, err = Cached(ctx, c, "types::all", time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, []string{"VANILLA", "PAPER"}, got)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 1, c.Hits())

	// Served by Redis once the local tier is gone.
	c.local.Flush()
	got, err = Cached(ctx, c, "types::all", time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, []string{"VANILLA", "PAPER"}, got)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 2, c.Hits())
}

func TestCachedRecomputesAfterExpiry(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := Cached(ctx, c, "versions::PAPER", time.Minute, compute)
	require.NoError(t, err)

	s.FastForward(2 * time.Minute)
	c.local.Flush()

	got, err := Cached(ctx, c, "versions::PAPER", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, 2, calls)
}

func TestCachedMalformedFailsLoud(t *testing.T) {
	c, s := newTestClient(t)
	require.NoError(t, s.Set("build::42", "]["))

	_, err := Cached(context.Background(), c, "build::42", time.Hour, func(ctx context.Context) (map[string]any, error) {
		t.Fatal("compute must not run for a malformed payload")
		return nil, nil
	})
	assert.Error(t, err)
}

func TestCachedComputeError(t *testing.T) {
	c, _ := newTestClient(t)

	wantErr := assert.AnError
	_, err := Cached(context.Background(), c, "version::1.21::stats", time.Hour, func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.EqualValues(t, 1, c.Misses())

	// Errors are not cached.
	got, err := Cached(context.Background(), c, "version::1.21::stats", time.Hour, func(ctx context.Context) (int, error) {
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, got)
}

func TestDeletePrefix(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "organization::5", "org", time.Hour))
	require.NoError(t, c.Set(ctx, "organization::5::stats", "stats", time.Hour))
	require.NoError(t, c.Set(ctx, "organization::51", "other org", time.Hour))
	require.NoError(t, c.Set(ctx, "types::all", "types", time.Hour))

	require.NoError(t, c.DeletePrefix(ctx, "organization::5"))

	var dest string
	found, err := c.Get(ctx, "organization::5", &dest)
	require.NoError(t, err)
	assert.False(t, found)
	found, err = c.Get(ctx, "organization::5::stats", &dest)
	require.NoError(t, err)
	assert.False(t, found)

	// Prefix match is textual, so organization::51 goes too.
	found, err = c.Get(ctx, "organization::51", &dest)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = c.Get(ctx, "types::all", &dest)
	require.NoError(t, err)
	assert.True(t, found)

	assert.False(t, s.Exists("organization::5::stats"))
}

func TestDeleteClearsLocalTier(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) (string, error) {
		calls++
		return "value", nil
	}

	_, err := Cached(ctx, c, "organization::9", time.Hour, compute)
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "organization::9"))

	_, err = Cached(ctx, c, "organization::9", time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
