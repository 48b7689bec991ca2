package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/mcjars")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CLICKHOUSE_URL", "localhost:9000")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0", cfg.Bind)
	assert.Equal(t, 6969, cfg.Port)
	assert.Equal(t, "0.0.0.0:6969", cfg.Addr())
	assert.Equal(t, RedisModeSingle, cfg.Redis.Mode)
	assert.Equal(t, "/mnt/mcjars-cache", cfg.Files.CacheDir)
	assert.Equal(t, "/mnt/mcjars", cfg.Files.Location)
	assert.Equal(t, DefaultFileCacheSize, cfg.Files.CacheMaxSize)
	assert.True(t, cfg.Database.Refresh)
	assert.False(t, cfg.Database.Migrate)
	assert.False(t, cfg.S3.Enabled())
	assert.False(t, cfg.GitHub.Enabled())
}

func TestLoadSentinels(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_MODE", "sentinel")
	t.Setenv("REDIS_SENTINELS", "10.0.0.1:26379, 10.0.0.2:26379 ,10.0.0.3:26379")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"10.0.0.1:26379", "10.0.0.2:26379", "10.0.0.3:26379"}, cfg.Redis.Sentinels)
	assert.Equal(t, "mymaster", cfg.Redis.MasterName)
}

func TestLoadSentinelURL(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_MODE", "sentinel")
	t.Setenv("REDIS_SENTINELS", "sentinel://10.0.0.1:26379,10.0.0.2:26379/cache-master/3")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"10.0.0.1:26379", "10.0.0.2:26379"}, cfg.Redis.Sentinels)
	assert.Equal(t, "cache-master", cfg.Redis.MasterName)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadPortInvalid(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateMissing(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		want  string
	}{
		{"database", "DATABASE_URL", "DATABASE_URL is required"},
		{"redis", "REDIS_URL", "REDIS_URL is required"},
		{"clickhouse", "CLICKHOUSE_URL", "CLICKHOUSE_URL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")

			cfg, err := Load()
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateRedisMode(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_MODE", "cluster")

	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "unknown REDIS_MODE")
}

func TestValidateSentinelMissing(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_MODE", "sentinel")

	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "REDIS_SENTINELS is required")
}

func TestValidateS3(t *testing.T) {
	setRequired(t)
	t.Setenv("S3_BUCKET", "mcjars")

	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "S3_ENDPOINT is required")

	t.Setenv("S3_ENDPOINT", "https://minio.local")
	cfg, err = Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "S3_ACCESS_KEY")

	t.Setenv("S3_ACCESS_KEY", "key")
	t.Setenv("S3_SECRET_KEY", "secret")
	cfg, err = Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.S3.Enabled())
}

func TestWriteURLFallback(t *testing.T) {
	d := Database{URL: "postgres://replica/db"}
	assert.Equal(t, "postgres://replica/db", d.WriteURL())

	d.PrimaryURL = "postgres://primary/db"
	assert.Equal(t, "postgres://primary/db", d.WriteURL())
}
