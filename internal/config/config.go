// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Redis connection modes accepted by REDIS_MODE.
const (
	RedisModeSingle   = "redis"
	RedisModeSentinel = "sentinel"
)

// DefaultFileCacheSize bounds the on-disk artifact cache when
// FILES_CACHE_MAX_SIZE is unset (5 GiB).
const DefaultFileCacheSize int64 = 5 << 30

// Config is the complete runtime configuration, loaded once at startup.
type Config struct {
	Bind         string
	Port         int
	AppURL       string
	FrontendURL  string
	CookieDomain string
	ServerName   string
	LogLevel     string

	Database   Database
	Redis      Redis
	ClickHouse ClickHouse
	S3         S3
	Files      Files
	GitHub     GitHub

	SentryDSN    string
	OTELEndpoint string
}

// Database configures the relational pools. URL serves reads; PrimaryURL,
// when set, serves writes (primary/replica split).
type Database struct {
	URL        string
	PrimaryURL string
	Migrate    bool
	Refresh    bool
}

// WriteURL returns the connection string for the write pool.
func (d Database) WriteURL() string {
	if d.PrimaryURL != "" {
		return d.PrimaryURL
	}
	return d.URL
}

// Redis configures the cache connection. Mode selects between a single
// instance (REDIS_URL) and a sentinel deployment (REDIS_SENTINELS, either a
// CSV of host:port pairs or a sentinel://hosts/<master>/<db> URL).
type Redis struct {
	Mode       string
	URL        string
	Sentinels  []string
	MasterName string
	DB         int
}

// ClickHouse configures the columnar store used for request analytics.
type ClickHouse struct {
	URL      string
	Database string
	Username string
	Password string
}

// S3 configures the object storage backing /files. When Bucket is empty the
// server serves artifacts from Files.Location on local disk instead.
type S3 struct {
	PublicURL string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Enabled reports whether object storage is configured.
func (s S3) Enabled() bool { return s.Bucket != "" }

// Files configures artifact storage and the bounded on-disk cache in front
// of it.
type Files struct {
	CacheDir     string
	Location     string
	CacheMaxSize int64
}

// GitHub holds the OAuth application credentials. Login routes are disabled
// when unset.
type GitHub struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether the OAuth login flow is configured.
func (g GitHub) Enabled() bool { return g.ClientID != "" && g.ClientSecret != "" }

// Load reads the configuration from the environment, applying defaults for
// anything unset. Call Validate before using the result.
func Load() (*Config, error) {
	cfg := &Config{
		Bind:         getenv("BIND", "0.0.0.0"),
		AppURL:       getenv("APP_URL", "http://localhost:6969"),
		FrontendURL:  getenv("APP_FRONTEND_URL", "http://localhost:5173"),
		CookieDomain: getenv("APP_COOKIE_DOMAIN", "localhost"),
		ServerName:   os.Getenv("SERVER_NAME"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		Database: Database{
			URL:        os.Getenv("DATABASE_URL"),
			PrimaryURL: os.Getenv("DATABASE_URL_PRIMARY"),
		},
		Redis: Redis{
			Mode:       getenv("REDIS_MODE", RedisModeSingle),
			URL:        os.Getenv("REDIS_URL"),
			MasterName: getenv("REDIS_SENTINEL_MASTER", "mymaster"),
		},
		ClickHouse: ClickHouse{
			URL:      os.Getenv("CLICKHOUSE_URL"),
			Database: getenv("CLICKHOUSE_DATABASE", "default"),
			Username: getenv("CLICKHOUSE_USERNAME", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		S3: S3{
			PublicURL: os.Getenv("S3_URL"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    getenv("S3_REGION", "us-east-1"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
		Files: Files{
			CacheDir: getenv("FILES_CACHE", "/mnt/mcjars-cache"),
			Location: getenv("FILES_LOCATION", "/mnt/mcjars"),
		},
		GitHub: GitHub{
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		},
		SentryDSN:    os.Getenv("SENTRY_URL"),
		OTELEndpoint: os.Getenv("OTEL_ENDPOINT"),
	}

	port, err := strconv.Atoi(getenv("PORT", "6969"))
	if err != nil {
		return nil, fmt.Errorf("parse PORT: %w", err)
	}
	cfg.Port = port

	if cfg.Database.Migrate, err = getenvBool("DATABASE_MIGRATE", false); err != nil {
		return nil, err
	}
	if cfg.Database.Refresh, err = getenvBool("DATABASE_REFRESH", true); err != nil {
		return nil, err
	}
	if cfg.S3.PathStyle, err = getenvBool("S3_PATH_STYLE", false); err != nil {
		return nil, err
	}

	cfg.Files.CacheMaxSize = DefaultFileCacheSize
	if raw := os.Getenv("FILES_CACHE_MAX_SIZE"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse FILES_CACHE_MAX_SIZE: %w", err)
		}
		cfg.Files.CacheMaxSize = size
	}

	if raw := os.Getenv("REDIS_SENTINELS"); raw != "" {
		if err := cfg.Redis.parseSentinels(raw); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// parseSentinels accepts either a plain CSV of host:port pairs or a
// sentinel://host1,host2/<master>/<db> URL.
func (r *Redis) parseSentinels(raw string) error {
	hosts := raw
	if rest, ok := strings.CutPrefix(raw, "sentinel://"); ok {
		parts := strings.SplitN(rest, "/", 3)
		hosts = parts[0]
		if len(parts) > 1 && parts[1] != "" {
			r.MasterName = parts[1]
		}
		if len(parts) > 2 && parts[2] != "" {
			db, err := strconv.Atoi(parts[2])
			if err != nil {
				return fmt.Errorf("parse REDIS_SENTINELS db: %w", err)
			}
			r.DB = db
		}
	}

	for _, addr := range strings.Split(hosts, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			r.Sentinels = append(r.Sentinels, addr)
		}
	}
	return nil
}

// Validate checks that every required setting is present and consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Redis.Mode {
	case RedisModeSingle:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required in %s mode", RedisModeSingle)
		}
	case RedisModeSentinel:
		if len(c.Redis.Sentinels) == 0 {
			return fmt.Errorf("REDIS_SENTINELS is required in %s mode", RedisModeSentinel)
		}
	default:
		return fmt.Errorf("unknown REDIS_MODE %q", c.Redis.Mode)
	}
	if c.ClickHouse.URL == "" {
		return fmt.Errorf("CLICKHOUSE_URL is required")
	}
	if c.S3.Enabled() {
		if c.S3.Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when S3_BUCKET is set")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_BUCKET is set")
		}
	}
	if c.Files.CacheDir == "" {
		return fmt.Errorf("FILES_CACHE is required")
	}
	if c.Files.CacheMaxSize <= 0 {
		return fmt.Errorf("FILES_CACHE_MAX_SIZE must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
