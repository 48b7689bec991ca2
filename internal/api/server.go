package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/config"
	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/models"
	"github.com/mcjars/www-sub000/internal/requestlog"
	"github.com/mcjars/www-sub000/internal/storage"
)

// Store is the relational read-model surface the handlers consume,
// implemented by *db.Database.
type Store interface {
	Ping(ctx context.Context) error

	BuildByV1Identifier(ctx context.Context, ident string) (*db.BuildLookup, error)
	BuildByID(ctx context.Context, id int64) (*db.BuildLookup, error)
	BuildByHash(ctx context.Context, algorithm, hash string) (*db.BuildLookup, error)
	Builds(ctx context.Context, t models.ServerType, version string) ([]*models.Build, error)
	LatestBuild(ctx context.Context, t models.ServerType, version string) (*models.Build, error)
	BuildByNumber(ctx context.Context, t models.ServerType, version string, number int) (*models.Build, error)
	JarHash(ctx context.Context, path string) (string, error)

	Versions(ctx context.Context, t models.ServerType) ([]*models.Version, error)
	Version(ctx context.Context, t models.ServerType, id string) (*models.MinifiedVersion, error)
	VersionLocation(ctx context.Context, t models.ServerType, id string) (*models.VersionLocation, error)
	TypesForVersion(ctx context.Context, version string) (map[models.ServerType]int64, error)

	TypeStats(ctx context.Context) ([]*models.TypeStats, error)
	SiteStats(ctx context.Context) (*db.Stats, error)

	OrganizationByKey(ctx context.Context, key string) (*models.Organization, error)
	Organization(ctx context.Context, id int64) (*models.Organization, error)
	OrganizationsForUser(ctx context.Context, userID int64) ([]*models.Organization, error)
	OrganizationMember(ctx context.Context, orgID, userID int64) (owner, member bool, err error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	OrganizationKeys(ctx context.Context, orgID int64) ([]*models.OrganizationKey, error)
	CreateOrganizationKey(ctx context.Context, orgID int64, name string) (*models.OrganizationKey, error)
	DeleteOrganizationKey(ctx context.Context, orgID, keyID int64) error
	OrganizationSubusers(ctx context.Context, orgID int64) ([]*models.OrganizationSubuser, error)
	InviteSubuser(ctx context.Context, orgID int64, login string) (*models.OrganizationSubuser, error)
	DeleteSubuser(ctx context.Context, orgID, userID int64) error

	UpsertUser(ctx context.Context, githubID int64, login, email, avatar string, name *string) (*models.User, error)
	CreateSession(ctx context.Context, userID int64, ip, userAgent string) (*models.UserSession, error)
	UserBySession(ctx context.Context, token string) (*models.User, error)
	DeleteSession(ctx context.Context, token string) error
}

// Analytics is the columnar aggregate surface, implemented by
// *db.ClickHouse.
type Analytics interface {
	Ping(ctx context.Context) error
	LookupsByType(ctx context.Context) (map[string]db.LookupStats, error)
	LookupsByVersion(ctx context.Context, t *models.ServerType) (map[string]db.LookupStats, error)
	LookupHistory(ctx context.Context, group string, start, end time.Time) (map[string][]db.DayStats, error)
	RequestStats(ctx context.Context, t models.ServerType, version *string) (*db.LookupStats, error)
	StatsHistory(ctx context.Context, t models.ServerType, version *string, start, end time.Time) ([]db.DayStats, error)
	OrganizationStats(ctx context.Context, orgID int64) (*models.OrganizationStats, error)
}

// Artifacts serves build artifact streams, implemented by
// *filecache.FileCache.
type Artifacts interface {
	Get(ctx context.Context, path string) (io.ReadCloser, int64, error)
}

// Server holds every collaborator the HTTP surface needs.
type Server struct {
	cfg       *config.Config
	cache     *cache.Client
	store     Store
	analytics Analytics
	artifacts Artifacts
	source    storage.Source
	reqlog    *requestlog.Logger
	limiter   *requestlog.RateLimiter
	logger    *slog.Logger
	oauth     *oauth2.Config
}

// NewServer wires the HTTP surface.
func NewServer(
	cfg *config.Config,
	cacheClient *cache.Client,
	store Store,
	analytics Analytics,
	artifacts Artifacts,
	source storage.Source,
	reqlog *requestlog.Logger,
	limiter *requestlog.RateLimiter,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:       cfg,
		cache:     cacheClient,
		store:     store,
		analytics: analytics,
		artifacts: artifacts,
		source:    source,
		reqlog:    reqlog,
		limiter:   limiter,
		logger:    logger,
	}
	if cfg.GitHub.Enabled() {
		s.oauth = &oauth2.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  cfg.AppURL + "/api/github/callback",
			Scopes:       []string{"read:user", "user:email"},
		}
	}
	return s
}

type ctxKey int

const (
	ctxOrganization ctxKey = iota
	ctxClientIP
	ctxRequestData
)

// RequestData is the per-request mutable slot handlers populate to tag the
// request for analytics.
type RequestData struct {
	mu   sync.Mutex
	data any
	body any
}

// SetData tags the request for analytics.
func SetData(r *http.Request, v any) {
	if slot, ok := r.Context().Value(ctxRequestData).(*RequestData); ok {
		slot.mu.Lock()
		slot.data = v
		slot.mu.Unlock()
	}
}

// SetBody attaches the parsed request body to the telemetry record.
func SetBody(r *http.Request, v any) {
	if slot, ok := r.Context().Value(ctxRequestData).(*RequestData); ok {
		slot.mu.Lock()
		slot.body = v
		slot.mu.Unlock()
	}
}

func (d *RequestData) snapshot() (data, body any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data, d.body
}

// RequestOrganization returns the organization authenticated by API key,
// or nil.
func RequestOrganization(r *http.Request) *models.Organization {
	org, _ := r.Context().Value(ctxOrganization).(*models.Organization)
	return org
}

// ClientIP returns the address extracted by the API gate.
func ClientIP(r *http.Request) netip.Addr {
	ip, _ := r.Context().Value(ctxClientIP).(netip.Addr)
	return ip
}
