package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/goccy/go-json"

	"github.com/mcjars/www-sub000/internal/config"
	"github.com/mcjars/www-sub000/internal/models"
	"github.com/mcjars/www-sub000/internal/requestlog"
)

// ClickHouse wraps the columnar connection used for request analytics.
type ClickHouse struct {
	conn driver.Conn
}

// NewClickHouse connects and pings the analytical store. CLICKHOUSE_URL is
// either a host:port pair or a full clickhouse:// DSN.
func NewClickHouse(ctx context.Context, cfg config.ClickHouse) (*ClickHouse, error) {
	var opts *clickhouse.Options
	if strings.Contains(cfg.URL, "://") {
		parsed, err := clickhouse.ParseDSN(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse clickhouse url: %w", err)
		}
		opts = parsed
	} else {
		opts = &clickhouse.Options{Addr: []string{cfg.URL}}
	}
	opts.Auth = clickhouse.Auth{
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

// Close releases the connection.
func (c *ClickHouse) Close() error { return c.conn.Close() }

// Ping verifies the connection is alive.
func (c *ClickHouse) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// InsertRequests commits one telemetry batch to the requests table.
func (c *ClickHouse) InsertRequests(ctx context.Context, records []*requestlog.Record) error {
	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO requests (
			id, organization_id, origin, method, path, time, status,
			body, data, ip, continent, country, user_agent, created
		)`)
	if err != nil {
		return fmt.Errorf("prepare requests batch: %w", err)
	}

	for _, rec := range records {
		body, err := marshalJSONColumn(rec.Body)
		if err != nil {
			return fmt.Errorf("encode request body %s: %w", rec.ID, err)
		}
		data, err := marshalJSONColumn(rec.Data)
		if err != nil {
			return fmt.Errorf("encode request data %s: %w", rec.ID, err)
		}

		err = batch.Append(
			rec.ID,
			rec.OrganizationID,
			rec.Origin,
			rec.Method,
			rec.Path,
			uint32(rec.Time),
			rec.Status,
			body,
			data,
			rec.WireIP(),
			rec.ContinentCode,
			rec.CountryCode,
			rec.UserAgent,
			rec.Created,
		)
		if err != nil {
			return fmt.Errorf("append request %s: %w", rec.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send requests batch: %w", err)
	}
	return nil
}

func marshalJSONColumn(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

// LookupStats is one aggregate of tagged build lookups.
type LookupStats struct {
	Total     uint64 `json:"total" ch:"total"`
	UniqueIPs uint64 `json:"uniqueIps" ch:"unique_ips"`
}

// DayStats is one day of a history aggregate.
type DayStats struct {
	Day       time.Time `json:"day" ch:"day"`
	Total     uint64    `json:"total" ch:"total"`
	UniqueIPs uint64    `json:"uniqueIps" ch:"unique_ips"`
}

const (
	lookupTypeExpr    = `JSONExtractString(data, 'build', 'type')`
	lookupVersionExpr = `if(
		JSONExtractString(data, 'build', 'versionId') != '',
		JSONExtractString(data, 'build', 'versionId'),
		JSONExtractString(data, 'build', 'projectVersionId')
	)`
	lookupFilter = `JSONExtractString(data, 'type') = 'lookup'`
)

// LookupsByType counts tagged build lookups per server family.
func (c *ClickHouse) LookupsByType(ctx context.Context) (map[string]LookupStats, error) {
	return c.groupedLookups(ctx, lookupTypeExpr, "")
}

// LookupsByVersion counts tagged build lookups per version, optionally
// restricted to one family.
func (c *ClickHouse) LookupsByVersion(ctx context.Context, t *models.ServerType) (map[string]LookupStats, error) {
	filter := ""
	if t != nil {
		filter = fmt.Sprintf(`%s = '%s'`, lookupTypeExpr, *t)
	}
	return c.groupedLookups(ctx, lookupVersionExpr, filter)
}

func (c *ClickHouse) groupedLookups(ctx context.Context, groupExpr, filter string) (map[string]LookupStats, error) {
	where := lookupFilter
	if filter != "" {
		where += " AND " + filter
	}

	var rows []struct {
		Key       string `ch:"key"`
		Total     uint64 `ch:"total"`
		UniqueIPs uint64 `ch:"unique_ips"`
	}
	query := fmt.Sprintf(`
		SELECT %s AS key, COUNT(*) AS total, uniqExact(ip) AS unique_ips
		FROM requests
		WHERE %s AND %s != ''
		GROUP BY key`,
		groupExpr, where, groupExpr,
	)
	if err := c.conn.Select(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("grouped lookups: %w", err)
	}

	out := make(map[string]LookupStats, len(rows))
	for _, row := range rows {
		out[row.Key] = LookupStats{Total: row.Total, UniqueIPs: row.UniqueIPs}
	}
	return out, nil
}

// LookupHistory returns per-day lookup aggregates between start and end,
// grouped by family (group "types") or version (group "versions").
func (c *ClickHouse) LookupHistory(ctx context.Context, group string, start, end time.Time) (map[string][]DayStats, error) {
	groupExpr := lookupTypeExpr
	if group == "versions" {
		groupExpr = lookupVersionExpr
	}

	var rows []struct {
		Key       string    `ch:"key"`
		Day       time.Time `ch:"day"`
		Total     uint64    `ch:"total"`
		UniqueIPs uint64    `ch:"unique_ips"`
	}
	query := fmt.Sprintf(`
		SELECT %s AS key, toStartOfDay(created) AS day,
		       COUNT(*) AS total, uniqExact(ip) AS unique_ips
		FROM requests
		WHERE %s AND %s != '' AND created >= $1 AND created < $2
		GROUP BY key, day
		ORDER BY day ASC`,
		groupExpr, lookupFilter, groupExpr,
	)
	if err := c.conn.Select(ctx, &rows, query, start, end); err != nil {
		return nil, fmt.Errorf("lookup history: %w", err)
	}

	out := make(map[string][]DayStats)
	for _, row := range rows {
		out[row.Key] = append(out[row.Key], DayStats{
			Day:       row.Day,
			Total:     row.Total,
			UniqueIPs: row.UniqueIPs,
		})
	}
	return out, nil
}

// RequestStats aggregates all API requests tagged with builds of a family
// and optionally one version.
func (c *ClickHouse) RequestStats(ctx context.Context, t models.ServerType, version *string) (*LookupStats, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) AS total, uniqExact(ip) AS unique_ips
		FROM requests
		WHERE %s = $1`,
		lookupTypeExpr,
	)
	args := []any{string(t)}
	if version != nil {
		query += fmt.Sprintf(" AND %s = $2", lookupVersionExpr)
		args = append(args, *version)
	}

	var rows []LookupStats
	if err := c.conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("request stats: %w", err)
	}
	if len(rows) == 0 {
		return &LookupStats{}, nil
	}
	return &rows[0], nil
}

// StatsHistory returns per-day aggregates for (family, version) between
// start and end.
func (c *ClickHouse) StatsHistory(ctx context.Context, t models.ServerType, version *string, start, end time.Time) ([]DayStats, error) {
	query := fmt.Sprintf(`
		SELECT toStartOfDay(created) AS day,
		       COUNT(*) AS total, uniqExact(ip) AS unique_ips
		FROM requests
		WHERE %s = $1 AND created >= $2 AND created < $3`,
		lookupTypeExpr,
	)
	args := []any{string(t), start, end}
	if version != nil {
		query += fmt.Sprintf(" AND %s = $4", lookupVersionExpr)
		args = append(args, *version)
	}
	query += " GROUP BY day ORDER BY day ASC"

	var rows []DayStats
	if err := c.conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("stats history: %w", err)
	}
	return rows, nil
}

// OrganizationStats aggregates request facts for one organization.
func (c *ClickHouse) OrganizationStats(ctx context.Context, orgID int64) (*models.OrganizationStats, error) {
	var rows []struct {
		Requests   uint64 `ch:"requests"`
		UserAgents uint64 `ch:"user_agents"`
		Origins    uint64 `ch:"origins"`
	}
	err := c.conn.Select(ctx, &rows, `
		SELECT COUNT(*) AS requests,
		       uniqExact(user_agent) AS user_agents,
		       uniqExact(origin) AS origins
		FROM requests
		WHERE organization_id = $1`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("organization stats %d: %w", orgID, err)
	}
	if len(rows) == 0 {
		return &models.OrganizationStats{}, nil
	}
	return &models.OrganizationStats{
		Requests:   int64(rows[0].Requests),
		UserAgents: int64(rows[0].UserAgents),
		Origins:    int64(rows[0].Origins),
	}, nil
}
