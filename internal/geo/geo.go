// Package geo resolves client IPs to continent and country codes through
// the ip-api.com batch endpoint.
package geo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// BatchURL is the ip-api bulk lookup endpoint. Free tier, plain HTTP only.
const BatchURL = "http://ip-api.com/batch"

const lookupFields = "continentCode,countryCode,query"

// Location is one resolved address. Unresolvable queries (private ranges,
// bogons) come back with empty codes.
type Location struct {
	ContinentCode string `json:"continentCode"`
	CountryCode   string `json:"countryCode"`
	Query         string `json:"query"`
}

// ErrThrottled is returned when the client-side budget for ip-api calls is
// spent; callers leave records unenriched.
var ErrThrottled = errors.New("geo: lookup budget exhausted")

// Client is a rate-limited ip-api batch client.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	url     string
}

// New builds a Client honoring ip-api's 15 requests/minute batch budget.
func New() *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/15), 15),
		url:     BatchURL,
	}
}

type lookupQuery struct {
	Query  string `json:"query"`
	Fields string `json:"fields"`
}

// Lookup resolves the given addresses in a single batch request and returns
// a map keyed by queried address. Addresses the service could not place are
// absent from the map.
func (c *Client) Lookup(ctx context.Context, ips []string) (map[string]Location, error) {
	out := make(map[string]Location, len(ips))
	if len(ips) == 0 {
		return out, nil
	}
	if !c.limiter.Allow() {
		return nil, ErrThrottled
	}

	queries := make([]lookupQuery, 0, len(ips))
	seen := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		queries = append(queries, lookupQuery{Query: ip, Fields: lookupFields})
	}

	payload, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("encode geo batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build geo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo batch: unexpected status %d", resp.StatusCode)
	}

	var locations []Location
	if err := json.NewDecoder(resp.Body).Decode(&locations); err != nil {
		return nil, fmt.Errorf("decode geo batch: %w", err)
	}

	for _, loc := range locations {
		if loc.Query == "" || loc.CountryCode == "" {
			continue
		}
		out[loc.Query] = loc
	}
	return out, nil
}
