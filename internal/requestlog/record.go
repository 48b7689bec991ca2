// Package requestlog implements per-request telemetry: the per-IP rate
// limiter, request records with geo enrichment, and batched ingestion into
// the analytical store.
package requestlog

import (
	"math/rand/v2"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// Method codes used by the analytical schema.
const (
	MethodGet uint8 = iota + 1
	MethodPost
	MethodPut
	MethodPatch
	MethodDelete
	MethodHead
	MethodOptions
)

// MethodCode maps an HTTP method to its stored code.
func MethodCode(method string) (uint8, bool) {
	switch method {
	case http.MethodGet:
		return MethodGet, true
	case http.MethodPost:
		return MethodPost, true
	case http.MethodPut:
		return MethodPut, true
	case http.MethodPatch:
		return MethodPatch, true
	case http.MethodDelete:
		return MethodDelete, true
	case http.MethodHead:
		return MethodHead, true
	case http.MethodOptions:
		return MethodOptions, true
	default:
		return 0, false
	}
}

// Loggable reports whether a request produces a telemetry record: mutating
// and read methods under /api, except the OAuth exchange.
func Loggable(method, path string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return false
	}
	return strings.HasPrefix(path, "/api") && !strings.HasPrefix(path, "/api/github")
}

const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 12
)

// NewID returns a 12-character random alphanumeric request id.
func NewID() string {
	buf := make([]byte, idLength)
	for i := range buf {
		buf[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(buf)
}

// Record is one request's telemetry row.
type Record struct {
	ID             string
	OrganizationID *int64
	Origin         string
	Method         uint8
	Path           string
	Time           int64
	Status         uint16
	Body           any
	Data           any
	IP             netip.Addr
	ContinentCode  *string
	CountryCode    *string
	UserAgent      string
	Created        time.Time
	End            bool
}

// WireIP renders the client address the way the analytical schema stores
// it: IPv6, with IPv4 mapped into ::ffff:a.b.c.d.
func (r *Record) WireIP() string {
	return netip.AddrFrom16(r.IP.As16()).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
