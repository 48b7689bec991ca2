package api

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/mcjars/www-sub000/internal/observability"
)

// Recover converts handler panics into the standard 500 envelope and
// reports them. Outermost layer of the chain.
func (s *Server) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err, ok := rec.(error)
				if !ok {
					err = &Error{Status: http.StatusInternalServerError, Message: "panic"}
				}
				s.logger.Error("panic in handler",
					"method", r.Method, "path", r.URL.Path, "panic", rec)
				observability.CaptureError(err)
				writeResponse(w, r, JSON(http.StatusInternalServerError,
					errorBody("internal server error")))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS allows cross-origin reads from any site.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, If-None-Match")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLog writes one structured line per request.
func (s *Server) AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, ok := clientAddr(r)
		if !ok {
			// Outside the API gate a broken address only degrades the log.
			ip = netip.IPv6Loopback()
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"ip", ip.Unmap().String(),
		)
		next.ServeHTTP(w, r)
	})
}

// clientAddr extracts the client address from the proxy headers: X-Real-IP
// first, then the first comma-delimited token of X-Forwarded-For.
func clientAddr(r *http.Request) (netip.Addr, bool) {
	raw := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if raw == "" {
		forwarded := r.Header.Get("X-Forwarded-For")
		raw, _, _ = strings.Cut(forwarded, ",")
		raw = strings.TrimSpace(raw)
	}
	if raw == "" {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
