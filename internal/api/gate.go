package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mcjars/www-sub000/internal/cache"
	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/metrics"
	"github.com/mcjars/www-sub000/internal/models"
	"github.com/mcjars/www-sub000/internal/observability"
	"github.com/mcjars/www-sub000/internal/requestlog"
)

// handlerFunc is the shape of every endpoint: it returns a response or an
// error; the gate turns either into the wire format.
type handlerFunc func(r *http.Request) (*Response, error)

const organizationKeyTTL = time.Hour

// Handle wraps fn with error mapping only, for routes outside the API
// gate.
func (s *Server) Handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, r, s.execute(r, fn))
	})
}

// Gate is the API middleware: client address extraction, API-key
// authentication, rate limiting, telemetry begin/finish and response
// header merging, in that order.
func (s *Server) Gate(bucket string, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, ok := clientAddr(r)
		if !ok {
			writeResponse(w, r, JSON(http.StatusBadRequest,
				errorBody("broken request, likely invalid IP")))
			return
		}
		ctx := context.WithValue(r.Context(), ctxClientIP, ip)

		var org *models.Organization
		if auth := r.Header.Get("Authorization"); len(auth) == models.TokenLength {
			var err error
			org, err = cache.Cached(ctx, s.cache, "organization::key::"+auth, organizationKeyTTL,
				func(ctx context.Context) (*models.Organization, error) {
					found, err := s.store.OrganizationByKey(ctx, auth)
					if errors.Is(err, db.ErrNotFound) {
						return nil, nil
					}
					return found, err
				})
			if err != nil {
				writeResponse(w, r, s.internalError(r, err))
				return
			}
			if org != nil {
				ctx = context.WithValue(ctx, ctxOrganization, org)
			}
		}

		var limit *requestlog.RateLimit
		if org == nil || !org.Verified {
			checked, err := s.limiter.Check(ctx, ip, bucket, org != nil)
			if err != nil {
				s.logger.Error("rate limit check failed", "ip", ip.Unmap().String(), "error", err)
				writeResponse(w, r, JSON(http.StatusBadRequest, errorBody("bad request")))
				return
			}
			limit = &checked

			if checked.Exceeded() {
				metrics.RateLimited.WithLabelValues(bucket).Inc()
				resp := JSON(http.StatusTooManyRequests,
					errorBody("too many requests"))
				applyRateLimitHeaders(resp, checked)
				writeResponse(w, r, resp)
				return
			}
		}

		var rec *requestlog.Record
		if requestlog.Loggable(r.Method, r.URL.Path) {
			var orgID *int64
			if org != nil {
				orgID = &org.ID
			}
			rec = s.reqlog.Log(r, ip, orgID)
		}

		slot := &RequestData{}
		ctx = context.WithValue(ctx, ctxRequestData, slot)

		ctx, span := otel.Tracer("api").Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()
		r = r.WithContext(ctx)

		start := time.Now()
		resp := s.execute(r, fn)
		span.SetAttributes(attribute.Int("http.status_code", resp.Status))

		if rec != nil {
			resp.Header("X-Request-ID", rec.ID)
		}
		if limit != nil {
			applyRateLimitHeaders(resp, *limit)
		}
		if s.cfg.ServerName != "" {
			resp.Header("X-Server-Name", s.cfg.ServerName)
		}

		writeResponse(w, r, resp)

		if rec != nil {
			data, body := slot.snapshot()
			s.reqlog.Finish(rec, resp.Status, time.Since(start), data, body)
		}
	})
}

func applyRateLimitHeaders(resp *Response, limit requestlog.RateLimit) {
	resp.Header("X-RateLimit-Limit", strconv.FormatInt(limit.Limit, 10))
	resp.Header("X-RateLimit-Remaining", strconv.FormatInt(limit.Remaining(), 10))
	resp.Header("X-RateLimit-Reset", "60")
}

// execute runs fn and maps its outcome onto the error taxonomy. A display
// error renders verbatim; a missing row renders 404; anything else is
// logged, reported and rendered as an opaque 500. Panics are contained
// here so the gate always finishes its telemetry record.
func (s *Server) execute(r *http.Request, fn handlerFunc) (resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = NewError(http.StatusInternalServerError, "panic: %v", rec)
			}
			s.logger.Error("panic in handler",
				"method", r.Method, "path", r.URL.Path, "panic", rec)
			observability.CaptureError(err)
			resp = JSON(http.StatusInternalServerError, errorBody("internal server error"))
		}
	}()

	resp, err := fn(r)
	if err == nil {
		return resp
	}

	var display *Error
	if errors.As(err, &display) {
		return JSON(display.Status, errorBody(display.Message))
	}
	if errors.Is(err, db.ErrNotFound) {
		return JSON(http.StatusNotFound, errorBody("not found"))
	}
	return s.internalError(r, err)
}

func (s *Server) internalError(r *http.Request, err error) *Response {
	s.logger.Error("request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	observability.CaptureError(err)
	return JSON(http.StatusInternalServerError, errorBody("internal server error"))
}
