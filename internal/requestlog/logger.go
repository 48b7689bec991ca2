package requestlog

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcjars/www-sub000/internal/geo"
	"github.com/mcjars/www-sub000/internal/metrics"
)

const (
	drainInterval   = 5 * time.Second
	drainBatchSize  = 30
	pendingStale    = 60 * time.Second
	processingStale = 300 * time.Second
)

// Inserter commits a batch of records to the analytical store.
type Inserter interface {
	InsertRequests(ctx context.Context, records []*Record) error
}

// CounterStore bumps named counters in the relational store.
type CounterStore interface {
	IncrementCounter(ctx context.Context, name string, delta int64) error
}

// GeoResolver attaches continent/country codes to client addresses.
type GeoResolver interface {
	Lookup(ctx context.Context, ips []string) (map[string]geo.Location, error)
}

// Logger tracks requests from entry (pending) through response (processing)
// to the 5-second drain that ships them out in batches of up to 30.
type Logger struct {
	inserter Inserter
	counters CounterStore
	geo      GeoResolver
	logger   *slog.Logger

	mu         sync.Mutex
	pending    map[string]*Record
	processing []*Record
	uncounted  atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLogger wires the telemetry pipeline.
func NewLogger(inserter Inserter, counters CounterStore, resolver GeoResolver, logger *slog.Logger) *Logger {
	return &Logger{
		inserter: inserter,
		counters: counters,
		geo:      resolver,
		logger:   logger,
		pending:  make(map[string]*Record),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the drain loop.
func (l *Logger) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(drainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.process(context.Background())
			}
		}
	}()
}

// Stop halts the drain loop, then flushes whatever is already finished.
func (l *Logger) Stop() {
	close(l.stopCh)
	l.wg.Wait()
	l.process(context.Background())
}

// Log creates a record for the request and parks it in the pending stage.
// It returns nil for methods the analytical schema does not track.
func (l *Logger) Log(r *http.Request, ip netip.Addr, organizationID *int64) *Record {
	code, ok := MethodCode(r.Method)
	if !ok {
		return nil
	}

	rec := &Record{
		ID:             NewID(),
		OrganizationID: organizationID,
		Origin:         truncate(r.Header.Get("Origin"), 255),
		Method:         code,
		Path:           truncate(r.URL.RequestURI(), 255),
		IP:             ip,
		UserAgent:      truncate(r.UserAgent(), 255),
		Created:        time.Now(),
	}

	l.mu.Lock()
	l.pending[rec.ID] = rec
	l.mu.Unlock()

	l.uncounted.Add(1)
	return rec
}

// Finish promotes rec to the processing stage with its response facts. A
// record already pruned as stale is dropped silently.
func (l *Logger) Finish(rec *Record, status int, elapsed time.Duration, data, body any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[rec.ID]; !ok {
		return
	}
	delete(l.pending, rec.ID)

	rec.End = true
	rec.Status = uint16(status)
	rec.Time = elapsed.Milliseconds()
	rec.Data = data
	rec.Body = body
	l.processing = append(l.processing, rec)
}

// process is one drain tick: prune stale entries, geo-enrich a batch of up
// to 30 finished records, insert them, and flush the request counter. A
// failed insert loses the batch; these are advisory metrics and bounded
// loss beats unbounded growth.
func (l *Logger) process(ctx context.Context) {
	now := time.Now()

	l.mu.Lock()
	for id, rec := range l.pending {
		if now.Sub(rec.Created) > pendingStale {
			delete(l.pending, id)
		}
	}

	kept := l.processing[:0]
	for _, rec := range l.processing {
		if now.Sub(rec.Created) > processingStale {
			continue
		}
		kept = append(kept, rec)
	}
	l.processing = kept

	n := len(l.processing)
	if n > drainBatchSize {
		n = drainBatchSize
	}
	batch := make([]*Record, n)
	copy(batch, l.processing[:n])
	l.processing = append(l.processing[:0], l.processing[n:]...)

	pendingLen, processingLen := len(l.pending), len(l.processing)
	l.mu.Unlock()

	metrics.TelemetryQueue.WithLabelValues("pending").Set(float64(pendingLen))
	metrics.TelemetryQueue.WithLabelValues("processing").Set(float64(processingLen))

	if len(batch) > 0 {
		l.enrich(ctx, batch)
		if err := l.inserter.InsertRequests(ctx, batch); err != nil {
			l.logger.Error("request batch insert failed", "count", len(batch), "error", err)
		}
	}

	if n := l.uncounted.Swap(0); n > 0 {
		if err := l.counters.IncrementCounter(ctx, "requests", n); err != nil {
			l.logger.Error("request counter flush failed", "error", err)
			l.uncounted.Add(n)
		}
	}
}

// enrich resolves client addresses in one batch call. Failures leave the
// geo columns null.
func (l *Logger) enrich(ctx context.Context, batch []*Record) {
	ips := make([]string, 0, len(batch))
	for _, rec := range batch {
		ips = append(ips, rec.IP.Unmap().String())
	}

	locations, err := l.geo.Lookup(ctx, ips)
	if err != nil {
		l.logger.Warn("geo lookup failed", "count", len(ips), "error", err)
		return
	}

	for _, rec := range batch {
		if loc, ok := locations[rec.IP.Unmap().String()]; ok {
			continent, country := loc.ContinentCode, loc.CountryCode
			rec.ContinentCode = &continent
			rec.CountryCode = &country
		}
	}
}
