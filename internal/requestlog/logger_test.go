package requestlog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcjars/www-sub000/internal/geo"
)

type captureInserter struct {
	batches [][]*Record
	err     error
}

func (c *captureInserter) InsertRequests(_ context.Context, records []*Record) error {
	if c.err != nil {
		return c.err
	}
	c.batches = append(c.batches, records)
	return nil
}

type captureCounters struct {
	deltas []int64
	err    error
}

func (c *captureCounters) IncrementCounter(_ context.Context, _ string, delta int64) error {
	c.deltas = append(c.deltas, delta)
	return c.err
}

type staticGeo struct {
	locations map[string]geo.Location
}

func (g staticGeo) Lookup(_ context.Context, _ []string) (map[string]geo.Location, error) {
	return g.locations, nil
}

func newTestLogger(resolver GeoResolver) (*Logger, *captureInserter, *captureCounters) {
	ins := &captureInserter{}
	ctr := &captureCounters{}
	if resolver == nil {
		resolver = staticGeo{}
	}
	return NewLogger(ins, ctr, resolver, slog.New(slog.DiscardHandler)), ins, ctr
}

func logRequest(l *Logger) *Record {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/types", nil)
	return l.Log(r, netip.MustParseAddr("203.0.113.7"), nil)
}

func TestProcessCapsBatch(t *testing.T) {
	l, ins, ctr := newTestLogger(nil)
	ctx := context.Background()

	for i := 0; i < 35; i++ {
		rec := logRequest(l)
		require.NotNil(t, rec)
		l.Finish(rec, http.StatusOK, time.Millisecond, nil, nil)
	}

	l.process(ctx)
	require.Len(t, ins.batches, 1)
	assert.Len(t, ins.batches[0], 30)

	l.process(ctx)
	require.Len(t, ins.batches, 2)
	assert.Len(t, ins.batches[1], 5)

	// All 35 logged requests land in one counter flush on the first tick.
	assert.Equal(t, []int64{35}, ctr.deltas)
}

func TestPendingPrunedWhenNeverFinished(t *testing.T) {
	l, ins, _ := newTestLogger(nil)
	ctx := context.Background()

	rec := logRequest(l)
	rec.Created = time.Now().Add(-pendingStale - time.Second)

	l.process(ctx)
	assert.Empty(t, l.pending)

	// A late Finish on the pruned record is dropped, not resurrected.
	l.Finish(rec, http.StatusOK, time.Millisecond, nil, nil)
	l.process(ctx)
	assert.Empty(t, ins.batches)
}

func TestProcessingPrunedWhenStale(t *testing.T) {
	l, ins, _ := newTestLogger(nil)
	ctx := context.Background()

	rec := logRequest(l)
	l.Finish(rec, http.StatusOK, time.Millisecond, nil, nil)
	rec.Created = time.Now().Add(-processingStale - time.Second)

	l.process(ctx)
	assert.Empty(t, ins.batches)
	assert.Empty(t, l.processing)
}

func TestCounterReaddedOnFlushFailure(t *testing.T) {
	l, _, ctr := newTestLogger(nil)
	ctx := context.Background()

	logRequest(l)
	logRequest(l)

	ctr.err = errors.New("postgres down")
	l.process(ctx)

	ctr.err = nil
	l.process(ctx)

	// The failed flush re-adds its delta, so the next tick retries it whole.
	assert.Equal(t, []int64{2, 2}, ctr.deltas)
}

func TestProcessEnrichesRecords(t *testing.T) {
	resolver := staticGeo{locations: map[string]geo.Location{
		"203.0.113.7": {ContinentCode: "NA", CountryCode: "US", Query: "203.0.113.7"},
	}}
	l, ins, _ := newTestLogger(resolver)
	ctx := context.Background()

	rec := logRequest(l)
	l.Finish(rec, http.StatusOK, time.Millisecond, nil, nil)

	l.process(ctx)
	require.Len(t, ins.batches, 1)
	require.Len(t, ins.batches[0], 1)

	got := ins.batches[0][0]
	require.NotNil(t, got.ContinentCode)
	assert.Equal(t, "NA", *got.ContinentCode)
	require.NotNil(t, got.CountryCode)
	assert.Equal(t, "US", *got.CountryCode)
}

func TestStopFlushesFinishedRecords(t *testing.T) {
	l, ins, _ := newTestLogger(nil)

	rec := logRequest(l)
	l.Finish(rec, http.StatusNotFound, 2*time.Millisecond, nil, nil)

	l.Start()
	l.Stop()

	require.Len(t, ins.batches, 1)
	assert.Equal(t, uint16(http.StatusNotFound), ins.batches[0][0].Status)
}

func TestLogSkipsUntrackedMethods(t *testing.T) {
	l, _, _ := newTestLogger(nil)

	r := httptest.NewRequest(http.MethodTrace, "/api/v1/types", nil)
	assert.Nil(t, l.Log(r, netip.MustParseAddr("203.0.113.7"), nil))
	assert.Empty(t, l.pending)
}
