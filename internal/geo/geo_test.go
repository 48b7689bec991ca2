package geo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var queries []lookupQuery
		require.NoError(t, json.Unmarshal(body, &queries))
		require.Len(t, queries, 2, "duplicate addresses must be collapsed")
		assert.Equal(t, "continentCode,countryCode,query", queries[0].Fields)

		json.NewEncoder(w).Encode([]Location{
			{ContinentCode: "EU", CountryCode: "DE", Query: "89.0.1.2"},
			{Query: "10.0.0.1"}, // private range, no codes
		})
	}))
	defer srv.Close()

	c := New()
	c.url = srv.URL

	got, err := c.Lookup(context.Background(), []string{"89.0.1.2", "10.0.0.1", "89.0.1.2"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "EU", got["89.0.1.2"].ContinentCode)
	assert.Equal(t, "DE", got["89.0.1.2"].CountryCode)

	_, resolved := got["10.0.0.1"]
	assert.False(t, resolved)
}

func TestLookupEmpty(t *testing.T) {
	c := New()
	got, err := c.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLookupThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Location{})
	}))
	defer srv.Close()

	c := New()
	c.url = srv.URL
	c.limiter = rate.NewLimiter(rate.Every(time.Minute), 1)

	_, err := c.Lookup(context.Background(), []string{"89.0.1.2"})
	require.NoError(t, err)

	_, err = c.Lookup(context.Background(), []string{"89.0.1.2"})
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestLookupUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New()
	c.url = srv.URL

	_, err := c.Lookup(context.Background(), []string{"89.0.1.2"})
	assert.ErrorContains(t, err, "unexpected status 429")
}
