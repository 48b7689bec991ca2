package api

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteResponseDerivesETag(t *testing.T) {
	resp := JSON(http.StatusOK, map[string]any{"success": true})
	rec := httptest.NewRecorder()
	writeResponse(rec, httptest.NewRequest(http.MethodGet, "/api/v2/types", nil), resp)

	sum := sha256.Sum256(resp.Body)
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.Header().Get("ETag"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(resp.Body), rec.Body.String())
}

func TestWriteResponseNotModified(t *testing.T) {
	first := JSON(http.StatusOK, map[string]any{"success": true})
	rec := httptest.NewRecorder()
	writeResponse(rec, httptest.NewRequest(http.MethodGet, "/api/v2/types", nil), first)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/types", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	writeResponse(rec, req, JSON(http.StatusOK, map[string]any{"success": true}))

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, etag, rec.Header().Get("ETag"))
}

func TestWriteResponseCoercesTextErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeResponse(rec, httptest.NewRequest(http.MethodGet, "/api/v1/types", nil),
		Text(http.StatusBadRequest, "broken request"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var envelope struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	assert.Equal(t, []string{"broken request"}, envelope.Errors)
}

func TestWriteResponseLeaves404Text(t *testing.T) {
	rec := httptest.NewRecorder()
	writeResponse(rec, httptest.NewRequest(http.MethodGet, "/files/missing", nil),
		Text(http.StatusNotFound, "file not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "file not found", rec.Body.String())
}

func TestWriteResponseHeadSuppressesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeResponse(rec, httptest.NewRequest(http.MethodHead, "/api/v2/types", nil),
		JSON(http.StatusOK, map[string]any{"success": true}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Length"))
}

func TestWriteResponseStream(t *testing.T) {
	stream := io.NopCloser(strings.NewReader("artifact bytes"))
	resp := &Response{Status: http.StatusOK, Stream: stream}
	resp.Header("Content-Type", "application/java-archive")

	rec := httptest.NewRecorder()
	writeResponse(rec, httptest.NewRequest(http.MethodGet, "/files/a.jar", nil), resp)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "artifact bytes", rec.Body.String())
	// Streams never get a derived ETag.
	assert.Empty(t, rec.Header().Get("ETag"))
}

func TestErrorHelpers(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, BadRequest("nope").Status)
	assert.Equal(t, http.StatusNotFound, NotFound("missing %q", "x").Status)
	assert.Equal(t, `missing "x"`, NotFound("missing %q", "x").Message)
	assert.Equal(t, http.StatusRequestEntityTooLarge, TooLarge("big").Status)
}
