package api

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcjars/www-sub000/internal/storage"
)

func filesRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/files/"+path, nil)
	req.SetPathValue("path", path)
	return req
}

func TestChecksumsRecord(t *testing.T) {
	content := []byte("jar bytes for hashing")
	srv, _ := newTestServer(t, &stubStore{})
	srv.artifacts = &stubArtifacts{files: map[string][]byte{"paper/a.jar": content}}

	resp, err := srv.handleFiles(filesRequest("paper/a.jar.CHECKSUMS.txt"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	body := string(resp.Body)
	assert.Len(t, body, checksumsLength)
	assert.Equal(t, "text/plain", resp.Headers.Get("Content-Type"))

	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	require.Len(t, lines, 6)

	md5sum := md5.Sum(content)
	assert.Equal(t, fmt.Sprintf("md5 %s", hex.EncodeToString(md5sum[:])), lines[0])
	sha := sha256.Sum256(content)
	assert.Equal(t, fmt.Sprintf("sha256 %s", hex.EncodeToString(sha[:])), lines[3])
}

func TestChecksumsMissingArtifact(t *testing.T) {
	srv, _ := newTestServer(t, &stubStore{})
	srv.artifacts = &stubArtifacts{files: map[string][]byte{}}

	_, err := srv.handleFiles(filesRequest("gone.jar.CHECKSUMS.txt"))
	var display *Error
	require.ErrorAs(t, err, &display)
	assert.Equal(t, http.StatusNotFound, display.Status)
}

func TestDownloadContentType(t *testing.T) {
	assert.Equal(t, "application/java-archive", downloadContentType("paper/1.21/a.jar"))
	assert.Equal(t, "application/zip", downloadContentType("forge/pack.zip"))
	assert.Equal(t, "application/octet-stream", downloadContentType("notes.txt"))
}

func TestHandleFilesFallsBackToIndex(t *testing.T) {
	srv, _ := newTestServer(t, &stubStore{})
	srv.artifacts = &stubArtifacts{files: map[string][]byte{}}

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "paper"), 0o755))
	srv.source = storage.NewDir(dir)

	resp, err := srv.handleFiles(filesRequest("paper"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body), `"/paper"`)
}
