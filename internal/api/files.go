package api

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mcjars/www-sub000/internal/db"
	"github.com/mcjars/www-sub000/internal/storage"
)

const (
	checksumsSuffix = ".CHECKSUMS.txt"
	// Fixed record size: six labeled hex digests, one per line.
	checksumsLength = 459

	downloadCacheControl = "public, max-age=604800"
)

// handleFiles serves artifact downloads through the file cache. Checksum
// sibling paths render a fixed-size digest record; paths naming a
// directory fall back to the index listing.
func (s *Server) handleFiles(r *http.Request) (*Response, error) {
	path, err := storage.Clean(r.PathValue("path"))
	if err != nil {
		return nil, NotFound("file not found")
	}

	if strings.HasSuffix(path, checksumsSuffix) {
		return s.handleChecksums(r, strings.TrimSuffix(path, checksumsSuffix))
	}

	stream, size, err := s.artifacts.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.handleIndex(r)
		}
		return nil, err
	}

	resp := &Response{Status: http.StatusOK, Stream: stream}
	resp.Header("Content-Type", downloadContentType(path))
	resp.Header("Content-Length", strconv.FormatInt(size, 10))
	resp.Header("Cache-Control", downloadCacheControl)

	if etag, err := s.store.JarHash(r.Context(), path); err == nil {
		resp.Header("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			stream.Close()
			resp.Stream = nil
			resp.Status = http.StatusNotModified
			resp.Headers.Del("Content-Length")
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		s.logger.Warn("etag lookup failed", "path", path, "error", err)
	}
	return resp, nil
}

// handleChecksums serves the digest record of the artifact at path.
func (s *Server) handleChecksums(r *http.Request, path string) (*Response, error) {
	resp := &Response{Status: http.StatusOK}
	resp.Header("Content-Type", "text/plain")
	resp.Header("Cache-Control", downloadCacheControl)

	stream, _, err := s.artifacts.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NotFound("file not found")
		}
		return nil, err
	}
	defer stream.Close()

	digests := []struct {
		label string
		hash  hash.Hash
	}{
		{"md5", md5.New()},
		{"sha1", sha1.New()},
		{"sha224", sha256.New224()},
		{"sha256", sha256.New()},
		{"sha384", sha512.New384()},
		{"sha512", sha512.New()},
	}
	writers := make([]io.Writer, len(digests))
	for i := range digests {
		writers[i] = digests[i].hash
	}
	if _, err := io.Copy(io.MultiWriter(writers...), stream); err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}

	var b strings.Builder
	for _, d := range digests {
		fmt.Fprintf(&b, "%s %s\n", d.label, hex.EncodeToString(d.hash.Sum(nil)))
	}
	resp.Body = []byte(b.String())
	if len(resp.Body) != checksumsLength {
		return nil, fmt.Errorf("checksum record for %s is %d bytes", path, len(resp.Body))
	}
	return resp, nil
}

// handleIndex lists a directory of the artifact tree.
func (s *Server) handleIndex(r *http.Request) (*Response, error) {
	path, err := storage.Clean(r.PathValue("path"))
	if err != nil {
		return nil, NotFound("not found")
	}

	entries, err := s.source.List(r.Context(), path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NotFound("not found")
		}
		return nil, err
	}
	return JSON(http.StatusOK, map[string]any{
		"success": true,
		"path":    "/" + path,
		"files":   entries,
	}), nil
}

func downloadContentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".jar"):
		return "application/java-archive"
	case strings.HasSuffix(path, ".zip"):
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
