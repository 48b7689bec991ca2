package filecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcjars/www-sub000/internal/storage"
)

type fakeSource struct {
	mu    sync.Mutex
	files map[string]func() (io.ReadCloser, int64, error)
	opens map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		files: make(map[string]func() (io.ReadCloser, int64, error)),
		opens: make(map[string]int),
	}
}

func (s *fakeSource) add(path string, data []byte) {
	s.files[path] = func() (io.ReadCloser, int64, error) {
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	}
}

func (s *fakeSource) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	s.opens[path]++
	open := s.files[path]
	s.mu.Unlock()
	if open == nil {
		return nil, 0, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	return open()
}

func (s *fakeSource) List(ctx context.Context, dir string) ([]storage.Entry, error) {
	return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, dir)
}

func (s *fakeSource) openCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[path]
}

// gatedReader yields first immediately, then blocks until gate closes
// before yielding rest.
type gatedReader struct {
	first []byte
	rest  []byte
	gate  <-chan struct{}
	stage int
}

func (g *gatedReader) Read(p []byte) (int, error) {
	switch g.stage {
	case 0:
		g.stage = 1
		return copy(p, g.first), nil
	case 1:
		<-g.gate
		g.stage = 2
		return copy(p, g.rest), nil
	default:
		return 0, io.EOF
	}
}

func (g *gatedReader) Close() error { return nil }

// failingReader yields first, then fails.
type failingReader struct {
	first []byte
	err   error
	stage int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.stage == 0 {
		f.stage = 1
		return copy(p, f.first), nil
	}
	return 0, f.err
}

func (f *failingReader) Close() error { return nil }

type touch struct {
	path []string
	at   time.Time
}

type fakeStore struct {
	mu      sync.Mutex
	fail    bool
	touches []touch
}

func (s *fakeStore) TouchFile(ctx context.Context, path []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.touches = append(s.touches, touch{path: path, at: at})
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.touches)
}

func newTestCache(t *testing.T, maxSize int64, src storage.Source) (*FileCache, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(filepath.Join(t.TempDir(), "cache"), maxSize, src, store, logger)
	require.NoError(t, err)
	return c, store
}

func waitCommitted(t *testing.T, c *FileCache, want int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, size := c.Stats()
		return size == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartupPurge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "17"), []byte("stale"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(dir, 1<<20, newFakeSource(), &fakeStore{}, logger)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetStreamsWhileDownloading(t *testing.T) {
	src := newFakeSource()
	gate := make(chan struct{})
	src.files["paper/1.21.4/server.jar"] = func() (io.ReadCloser, int64, error) {
		return &gatedReader{first: []byte("hello"), rest: []byte(" world"), gate: gate}, 11, nil
	}

	c, _ := newTestCache(t, 1<<20, src)

	rc, size, err := c.Get(context.Background(), "paper/1.21.4/server.jar")
	require.NoError(t, err)
	defer rc.Close()
	assert.EqualValues(t, 11, size)

	// First bytes arrive while the source is still blocked.
	head := make([]byte, 5)
	_, err = io.ReadFull(rc, head)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(head))

	close(gate)
	rest, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, " world", string(rest))

	waitCommitted(t, c, 11)
}

func TestGetHitSkipsSource(t *testing.T) {
	src := newFakeSource()
	src.add("paper/1.21.4/server.jar", []byte("jar data"))
	c, _ := newTestCache(t, 1<<20, src)

	rc, _, err := c.Get(context.Background(), "paper/1.21.4/server.jar")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "jar data", string(body))
	waitCommitted(t, c, 8)

	rc, size, err := c.Get(context.Background(), "paper/1.21.4/server.jar")
	require.NoError(t, err)
	body, err = io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "jar data", string(body))
	assert.EqualValues(t, 8, size)
	assert.Equal(t, 1, src.openCount("paper/1.21.4/server.jar"))
}

func TestGetMissingPath(t *testing.T) {
	c, _ := newTestCache(t, 1<<20, newFakeSource())

	_, _, err := c.Get(context.Background(), "paper/0.0.0/server.jar")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSecondReaderWaitsForFullContent(t *testing.T) {
	src := newFakeSource()
	gate := make(chan struct{})
	src.files["velocity/3.4.0/proxy.jar"] = func() (io.ReadCloser, int64, error) {
		return &gatedReader{first: []byte("abc"), rest: []byte("defgh"), gate: gate}, 8, nil
	}

	c, _ := newTestCache(t, 1<<20, src)
	ctx := context.Background()

	rc1, _, err := c.Get(ctx, "velocity/3.4.0/proxy.jar")
	require.NoError(t, err)
	defer rc1.Close()

	type result struct {
		body []byte
		err  error
	}
	results := make(chan result, 1)
	go func() {
		rc2, _, err := c.Get(ctx, "velocity/3.4.0/proxy.jar")
		if err != nil {
			results <- result{err: err}
			return
		}
		defer rc2.Close()
		body, err := io.ReadAll(rc2)
		results <- result{body: body, err: err}
	}()

	close(gate)
	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, "abcdefgh", string(res.body))
	assert.Equal(t, 1, src.openCount("velocity/3.4.0/proxy.jar"))
}

func TestEvictionLRU(t *testing.T) {
	src := newFakeSource()
	src.add("a.jar", []byte("aaaaaa"))
	src.add("b.jar", []byte("bbbbbb"))
	c, _ := newTestCache(t, 10, src)
	ctx := context.Background()

	rc, _, err := c.Get(ctx, "a.jar")
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, rc)
	require.NoError(t, err)
	rc.Close()
	waitCommitted(t, c, 6)

	// Admitting b (6 bytes) exceeds the 10-byte bound, so a is evicted.
	rc, _, err = c.Get(ctx, "b.jar")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "bbbbbb", string(body))
	waitCommitted(t, c, 6)

	entries, _ := c.Stats()
	assert.Equal(t, 1, entries)

	rc, _, err = c.Get(ctx, "a.jar")
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, 2, src.openCount("a.jar"))
}

func TestOversizedRequestFails(t *testing.T) {
	src := newFakeSource()
	src.add("huge.jar", bytes.Repeat([]byte("x"), 64))
	c, _ := newTestCache(t, 10, src)

	_, _, err := c.Get(context.Background(), "huge.jar")
	assert.ErrorIs(t, err, ErrOutOfSpace)

	entries, size := c.Stats()
	assert.Zero(t, entries)
	assert.Zero(t, size)
}

func TestBusyEntriesArePinned(t *testing.T) {
	src := newFakeSource()
	src.add("a.jar", []byte("aaaaaa"))
	src.add("b.jar", []byte("bbbbbb"))
	c, _ := newTestCache(t, 10, src)
	ctx := context.Background()

	rc, _, err := c.Get(ctx, "a.jar")
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, rc)
	require.NoError(t, err)
	rc.Close()
	waitCommitted(t, c, 6)

	// Hold a's entry lock so eviction cannot claim it.
	c.mu.RLock()
	a := c.entries["a.jar"]
	c.mu.RUnlock()
	require.NotNil(t, a)
	a.mu.Lock()
	defer a.mu.Unlock()

	_, _, err = c.Get(ctx, "b.jar")
	assert.ErrorIs(t, err, ErrOutOfSpace)
}

func TestProducerFailureRemovesEntry(t *testing.T) {
	src := newFakeSource()
	src.files["broken.jar"] = func() (io.ReadCloser, int64, error) {
		return &failingReader{first: []byte("abc"), err: errors.New("connection reset")}, 100, nil
	}
	src.add("fixed.jar", []byte("ok"))

	c, _ := newTestCache(t, 1<<20, src)
	ctx := context.Background()

	rc, _, err := c.Get(ctx, "broken.jar")
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	rc.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	require.Eventually(t, func() bool {
		entries, size := c.Stats()
		return entries == 0 && size == 0
	}, 2*time.Second, 5*time.Millisecond)

	files, err := os.ReadDir(c.dir)
	require.NoError(t, err)
	assert.Empty(t, files, "partial file must not linger")

	// A retry goes back to the source.
	_, _, err = c.Get(ctx, "broken.jar")
	require.NoError(t, err)
	assert.Equal(t, 2, src.openCount("broken.jar"))
}

func TestEmptyFile(t *testing.T) {
	src := newFakeSource()
	src.add("empty.txt", nil)
	c, _ := newTestCache(t, 1<<20, src)

	rc, size, err := c.Get(context.Background(), "empty.txt")
	require.NoError(t, err)
	defer rc.Close()
	assert.Zero(t, size)

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, body)

	require.Eventually(t, func() bool {
		entries, _ := c.Stats()
		return entries == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestProcessFlushesAccessTimes(t *testing.T) {
	src := newFakeSource()
	src.add("paper/1.21.4/server.jar", []byte("jar"))
	c, store := newTestCache(t, 1<<20, src)
	ctx := context.Background()

	rc, _, err := c.Get(ctx, "paper/1.21.4/server.jar")
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, rc)
	require.NoError(t, err)
	rc.Close()
	waitCommitted(t, c, 3)

	c.process(ctx)
	require.Equal(t, 1, store.count())
	assert.Equal(t, []string{"paper", "1.21.4", "server.jar"}, store.touches[0].path)

	// Clean entries are not re-flushed.
	c.process(ctx)
	assert.Equal(t, 1, store.count())

	// A fresh read dirties the access time again.
	rc, _, err = c.Get(ctx, "paper/1.21.4/server.jar")
	require.NoError(t, err)
	rc.Close()
	c.process(ctx)
	assert.Equal(t, 2, store.count())
}

func TestProcessRetriesFailedFlush(t *testing.T) {
	src := newFakeSource()
	src.add("a.jar", []byte("jar"))
	c, store := newTestCache(t, 1<<20, src)
	ctx := context.Background()

	rc, _, err := c.Get(ctx, "a.jar")
	require.NoError(t, err)
	rc.Close()
	waitCommitted(t, c, 3)

	store.fail = true
	c.process(ctx)
	assert.Equal(t, 0, store.count())

	store.fail = false
	c.process(ctx)
	assert.Equal(t, 1, store.count())
}

func TestProcessPurgesIdleEntries(t *testing.T) {
	src := newFakeSource()
	src.add("old.jar", []byte("old bytes"))
	c, _ := newTestCache(t, 1<<20, src)
	ctx := context.Background()

	rc, _, err := c.Get(ctx, "old.jar")
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, rc)
	require.NoError(t, err)
	rc.Close()
	waitCommitted(t, c, 9)

	c.mu.RLock()
	e := c.entries["old.jar"]
	c.mu.RUnlock()
	require.NotNil(t, e)
	e.mu.Lock()
	e.lastAccess = time.Now().Add(-25 * time.Hour)
	e.mu.Unlock()

	c.process(ctx)

	entries, size := c.Stats()
	assert.Zero(t, entries)
	assert.Zero(t, size)

	files, err := os.ReadDir(c.dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}
