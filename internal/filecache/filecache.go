// Package filecache serves artifact bytes from a bounded local directory
// fronting a slow storage source. Cold reads stream to the caller while the
// bytes are written to disk in parallel; warm reads come straight off disk.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcjars/www-sub000/internal/metrics"
	"github.com/mcjars/www-sub000/internal/storage"
)

const (
	chunkSize       = 32 * 1024
	processInterval = 30 * time.Second
	idleExpiry      = 24 * time.Hour
)

// ErrOutOfSpace is returned when eviction cannot make room for a new entry.
var ErrOutOfSpace = errors.New("out of cache space")

// errRetry signals that another admission won the race for the same path.
var errRetry = errors.New("filecache: retry")

// AccessStore persists entry access times. Updates are monotonic: a write
// only lands if the stored value is older or null.
type AccessStore interface {
	TouchFile(ctx context.Context, path []string, at time.Time) error
}

// entry tracks one admitted file. The mutex guards last access bookkeeping
// and doubles as the materialization pin: the producer holds it until the
// local file is complete, so warm readers and eviction wait it out.
type entry struct {
	mu                sync.Mutex
	localID           int64
	size              int64
	lastAccess        time.Time
	lastAccessWritten bool
	removed           bool
	err               error
}

// FileCache is the bounded on-disk artifact cache.
type FileCache struct {
	dir     string
	maxSize int64
	source  storage.Source
	store   AccessStore
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	nextLocalID atomic.Int64
	totalSize   atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New purges and recreates dir, then returns a cache bounded to maxSize
// bytes. Cached bytes never survive a restart.
func New(dir string, maxSize int64, source storage.Source, store AccessStore, logger *slog.Logger) (*FileCache, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("purge cache dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &FileCache{
		dir:     dir,
		maxSize: maxSize,
		source:  source,
		store:   store,
		logger:  logger,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches the maintenance loop.
func (c *FileCache) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(processInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.process(context.Background())
			}
		}
	}()
}

// Stop terminates the maintenance loop and waits for it to exit.
func (c *FileCache) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Stats reports the number of resident entries and their total bytes.
func (c *FileCache) Stats() (int, int64) {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return n, c.totalSize.Load()
}

// Get returns a stream of the artifact at path plus its size. Warm entries
// are served from disk; cold ones are admitted and streamed while the
// download proceeds. A reader arriving during materialization blocks until
// the entry is complete.
func (c *FileCache) Get(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	for {
		c.mu.RLock()
		e := c.entries[path]
		c.mu.RUnlock()

		if e == nil {
			rc, size, err := c.admit(ctx, path)
			if errors.Is(err, errRetry) {
				continue
			}
			return rc, size, err
		}

		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		e.lastAccess = time.Now()
		e.lastAccessWritten = false
		f, err := os.Open(c.entryPath(e.localID))
		size := e.size
		e.mu.Unlock()

		if err != nil {
			// The file vanished underneath us; drop the entry and retry.
			c.removeEntry(path, e, true)
			continue
		}
		metrics.FileCacheOperations.WithLabelValues("hit").Inc()
		return f, size, nil
	}
}

// admit opens the source, makes room and spawns the producer/relay pair.
// The returned stream is the read end of an in-process pipe that fills as
// the local copy is written.
func (c *FileCache) admit(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	// Decouple the download from the requester: a client disconnect must
	// not leave the cache without the bytes it already paid for.
	src, size, err := c.source.Open(context.WithoutCancel(ctx), path)
	if err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	if _, exists := c.entries[path]; exists {
		c.mu.Unlock()
		src.Close()
		return nil, 0, errRetry
	}
	if err := c.makeRoom(size); err != nil {
		c.mu.Unlock()
		src.Close()
		return nil, 0, err
	}

	e := &entry{
		localID:    c.nextLocalID.Add(1),
		size:       size,
		lastAccess: time.Now(),
	}
	e.mu.Lock() // pin until materialized
	c.entries[path] = e
	c.mu.Unlock()

	metrics.FileCacheOperations.WithLabelValues("miss").Inc()

	pr, pw := io.Pipe()
	progress := make(chan struct{}, 1)
	done := make(chan struct{})

	go c.produce(path, e, src, progress, done)
	go c.relay(e, pw, progress, done)

	return pr, size, nil
}

// produce copies the source into the local file, signalling the relay after
// every chunk. On success it commits the entry size; on failure it removes
// the entry and the partial file so a retry starts clean.
func (c *FileCache) produce(path string, e *entry, src io.ReadCloser, progress chan<- struct{}, done chan struct{}) {
	defer src.Close()

	err := c.writeLocal(e.localID, src, progress)
	if err != nil {
		e.err = err
		e.removed = true
	} else {
		c.totalSize.Add(e.size)
		c.updateGauges()
	}
	e.mu.Unlock()
	close(done)

	if err != nil {
		c.logger.Error("artifact download failed", "path", path, "error", err)
		c.removeEntry(path, e, false)
	}
}

func (c *FileCache) writeLocal(localID int64, src io.Reader, progress chan<- struct{}) error {
	f, err := os.Create(c.entryPath(localID))
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}

	buf := make([]byte, chunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				return fmt.Errorf("write cache file: %w", werr)
			}
			select {
			case progress <- struct{}{}:
			default:
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			f.Close()
			return fmt.Errorf("read source: %w", rerr)
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync cache file: %w", err)
	}
	return f.Close()
}

// relay feeds the consumer from the growing local file, waiting on producer
// signals so it never reads past the writer.
func (c *FileCache) relay(e *entry, pw *io.PipeWriter, progress <-chan struct{}, done <-chan struct{}) {
	select {
	case <-progress:
	case <-done:
		if e.err != nil {
			pw.CloseWithError(e.err)
			return
		}
	}

	f, err := os.Open(c.entryPath(e.localID))
	if err != nil {
		pw.CloseWithError(err)
		return
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	finished := false
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := pw.Write(buf[:n]); werr != nil {
				// Consumer went away; the producer still completes.
				return
			}
		}
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			pw.CloseWithError(rerr)
			return
		}
		if errors.Is(rerr, io.EOF) {
			if finished {
				pw.Close()
				return
			}
			select {
			case <-progress:
			case <-done:
				finished = true
				if e.err != nil {
					pw.CloseWithError(e.err)
					return
				}
			}
		}
	}
}

// makeRoom evicts least-recently-used entries until size fits. Entries
// whose lock is held (producers mid-download, readers mid-update) are
// pinned. Callers must hold the entries write lock.
func (c *FileCache) makeRoom(size int64) error {
	if c.totalSize.Load()+size <= c.maxSize {
		return nil
	}

	type victim struct {
		path       string
		e          *entry
		lastAccess time.Time
		size       int64
	}
	var victims []victim
	for path, e := range c.entries {
		if e.mu.TryLock() {
			victims = append(victims, victim{path, e, e.lastAccess, e.size})
			e.mu.Unlock()
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].lastAccess.Before(victims[j].lastAccess)
	})

	target := c.totalSize.Load() + size - c.maxSize
	var freed int64
	for _, v := range victims {
		if freed >= target {
			break
		}
		delete(c.entries, v.path)
		v.e.mu.Lock()
		v.e.removed = true
		v.e.mu.Unlock()
		os.Remove(c.entryPath(v.e.localID))
		c.totalSize.Add(-v.size)
		freed += v.size
	}
	// Caller holds the write lock, so read the map size directly.
	metrics.FileCacheEntries.Set(float64(len(c.entries)))
	metrics.FileCacheSize.Set(float64(c.totalSize.Load()))

	if freed < target {
		return fmt.Errorf("%w: need %d bytes", ErrOutOfSpace, size)
	}
	return nil
}

// process flushes dirty access times to the relational store and drops
// entries idle for longer than 24 hours.
func (c *FileCache) process(ctx context.Context) {
	c.mu.RLock()
	snapshot := make(map[string]*entry, len(c.entries))
	for path, e := range c.entries {
		snapshot[path] = e
	}
	c.mu.RUnlock()

	cutoff := time.Now().Add(-idleExpiry)
	for path, e := range snapshot {
		e.mu.Lock()
		lastAccess := e.lastAccess
		dirty := !e.lastAccessWritten
		removed := e.removed
		e.mu.Unlock()
		if removed {
			continue
		}

		if dirty {
			if err := c.store.TouchFile(ctx, strings.Split(path, "/"), lastAccess); err != nil {
				c.logger.Error("flush file access time failed", "path", path, "error", err)
			} else {
				e.mu.Lock()
				if e.lastAccess.Equal(lastAccess) {
					e.lastAccessWritten = true
				}
				e.mu.Unlock()
			}
		}

		if lastAccess.Before(cutoff) {
			c.removeEntry(path, e, true)
		}
	}
	c.updateGauges()
}

// removeEntry drops e from the map if it is still the holder of path, then
// deletes its file. subtract is false when the entry never committed its
// size.
func (c *FileCache) removeEntry(path string, e *entry, subtract bool) {
	c.mu.Lock()
	deleted := false
	if cur, ok := c.entries[path]; ok && cur == e {
		delete(c.entries, path)
		deleted = true
	}
	c.mu.Unlock()
	if !deleted {
		return
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()

	os.Remove(c.entryPath(e.localID))
	if subtract {
		c.totalSize.Add(-e.size)
	}
	c.updateGauges()
}

func (c *FileCache) entryPath(localID int64) string {
	return filepath.Join(c.dir, strconv.FormatInt(localID, 10))
}

func (c *FileCache) updateGauges() {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	metrics.FileCacheEntries.Set(float64(n))
	metrics.FileCacheSize.Set(float64(c.totalSize.Load()))
}
