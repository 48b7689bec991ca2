// Package storage abstracts where build artifacts live: a local directory
// or an S3-compatible bucket. The file cache streams everything it serves
// out of a Source.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound marks paths with no artifact behind them.
var ErrNotFound = errors.New("storage: not found")

// Entry is a single directory listing item.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
	Dir  bool   `json:"directory"`
}

// Source is a read-only view of the artifact tree.
type Source interface {
	// Open returns the artifact at path together with its size.
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
	// List returns the immediate children of dir, directories first.
	List(ctx context.Context, dir string) ([]Entry, error)
}

// Clean normalizes a request path into a source-relative one. It rejects
// traversal outside the tree.
func Clean(path string) (string, error) {
	cleaned := filepath.ToSlash(filepath.Clean("/" + path))
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// DirSource serves artifacts from a directory on local disk.
type DirSource struct {
	root string
}

// NewDir builds a DirSource rooted at root.
func NewDir(root string) *DirSource {
	return &DirSource{root: root}
}

// Open implements Source.
func (d *DirSource) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	rel, err := Clean(path)
	if err != nil {
		return nil, 0, err
	}

	full := filepath.Join(d.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	return f, info.Size(), nil
}

// List implements Source.
func (d *DirSource) List(ctx context.Context, dir string) ([]Entry, error) {
	rel, err := Clean(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(d.root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		entry := Entry{Name: e.Name(), Dir: e.IsDir()}
		if !e.IsDir() {
			if info, err := e.Info(); err == nil {
				entry.Size = info.Size()
			}
		}
		out = append(out, entry)
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Dir != entries[j].Dir {
			return entries[i].Dir
		}
		return entries[i].Name < entries[j].Name
	})
}
