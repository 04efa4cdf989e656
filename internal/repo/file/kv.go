// Package file stores each key as a JSON file in one directory, the on-disk
// analogue of a browser's local storage.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const ext = ".json"

type KV struct {
	dir string
	mu  sync.Mutex
}

// New creates dir if needed.
func New(dir string) (*KV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create %s: %w", dir, err)
	}
	return &KV{dir: dir}, nil
}

func (r *KV) path(key string) string {
	return filepath.Join(r.dir, url.PathEscape(key)+ext)
}

func (r *KV) Get(_ context.Context, key string) (string, bool, error) {
	b, err := os.ReadFile(r.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("file: read %q: %w", key, err)
	}
	return string(b), true, nil
}

// Set writes through a temporary file and renames it into place so readers
// never observe a partial value.
func (r *KV) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(r.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), r.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	return nil
}

func (r *KV) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(r.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file: delete %q: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys.
func (r *KV) Keys(context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("file: list %s: %w", r.dir, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		k, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}
