// Package cas implements the local content-addressable build cache.
//
// Entries live under <state>/cache/v1/<aa>/<hex>, where <hex> is the cache key.
// Each file holds an encoded cache entry whose origin key is checked on read.
package cas

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.trai.ch/memo/internal/adapters/lock"
	"go.trai.ch/memo/internal/core/codec"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/fsutil"
	"go.trai.ch/zerr"
)

// DefaultMaxAge is how long an unused entry survives Cleanup.
const DefaultMaxAge = 7 * 24 * time.Hour

// tempMaxAge is how old a leftover temporary file must be before Cleanup removes it.
const tempMaxAge = time.Hour

// Store implements ports.LocalCache on the file system.
type Store struct {
	dir  string
	lock *lock.Dir
	now  func() time.Time
}

// NewStore creates a cache rooted at the cache directory of stateDir.
func NewStore(stateDir string, lockTimeout time.Duration) *Store {
	dir := domain.CachePath(stateDir)
	return &Store{
		dir:  dir,
		lock: lock.New(dir, lockTimeout),
		now:  time.Now,
	}
}

// Dir returns the root directory of the cache.
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the entry stored under key and marks it as recently used.
func (s *Store) Get(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.entryPath(key)
	var data []byte
	err := s.lock.Do(ctx, func() error {
		var readErr error
		//nolint:gosec // Path is constructed from the cache directory and a hex key
		data, readErr = os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		now := s.now()
		_ = os.Chtimes(path, now, now)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheMiss, "no local cache entry"), "key", key.String())
	}
	if err != nil {
		return nil, s.wrap(err, "failed to read cache entry", path)
	}

	entry, err := codec.DecodeCacheEntryFor(key, data)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return entry, nil
}

// Put stores the entry under its origin cache key. The write is not abandoned
// when ctx is cancelled.
func (s *Store) Put(ctx context.Context, entry *domain.CacheEntry) error {
	ctx = context.WithoutCancel(ctx)
	path := s.entryPath(entry.Origin.CacheKey)
	data := codec.EncodeCacheEntry(entry)

	err := s.lock.Do(ctx, func() error {
		return fsutil.WriteFileAtomic(path, data, domain.FilePerm)
	})
	if err != nil {
		return s.wrap(err, "failed to write cache entry", path)
	}
	return nil
}

// Delete removes the entry stored under key, if any.
func (s *Store) Delete(ctx context.Context, key domain.CacheKey) error {
	path := s.entryPath(key)
	err := s.lock.Do(ctx, func() error {
		return os.Remove(path)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s.wrap(err, "failed to delete cache entry", path)
	}
	return nil
}

// Cleanup removes entries that were not used within maxAge together with stale
// temporary files. It returns what was removed.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (ports.CacheStats, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	var removed ports.CacheStats
	now := s.now()
	err := s.lock.Do(ctx, func() error {
		return s.walk(ctx, func(path string, info fs.FileInfo) error {
			limit := maxAge
			if fsutil.IsTempFile(path) {
				limit = tempMaxAge
			}
			if now.Sub(info.ModTime()) < limit {
				return nil
			}
			if err := os.Remove(path); err != nil {
				return err
			}
			if !fsutil.IsTempFile(path) {
				removed.Entries++
			}
			removed.Bytes += info.Size()
			return nil
		})
	})
	if err != nil {
		return removed, s.wrap(err, "failed to clean cache", s.dir)
	}
	return removed, nil
}

// Stats reports the number and total size of stored entries.
func (s *Store) Stats(ctx context.Context) (ports.CacheStats, error) {
	var stats ports.CacheStats
	err := s.walk(ctx, func(path string, info fs.FileInfo) error {
		if fsutil.IsTempFile(path) {
			return nil
		}
		stats.Entries++
		stats.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return stats, s.wrap(err, "failed to read cache statistics", s.dir)
	}
	return stats, nil
}

// walk visits every regular file below the cache directory except the lock files.
func (s *Store) walk(ctx context.Context, fn func(path string, info fs.FileInfo) error) error {
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || filepath.Dir(path) == s.dir {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn(path, info)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) entryPath(key domain.CacheKey) string {
	hex := key.Hex()
	return filepath.Join(s.dir, hex[:2], hex)
}

func (s *Store) wrap(err error, msg, path string) error {
	if errors.Is(err, domain.ErrLockTimeout) || errors.Is(err, domain.ErrStore) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return zerr.With(zerr.Wrap(errors.Join(domain.ErrStore, err), msg), "path", path)
}
