// Package history implements the execution history store.
//
// Two backends are available. FileStore keeps one file per task identity and
// publishes each entry with an atomic rename. BoltStore keeps all entries in a
// single bbolt database.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/memo/internal/adapters/lock"
	"go.trai.ch/memo/internal/core/codec"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/fsutil"
	"go.trai.ch/zerr"
)

const entryExt = ".bin"

// FileStore implements ports.HistoryStore using a file-per-task strategy.
type FileStore struct {
	dir    string
	lock   *lock.Dir
	logger ports.Logger
	rename fsutil.RenameFunc
}

// NewFileStore creates a store rooted at the history directory of stateDir.
func NewFileStore(stateDir string, lockTimeout time.Duration, logger ports.Logger) *FileStore {
	dir := domain.HistoryPath(stateDir)
	return &FileStore{
		dir:    dir,
		lock:   lock.New(dir, lockTimeout),
		logger: logger,
		rename: os.Rename,
	}
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load retrieves the entry for a task identity.
func (s *FileStore) Load(ctx context.Context, taskIdentity string) (*domain.ExecutionHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.entryPath(taskIdentity)
	var data []byte
	err := s.lock.Do(ctx, func() error {
		var readErr error
		//nolint:gosec // Path is constructed from the store directory and a hashed identity
		data, readErr = os.ReadFile(path)
		return readErr
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapIOError(err, "failed to read history entry", path)
	}

	return decodeEntry(s.logger, taskIdentity, data), nil
}

// Store replaces the entry for entry.TaskIdentity. The write is not abandoned
// when ctx is cancelled.
func (s *FileStore) Store(ctx context.Context, entry *domain.ExecutionHistoryEntry) error {
	ctx = context.WithoutCancel(ctx)
	path := s.entryPath(entry.TaskIdentity)
	data := codec.EncodeHistoryEntry(entry)

	err := s.lock.Do(ctx, func() error {
		return fsutil.WriteFileAtomicWith(path, data, domain.FilePerm, s.rename)
	})
	if err != nil {
		return wrapIOError(err, "failed to write history entry", path)
	}
	return nil
}

// Remove deletes the entry for a task identity.
func (s *FileStore) Remove(ctx context.Context, taskIdentity string) error {
	path := s.entryPath(taskIdentity)
	err := s.lock.Do(ctx, func() error {
		return os.Remove(path)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrapIOError(err, "failed to remove history entry", path)
	}
	return nil
}

// List returns every readable entry ordered by task identity.
func (s *FileStore) List(ctx context.Context) ([]*domain.ExecutionHistoryEntry, error) {
	var entries []*domain.ExecutionHistoryEntry
	err := s.lock.Do(ctx, func() error {
		return s.walkEntries(func(path string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			//nolint:gosec // Path comes from walking the store directory
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			entry, err := codec.DecodeHistoryEntry(data)
			if err != nil {
				s.logger.Warn("skipping unreadable history entry " + path + ": " + err.Error())
				return nil
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, wrapIOError(err, "failed to list history entries", s.dir)
	}
	sortEntries(entries)
	return entries, nil
}

// Prune removes temporary files left behind by writers that died before
// publishing, provided they are older than olderThan. It returns the number of
// removed files.
func (s *FileStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	removed := 0
	err := s.lock.Do(ctx, func() error {
		return filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() || !fsutil.IsTempFile(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if time.Since(info.ModTime()) < olderThan {
				return nil
			}
			if err := os.Remove(path); err == nil {
				removed++
			}
			return nil
		})
	})
	if err != nil {
		return removed, wrapIOError(err, "failed to prune history directory", s.dir)
	}
	return removed, nil
}

func (s *FileStore) walkEntries(fn func(path string) error) error {
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || fsutil.IsTempFile(path) || !strings.HasSuffix(path, entryExt) {
			return nil
		}
		return fn(path)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) entryPath(taskIdentity string) string {
	name := identityKey(taskIdentity)
	return filepath.Join(s.dir, name[:2], name+entryExt)
}

// identityKey maps a task identity to a fixed-length file system safe name.
func identityKey(taskIdentity string) string {
	hash := sha256.Sum256([]byte(taskIdentity))
	return hex.EncodeToString(hash[:])
}

// decodeEntry turns stored bytes into an entry. Corrupt data and entries
// belonging to another identity are logged and reported as absent.
func decodeEntry(logger ports.Logger, taskIdentity string, data []byte) *domain.ExecutionHistoryEntry {
	entry, err := codec.DecodeHistoryEntry(data)
	if err != nil {
		logger.Warn("ignoring corrupt history entry for " + taskIdentity + ": " + err.Error())
		return nil
	}
	if entry.TaskIdentity != taskIdentity {
		logger.Warn("ignoring history entry for " + taskIdentity + ": stored for " + entry.TaskIdentity)
		return nil
	}
	return entry
}

func sortEntries(entries []*domain.ExecutionHistoryEntry) {
	slices.SortFunc(entries, func(a, b *domain.ExecutionHistoryEntry) int {
		return strings.Compare(a.TaskIdentity, b.TaskIdentity)
	})
}

// wrapIOError keeps lock timeouts and cancellation recognisable and reports
// everything else as a store failure.
func wrapIOError(err error, msg, path string) error {
	if errors.Is(err, domain.ErrLockTimeout) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrStore) {
		return err
	}
	return zerr.With(zerr.Wrap(errors.Join(domain.ErrStore, err), msg), "path", path)
}
