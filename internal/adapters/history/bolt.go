package history

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
	"go.trai.ch/memo/internal/adapters/lock"
	"go.trai.ch/memo/internal/core/codec"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

var bucketName = []byte("history/v1")

// BoltStore implements ports.HistoryStore on a single bbolt database.
//
// The database is opened for each operation, so the file lock is held only for
// the duration of one call.
type BoltStore struct {
	path    string
	timeout time.Duration
	logger  ports.Logger
}

// NewBoltStore creates a store backed by the history database of stateDir.
func NewBoltStore(stateDir string, lockTimeout time.Duration, logger ports.Logger) *BoltStore {
	if lockTimeout <= 0 {
		lockTimeout = lock.DefaultTimeout
	}
	return &BoltStore{
		path:    domain.HistoryDBPath(stateDir),
		timeout: lockTimeout,
		logger:  logger,
	}
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Load retrieves the entry for a task identity.
func (s *BoltStore) Load(ctx context.Context, taskIdentity string) (*domain.ExecutionHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var data []byte
	err := s.view(func(b *bbolt.Bucket) error {
		if v := b.Get([]byte(taskIdentity)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return decodeEntry(s.logger, taskIdentity, data), nil
}

// Store replaces the entry for entry.TaskIdentity.
func (s *BoltStore) Store(_ context.Context, entry *domain.ExecutionHistoryEntry) error {
	data := codec.EncodeHistoryEntry(entry)
	return s.update(func(b *bbolt.Bucket) error {
		return b.Put([]byte(entry.TaskIdentity), data)
	})
}

// Remove deletes the entry for a task identity.
func (s *BoltStore) Remove(ctx context.Context, taskIdentity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return s.update(func(b *bbolt.Bucket) error {
		return b.Delete([]byte(taskIdentity))
	})
}

// List returns every readable entry ordered by task identity.
func (s *BoltStore) List(ctx context.Context) ([]*domain.ExecutionHistoryEntry, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var entries []*domain.ExecutionHistoryEntry
	err := s.view(func(b *bbolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry := decodeEntry(s.logger, string(k), v)
			if entry != nil {
				entries = append(entries, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func (s *BoltStore) view(fn func(*bbolt.Bucket) error) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return fn(b)
	})
	if err != nil {
		return wrapIOError(err, "failed to read history database", s.path)
	}
	return nil
}

func (s *BoltStore) update(fn func(*bbolt.Bucket) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return fn(b)
	})
	if err != nil {
		return wrapIOError(err, "failed to update history database", s.path)
	}
	return nil
}

func (s *BoltStore) open(readOnly bool) (*bbolt.DB, error) {
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(s.path), domain.DirPerm); err != nil {
			return nil, wrapIOError(err, "failed to create history directory", s.path)
		}
	}
	db, err := bbolt.Open(s.path, domain.FilePerm, &bbolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
	if errors.Is(err, berrors.ErrTimeout) {
		return nil, zerr.With(zerr.Wrap(domain.ErrLockTimeout, "history database is locked"), "path", s.path)
	}
	if err != nil {
		return nil, wrapIOError(err, "failed to open history database", s.path)
	}
	return db, nil
}
