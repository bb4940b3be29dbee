package cas

import (
	"time"

	"go.trai.ch/memo/internal/core/domain"
)

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// EntryPath exposes the file location of a key.
func (s *Store) EntryPath(key domain.CacheKey) string {
	return s.entryPath(key)
}
