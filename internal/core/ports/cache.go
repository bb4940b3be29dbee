package ports

import (
	"context"
	"time"

	"go.trai.ch/memo/internal/core/domain"
)

//go:generate mockgen -source=cache.go -destination=mocks/mock_cache.go -package=mocks

// CacheStats summarizes the content of the local cache.
type CacheStats struct {
	Entries int
	Bytes   int64
}

// LocalCache is the on-disk content-addressable store of cache entries.
type LocalCache interface {
	// Get returns the entry stored under key. It fails with domain.ErrCacheMiss
	// when there is none and with domain.ErrDecode when the entry is corrupt or
	// was stored under a different key.
	Get(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, error)
	// Put stores the entry under its origin cache key.
	Put(ctx context.Context, entry *domain.CacheEntry) error
	// Delete removes the entry stored under key, if any.
	Delete(ctx context.Context, key domain.CacheKey) error
	// Cleanup removes entries that were not used within maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) (CacheStats, error)
	// Stats reports the number and total size of stored entries.
	Stats(ctx context.Context) (CacheStats, error)
}

// RemoteCache is a key/blob store shared between machines.
type RemoteCache interface {
	// Load returns the blob stored under key or domain.ErrCacheMiss.
	Load(ctx context.Context, key domain.CacheKey) ([]byte, error)
	// Store uploads the blob under key.
	Store(ctx context.Context, key domain.CacheKey, data []byte) error
}

// BuildCache unifies the local and remote stores behind one get/put contract.
type BuildCache interface {
	// TryLoad returns the entry for key. A miss is reported as false with a nil error.
	TryLoad(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, bool, error)
	// Contains reports whether the local store holds key, without contacting a remote.
	Contains(ctx context.Context, key domain.CacheKey) (bool, error)
	// Store saves a payload with its origin.
	Store(ctx context.Context, key domain.CacheKey, payload []byte, origin domain.OriginMetadata) error
	// Flush waits for pending remote uploads.
	Flush(ctx context.Context) error
}
