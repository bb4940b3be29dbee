// Package buildcache combines the local content store and an optional remote
// store into the build cache used by the engine.
package buildcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.trai.ch/memo/internal/core/codec"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRemoteTimeout bounds every remote call.
	DefaultRemoteTimeout = 5 * time.Second

	// DefaultMaxUploads bounds the number of concurrent remote uploads.
	DefaultMaxUploads = 4

	// DefaultMaxPendingUploads bounds the number of uploads queued or in flight.
	DefaultMaxPendingUploads = 64
)

// Options configures a Facade.
type Options struct {
	RemoteTimeout time.Duration
	// Push enables uploads to the remote store.
	Push       bool
	MaxUploads int
	// MaxPendingUploads bounds queued uploads; further uploads are skipped.
	MaxPendingUploads int
}

// Facade implements ports.BuildCache.
//
// Reads try the local store first and fall back to the remote store, writing
// remote hits through to the local store. Writes go to the local store
// synchronously and to the remote store in the background. Remote failures are
// logged and never returned.
type Facade struct {
	local  ports.LocalCache
	remote ports.RemoteCache
	logger ports.Logger
	opts   Options

	fetches singleflight.Group

	slots chan struct{}

	mu      sync.Mutex
	uploads *errgroup.Group
}

// New creates a facade. remote may be nil.
func New(local ports.LocalCache, remote ports.RemoteCache, logger ports.Logger, opts Options) *Facade {
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = DefaultRemoteTimeout
	}
	if opts.MaxUploads <= 0 {
		opts.MaxUploads = DefaultMaxUploads
	}
	if opts.MaxPendingUploads < opts.MaxUploads {
		opts.MaxPendingUploads = max(DefaultMaxPendingUploads, opts.MaxUploads)
	}
	f := &Facade{
		local:  local,
		remote: remote,
		logger: logger,
		opts:   opts,
		slots:  make(chan struct{}, opts.MaxUploads),
	}
	f.uploads = f.newUploadGroup()
	return f
}

// TryLoad returns the entry stored under key.
func (f *Facade) TryLoad(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, bool, error) {
	entry, found, err := f.loadLocal(ctx, key)
	if err != nil || found {
		return entry, found, err
	}
	if f.remote == nil {
		return nil, false, nil
	}

	ch := f.fetches.DoChan(key.Hex(), func() (any, error) {
		return f.fetchRemote(context.WithoutCancel(ctx), key), nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		entry, _ := res.Val.(*domain.CacheEntry)
		return entry, entry != nil, nil
	}
}

// Contains reports whether the local store holds a readable entry for key.
func (f *Facade) Contains(ctx context.Context, key domain.CacheKey) (bool, error) {
	_, found, err := f.loadLocal(ctx, key)
	return found, err
}

// Store saves payload under key. The local write is synchronous; the remote
// upload happens in the background when pushing is enabled and never blocks
// the caller. An upload is skipped when MaxPendingUploads are already queued.
func (f *Facade) Store(ctx context.Context, key domain.CacheKey, payload []byte, origin domain.OriginMetadata) error {
	if origin.CacheKey != key {
		err := zerr.With(zerr.Wrap(domain.ErrKeyMismatch, "origin key differs from store key"), "key", key.String())
		return zerr.With(err, "origin_key", origin.CacheKey.String())
	}

	entry := &domain.CacheEntry{Origin: origin, Payload: payload}
	if err := f.local.Put(ctx, entry); err != nil {
		return err
	}

	if f.remote == nil || !f.opts.Push {
		return nil
	}

	data := codec.EncodeCacheEntry(entry)
	uploadCtx := context.WithoutCancel(ctx)
	f.mu.Lock()
	queued := f.uploads.TryGo(func() error {
		f.slots <- struct{}{}
		defer func() { <-f.slots }()

		rctx, cancel := context.WithTimeout(uploadCtx, f.opts.RemoteTimeout)
		defer cancel()
		if err := f.remote.Store(rctx, key, data); err != nil {
			f.logger.Warn("failed to upload " + key.Short() + " to remote cache: " + err.Error())
		}
		return nil
	})
	f.mu.Unlock()

	if !queued {
		f.logger.Warn("remote upload queue full, skipping upload of " + key.Short())
	}
	return nil
}

// Flush waits until pending uploads finish or ctx is done.
func (f *Facade) Flush(ctx context.Context) error {
	f.mu.Lock()
	pending := f.uploads
	f.uploads = f.newUploadGroup()
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- pending.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Facade) newUploadGroup() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(f.opts.MaxPendingUploads)
	return g
}

// loadLocal reads the local store. Corrupt entries are removed and reported as
// a miss, as are entries the store fails to read. Only cancellation is returned.
func (f *Facade) loadLocal(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, bool, error) {
	entry, err := f.local.Get(ctx, key)
	switch {
	case err == nil:
		return entry, true, nil
	case errors.Is(err, domain.ErrCacheMiss):
		return nil, false, nil
	case errors.Is(err, domain.ErrDecode):
		f.logger.Warn("discarding corrupt local cache entry " + key.Short() + ": " + err.Error())
		if delErr := f.local.Delete(ctx, key); delErr != nil {
			f.logger.Warn("failed to delete corrupt cache entry " + key.Short() + ": " + delErr.Error())
		}
		return nil, false, nil
	default:
		if ctx.Err() != nil {
			return nil, false, err
		}
		f.logger.Warn("local cache unavailable for " + key.Short() + ": " + err.Error())
		return nil, false, nil
	}
}

// fetchRemote downloads, verifies and writes through a remote entry. Every
// failure is logged and reported as a miss.
func (f *Facade) fetchRemote(ctx context.Context, key domain.CacheKey) *domain.CacheEntry {
	rctx, cancel := context.WithTimeout(ctx, f.opts.RemoteTimeout)
	defer cancel()

	data, err := f.remote.Load(rctx, key)
	if errors.Is(err, domain.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		f.logger.Warn("remote cache unavailable for " + key.Short() + ": " + err.Error())
		return nil
	}

	entry, err := codec.DecodeCacheEntryFor(key, data)
	if err != nil {
		f.logger.Warn("discarding corrupt remote cache entry " + key.Short() + ": " + err.Error())
		return nil
	}

	if err := f.local.Put(ctx, entry); err != nil {
		f.logger.Warn("failed to store remote cache entry " + key.Short() + " locally: " + err.Error())
	}
	return entry
}

// Disabled is the build cache used offline: it never hits and never stores.
type Disabled struct{}

// TryLoad always misses.
func (Disabled) TryLoad(context.Context, domain.CacheKey) (*domain.CacheEntry, bool, error) {
	return nil, false, nil
}

// Contains always reports false.
func (Disabled) Contains(context.Context, domain.CacheKey) (bool, error) {
	return false, nil
}

// Store discards the payload.
func (Disabled) Store(context.Context, domain.CacheKey, []byte, domain.OriginMetadata) error {
	return nil
}

// Flush has nothing to wait for.
func (Disabled) Flush(context.Context) error {
	return nil
}
