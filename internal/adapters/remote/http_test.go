package remote_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/memo/internal/adapters/remote"
	"go.trai.ch/memo/internal/core/domain"
)

// blobServer is an in-memory GET/PUT cache server.
type blobServer struct {
	mu    sync.Mutex
	blobs map[string][]byte
	user  string
	pass  string
}

func (s *blobServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.user != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.user || pass != s.pass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	name := strings.TrimPrefix(r.URL.Path, "/cache/")
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		data, ok := s.blobs[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.blobs[name] = data
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestHTTPStore_RoundTrip(t *testing.T) {
	t.Parallel()

	backend := &blobServer{blobs: map[string][]byte{}, user: "ci", pass: "secret"}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	store := remote.NewHTTPStore(srv.URL+"/cache/", time.Second, "ci", "secret")
	key := domain.CacheKey(domain.DigestOfString("k"))
	ctx := context.Background()

	_, err := store.Load(ctx, key)
	require.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, store.Store(ctx, key, []byte("blob")))
	backend.mu.Lock()
	assert.Contains(t, backend.blobs, key.Hex())
	backend.mu.Unlock()

	data, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)
}

func TestHTTPStore_Errors(t *testing.T) {
	t.Parallel()

	key := domain.CacheKey(domain.DigestOfString("k"))

	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(&blobServer{blobs: map[string][]byte{}, user: "ci", pass: "secret"})
		defer srv.Close()

		store := remote.NewHTTPStore(srv.URL+"/cache", time.Second, "", "")
		_, err := store.Load(context.Background(), key)
		require.ErrorIs(t, err, domain.ErrRemoteCache)
		assert.NotErrorIs(t, err, domain.ErrCacheMiss)

		err = store.Store(context.Background(), key, []byte("x"))
		require.ErrorIs(t, err, domain.ErrRemoteCache)
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := remote.NewHTTPStore(srv.URL, time.Second, "", "").Load(context.Background(), key)
		require.ErrorIs(t, err, domain.ErrRemoteCache)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := remote.NewHTTPStore(srv.URL, 20*time.Millisecond, "", "").Load(context.Background(), key)
		require.ErrorIs(t, err, domain.ErrRemoteCache)
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := remote.NewHTTPStore(url, time.Second, "", "").Load(context.Background(), key)
		require.ErrorIs(t, err, domain.ErrRemoteCache)
	})
}
