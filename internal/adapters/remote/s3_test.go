package remote_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/memo/internal/adapters/remote"
	"go.trai.ch/memo/internal/core/domain"
)

// objectServer answers the subset of the S3 API used by S3Store.
type objectServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string
}

func (s *objectServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		data, ok := s.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		_, _ = w.Write(data)
	case http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		s.puts = append(s.puts, r.URL.Path)
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newS3Store(t *testing.T, backend *objectServer) *remote.S3Store {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store, err := remote.NewS3Store(domain.RemoteSettings{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Bucket:    "builds",
		Prefix:    "memo",
		AccessKey: "access",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	return store
}

func TestS3Store_Load(t *testing.T) {
	t.Parallel()

	key := domain.CacheKey(domain.DigestOfString("k"))
	backend := &objectServer{objects: map[string][]byte{
		"/builds/memo/" + key.Hex(): []byte("cached"),
	}}
	store := newS3Store(t, backend)

	data, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), data)

	_, err = store.Load(context.Background(), domain.CacheKey(domain.DigestOfString("missing")))
	require.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestS3Store_Store(t *testing.T) {
	t.Parallel()

	key := domain.CacheKey(domain.DigestOfString("k"))
	backend := &objectServer{objects: map[string][]byte{}}
	store := newS3Store(t, backend)

	require.NoError(t, store.Store(context.Background(), key, []byte("payload")))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []string{"/builds/memo/" + key.Hex()}, backend.puts)
}

func TestNewS3Store_Validation(t *testing.T) {
	t.Parallel()

	_, err := remote.NewS3Store(domain.RemoteSettings{Endpoint: "localhost:9000"})
	require.ErrorIs(t, err, domain.ErrRemoteCache)

	_, err = remote.NewS3Store(domain.RemoteSettings{Bucket: "builds"})
	require.ErrorIs(t, err, domain.ErrRemoteCache)
}
