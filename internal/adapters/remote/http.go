// Package remote implements remote build cache stores shared between machines.
package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	// DefaultTimeout bounds a single remote request.
	DefaultTimeout = 5 * time.Second

	contentType = "application/octet-stream"
)

// HTTPStore implements ports.RemoteCache over plain HTTP.
//
// Entries are fetched with GET {url}/{hex} and uploaded with PUT {url}/{hex}.
// A 404 response is a miss.
type HTTPStore struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewHTTPStore creates a store for the cache at baseURL.
func NewHTTPStore(baseURL string, timeout time.Duration, username, password string) *HTTPStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Load downloads the blob stored under key.
func (s *HTTPStore) Load(ctx context.Context, key domain.CacheKey) ([]byte, error) {
	url := s.url(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, requestError(err, url)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, requestError(err, url)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheMiss, "remote cache entry not found"), "url", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestError(err, url)
	}
	return body, nil
}

// Store uploads data under key.
func (s *HTTPStore) Store(ctx context.Context, key domain.CacheKey, data []byte) error {
	url := s.url(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return requestError(err, url)
	}
	req.Header.Set("Content-Type", contentType)
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return requestError(err, url)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		return statusError(resp.StatusCode, url)
	}
}

func (s *HTTPStore) url(key domain.CacheKey) string {
	return s.baseURL + "/" + key.Hex()
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.username != "" || s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
}

func requestError(err error, url string) error {
	return zerr.With(zerr.Wrap(errors.Join(domain.ErrRemoteCache, err), "remote cache request failed"), "url", url)
}

func statusError(code int, url string) error {
	err := zerr.With(zerr.Wrap(domain.ErrRemoteCache, "unexpected remote cache response"), "status_code", code)
	return zerr.With(err, "url", url)
}
