package config_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/memo/internal/adapters/config"
	"go.trai.ch/memo/internal/adapters/lock"
	"go.trai.ch/memo/internal/core/domain"
)

func TestLoadSettings_Defaults(t *testing.T) {
	dir := t.TempDir()

	settings, err := config.LoadSettings(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, dir, settings.Root)
	assert.Equal(t, filepath.Join(dir, domain.StateDirName), settings.StateDir())
	assert.Equal(t, domain.HistoryBackendFiles, settings.History.Backend)
	assert.Equal(t, lock.DefaultTimeout, settings.Lock.Timeout)
	assert.Equal(t, 7*24*time.Hour, settings.Cache.MaxAge)
	assert.False(t, settings.Cache.Offline)
	assert.Equal(t, domain.RemoteNone, settings.Remote.Type)
	assert.Equal(t, 5*time.Second, settings.Remote.Timeout)
	assert.True(t, settings.Remote.Secure)
}

func TestLoadSettings_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
state:
  dir: /var/cache/memo
history:
  backend: bolt
lock:
  timeout: 2s
remote:
  type: http
  url: https://cache.example.com/memo
  push: true
  timeout: 1500ms
tasks: {}
`)
	t.Setenv("MEMO_REMOTE_URL", "https://mirror.example.com/memo")
	t.Setenv("MEMO_CACHE_OFFLINE", "true")

	settings, err := config.LoadSettings(dir, map[string]any{
		config.KeyCacheOffline: false,
		config.KeyLogJSON:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/memo", settings.StateDir())
	assert.Equal(t, domain.HistoryBackendBolt, settings.History.Backend)
	assert.Equal(t, 2*time.Second, settings.Lock.Timeout)
	assert.Equal(t, domain.RemoteHTTP, settings.Remote.Type)
	assert.Equal(t, "https://mirror.example.com/memo", settings.Remote.URL, "environment beats file")
	assert.True(t, settings.Remote.Push)
	assert.Equal(t, 1500*time.Millisecond, settings.Remote.Timeout)
	assert.False(t, settings.Cache.Offline, "overrides beat environment")
	assert.True(t, settings.Log.JSON)
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Run("history backend", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, "history:\n  backend: sqlite\n")

		_, err := config.LoadSettings(dir, nil)
		require.ErrorIs(t, err, domain.ErrUnknownBackend)
	})

	t.Run("remote type", func(t *testing.T) {
		t.Setenv("MEMO_REMOTE_TYPE", "ftp")

		_, err := config.LoadSettings(t.TempDir(), nil)
		require.ErrorIs(t, err, domain.ErrUnknownBackend)
	})
}

func TestWithOverrides_Merges(t *testing.T) {
	ctx := config.WithOverrides(context.Background(), map[string]any{config.KeyCacheOffline: true})
	ctx = config.WithOverrides(ctx, map[string]any{config.KeyLogJSON: true})

	settings, err := config.LoadSettings(t.TempDir(), config.OverridesFrom(ctx))
	require.NoError(t, err)
	assert.True(t, settings.Cache.Offline)
	assert.True(t, settings.Log.JSON)
}
