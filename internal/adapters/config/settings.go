package config

import (
	"context"
	"errors"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.trai.ch/memo/internal/adapters/lock"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

// EnvPrefix prefixes every environment override, e.g. MEMO_CACHE_OFFLINE.
const EnvPrefix = "MEMO"

// Setting keys that command-line flags override.
const (
	KeyStateDir     = "state.dir"
	KeyCacheOffline = "cache.offline"
	KeyCacheMaxAge  = "cache.maxAge"
	KeyLogJSON      = "log.json"
)

const (
	defaultMaxAge        = 7 * 24 * time.Hour
	defaultRemoteTimeout = 5 * time.Second
)

type overridesKey struct{}

// WithOverrides attaches setting overrides, usually taken from command-line
// flags, to ctx. They take precedence over the environment and memo.yaml.
func WithOverrides(ctx context.Context, overrides map[string]any) context.Context {
	merged := maps.Clone(overridesFrom(ctx))
	if merged == nil {
		merged = make(map[string]any, len(overrides))
	}
	maps.Copy(merged, overrides)
	return context.WithValue(ctx, overridesKey{}, merged)
}

func overridesFrom(ctx context.Context) map[string]any {
	m, _ := ctx.Value(overridesKey{}).(map[string]any)
	return m
}

// LoadSettings resolves the settings for cwd. Sources in increasing order of
// precedence: defaults, the settings keys of the nearest memo.yaml, MEMO_*
// environment variables and overrides.
//
// The project root is the directory of memo.yaml, or cwd when there is none.
func LoadSettings(cwd string, overrides map[string]any) (*domain.Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	manifestPath, err := FindManifest(cwd)
	switch {
	case err == nil:
		v.SetConfigFile(manifestPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrConfigParseFailed, err), "failed to load settings"), "path", manifestPath)
		}
	case errors.Is(err, domain.ErrConfigNotFound):
		manifestPath = filepath.Join(cwd, domain.ManifestFileName)
	default:
		return nil, err
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var settings domain.Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, zerr.Wrap(errors.Join(domain.ErrConfigParseFailed, err), "failed to decode settings")
	}
	settings.Root = resolveRoot(manifestPath, settings.Root)

	if err := validate(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", "")
	v.SetDefault(KeyStateDir, domain.StateDirName)
	v.SetDefault("history.backend", domain.HistoryBackendFiles)
	v.SetDefault("lock.timeout", lock.DefaultTimeout)
	v.SetDefault(KeyCacheOffline, false)
	v.SetDefault(KeyCacheMaxAge, defaultMaxAge)
	v.SetDefault("remote.type", domain.RemoteNone)
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.push", false)
	v.SetDefault("remote.timeout", defaultRemoteTimeout)
	v.SetDefault("remote.username", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.bucket", "")
	v.SetDefault("remote.prefix", "")
	v.SetDefault("remote.accessKey", "")
	v.SetDefault("remote.secretKey", "")
	v.SetDefault("remote.secure", true)
	v.SetDefault(KeyLogJSON, false)
}

func validate(s *domain.Settings) error {
	switch s.History.Backend {
	case domain.HistoryBackendFiles, domain.HistoryBackendBolt:
	default:
		return zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "invalid history.backend"), "backend", s.History.Backend)
	}
	switch s.Remote.Type {
	case domain.RemoteNone, domain.RemoteHTTP, domain.RemoteS3:
	default:
		return zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "invalid remote.type"), "type", s.Remote.Type)
	}
	if s.Lock.Timeout <= 0 {
		return zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, "lock.timeout must be positive"), "timeout", s.Lock.Timeout.String())
	}
	return nil
}
