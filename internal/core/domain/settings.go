package domain

import (
	"path/filepath"
	"time"
)

// History backend names.
const (
	HistoryBackendFiles = "files"
	HistoryBackendBolt  = "bolt"
)

// Remote cache types.
const (
	RemoteNone = ""
	RemoteHTTP = "http"
	RemoteS3   = "s3"
)

// Settings holds the resolved runtime configuration.
type Settings struct {
	// Root is the project root; relative paths are resolved against it.
	Root    string          `mapstructure:"root"`
	State   StateSettings   `mapstructure:"state"`
	History HistorySettings `mapstructure:"history"`
	Lock    LockSettings    `mapstructure:"lock"`
	Cache   CacheSettings   `mapstructure:"cache"`
	Remote  RemoteSettings  `mapstructure:"remote"`
	Log     LogSettings     `mapstructure:"log"`
}

// StateSettings locates the tool's on-disk state.
type StateSettings struct {
	Dir string `mapstructure:"dir"`
}

// HistorySettings selects the history backend.
type HistorySettings struct {
	Backend string `mapstructure:"backend"`
}

// LockSettings bounds lock acquisition.
type LockSettings struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheSettings configures the local build cache.
type CacheSettings struct {
	Offline bool          `mapstructure:"offline"`
	MaxAge  time.Duration `mapstructure:"maxAge"`
}

// RemoteSettings configures the optional remote build cache.
type RemoteSettings struct {
	Type     string        `mapstructure:"type"`
	URL      string        `mapstructure:"url"`
	Push     bool          `mapstructure:"push"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`

	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Secure    bool   `mapstructure:"secure"`
}

// LogSettings configures log output.
type LogSettings struct {
	JSON bool `mapstructure:"json"`
}

// StateDir returns the absolute state directory.
func (s *Settings) StateDir() string {
	dir := s.State.Dir
	if dir == "" {
		dir = StateDirName
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(s.Root, dir)
}
