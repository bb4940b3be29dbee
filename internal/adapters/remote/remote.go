package remote

import (
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

// New returns the remote store selected by settings.Type, or nil when no
// remote cache is configured.
func New(settings domain.RemoteSettings) (ports.RemoteCache, error) {
	switch settings.Type {
	case domain.RemoteNone:
		return nil, nil
	case domain.RemoteHTTP:
		if settings.URL == "" {
			return nil, zerr.Wrap(domain.ErrRemoteCache, "remote.url is required for the http cache")
		}
		return NewHTTPStore(settings.URL, settings.Timeout, settings.Username, settings.Password), nil
	case domain.RemoteS3:
		return NewS3Store(settings)
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "unsupported remote cache type"), "type", settings.Type)
	}
}
