package app

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
)

// jsonSwitcher is implemented by loggers that can switch to JSON output.
type jsonSwitcher interface {
	SetJSON(enable bool)
}

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App      *App
	Logger   ports.Logger
	Settings *domain.Settings

	provider *sdktrace.TracerProvider
}

// NewComponents creates a new Components struct from dependencies and applies
// the log settings to logger. provider may be nil.
func NewComponents(a *App, logger ports.Logger, settings *domain.Settings, provider *sdktrace.TracerProvider) *Components {
	if s, ok := logger.(jsonSwitcher); ok && settings.Log.JSON {
		s.SetJSON(true)
	}
	return &Components{
		App:      a,
		Logger:   logger,
		Settings: settings,
		provider: provider,
	}
}

// Close ends tracing, delivering any span still held by the provider.
func (c *Components) Close(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Shutdown(ctx)
}
