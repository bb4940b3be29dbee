package ports

import "go.trai.ch/memo/internal/core/domain"

// ConfigLoader defines the interface for loading the task manifest.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the manifest from the given working directory and returns the task graph.
	Load(cwd string) (*domain.Graph, error)
}
