// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/memo/internal/adapters/cas"
	_ "go.trai.ch/memo/internal/adapters/config"
	_ "go.trai.ch/memo/internal/adapters/fs"
	_ "go.trai.ch/memo/internal/adapters/history"
	_ "go.trai.ch/memo/internal/adapters/logger"
	_ "go.trai.ch/memo/internal/adapters/shell"
	_ "go.trai.ch/memo/internal/adapters/telemetry"
	// Register app and engine nodes.
	_ "go.trai.ch/memo/internal/app"
	_ "go.trai.ch/memo/internal/engine/buildcache"
	_ "go.trai.ch/memo/internal/engine/incremental"
	_ "go.trai.ch/memo/internal/engine/scheduler"
)
