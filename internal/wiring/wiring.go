// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/tern/internal/adapters/config"
	_ "go.trai.ch/tern/internal/adapters/history"
	_ "go.trai.ch/tern/internal/adapters/linear"
	_ "go.trai.ch/tern/internal/adapters/logger"
	_ "go.trai.ch/tern/internal/adapters/shell"
	// Register app and engine nodes.
	_ "go.trai.ch/tern/internal/app"
	_ "go.trai.ch/tern/internal/engine"
)
