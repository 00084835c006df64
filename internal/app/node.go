package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/tern/internal/adapters/config"  //nolint:depguard // Wired in app layer
	"go.trai.ch/tern/internal/adapters/history" //nolint:depguard // Wired in app layer
	"go.trai.ch/tern/internal/adapters/linear"  //nolint:depguard // Wired in app layer
	"go.trai.ch/tern/internal/adapters/logger"  //nolint:depguard // Wired in app layer
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/tern/internal/engine"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components holds what the entry point needs.
type Components struct {
	App    *App
	Logger ports.Logger
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			engine.NodeID,
			history.NodeID,
			linear.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*App, error) {
			loader, err := graft.Dep[ports.CatalogLoader](ctx)
			if err != nil {
				return nil, err
			}

			eng, err := graft.Dep[*engine.Engine](ctx)
			if err != nil {
				return nil, err
			}

			store, err := graft.Dep[ports.HistoryStore](ctx)
			if err != nil {
				return nil, err
			}

			console, err := graft.Dep[ports.ResultSink](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(loader, eng, store, console, log), nil
		},
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			a, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return &Components{App: a, Logger: log}, nil
		},
	})
}
