package config

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/tern/internal/adapters/logger"
	"go.trai.ch/tern/internal/adapters/shell"
	"go.trai.ch/tern/internal/core/ports"
)

// NodeID is the unique identifier for the suite loader Graft node.
const NodeID graft.ID = "adapter.config_loader"

func init() {
	graft.Register(graft.Node[ports.CatalogLoader]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, shell.NodeID},
		Run: func(ctx context.Context) (ports.CatalogLoader, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			runner, err := graft.Dep[ports.CommandRunner](ctx)
			if err != nil {
				return nil, err
			}
			return NewLoader(runner, log), nil
		},
	})
}
