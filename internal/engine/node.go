package engine

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/tern/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/tern/internal/core/ports"
)

// NodeID is the unique identifier for the engine Graft node.
const NodeID graft.ID = "engine.main"

func init() {
	graft.Register(graft.Node[*Engine]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Engine, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(log), nil
		},
	})
}
