package linear

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/tern/internal/core/ports"
)

// NodeID is the unique identifier for the console sink Graft node.
const NodeID graft.ID = "adapter.linear"

func init() {
	graft.Register(graft.Node[ports.ResultSink]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ResultSink, error) {
			return NewSink(nil, nil), nil
		},
	})
}
