package incremental

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/adapters/history"
	"go.trai.ch/memo/internal/adapters/logger"
	"go.trai.ch/memo/internal/adapters/telemetry"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/engine/buildcache"
)

// NodeID is the unique identifier for the engine Graft node.
const NodeID graft.ID = "engine.incremental"

func init() {
	graft.Register(graft.Node[*Engine]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{history.NodeID, buildcache.NodeID, logger.NodeID, telemetry.TracerNodeID},
		Run: func(ctx context.Context) (*Engine, error) {
			store, err := graft.Dep[ports.HistoryStore](ctx)
			if err != nil {
				return nil, err
			}
			cache, err := graft.Dep[ports.BuildCache](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}
			return New(store, cache, log, tracer), nil
		},
	})
}
