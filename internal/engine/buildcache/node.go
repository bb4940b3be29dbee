package buildcache

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/adapters/cas"
	"go.trai.ch/memo/internal/adapters/config"
	"go.trai.ch/memo/internal/adapters/logger"
	"go.trai.ch/memo/internal/adapters/remote"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
)

// NodeID is the unique identifier for the build cache Graft node.
const NodeID graft.ID = "engine.build_cache"

func init() {
	graft.Register(graft.Node[ports.BuildCache]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.SettingsNodeID, cas.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.BuildCache, error) {
			settings, err := graft.Dep[*domain.Settings](ctx)
			if err != nil {
				return nil, err
			}
			if settings.Cache.Offline {
				return Disabled{}, nil
			}
			local, err := graft.Dep[ports.LocalCache](ctx)
			if err != nil {
				return nil, err
			}
			remoteStore, err := remote.New(settings.Remote)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return New(local, remoteStore, log, Options{
				RemoteTimeout: settings.Remote.Timeout,
				Push:          settings.Remote.Push,
			}), nil
		},
	})
}
