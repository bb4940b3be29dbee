package history

import (
	"context"
	"time"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/adapters/config"
	"go.trai.ch/memo/internal/adapters/logger"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

// NodeID is the unique identifier for the history store Graft node.
const NodeID graft.ID = "adapter.history_store"

// staleTempAge is how old a leftover temporary file must be before it is pruned.
const staleTempAge = time.Hour

func init() {
	graft.Register(graft.Node[ports.HistoryStore]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.SettingsNodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.HistoryStore, error) {
			settings, err := graft.Dep[*domain.Settings](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return Open(ctx, settings, log)
		},
	})
}

// Open returns the history store selected by settings.History.Backend.
func Open(ctx context.Context, settings *domain.Settings, log ports.Logger) (ports.HistoryStore, error) {
	stateDir := settings.StateDir()
	switch settings.History.Backend {
	case "", domain.HistoryBackendFiles:
		store := NewFileStore(stateDir, settings.Lock.Timeout, log)
		if _, err := store.Prune(ctx, staleTempAge); err != nil {
			log.Warn("failed to prune history directory: " + err.Error())
		}
		return store, nil
	case domain.HistoryBackendBolt:
		return NewBoltStore(stateDir, settings.Lock.Timeout, log), nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "unsupported history backend"), "backend", settings.History.Backend)
	}
}
