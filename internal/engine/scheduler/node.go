package scheduler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/adapters/fs"        //nolint:depguard // Wired in engine wiring
	"go.trai.ch/memo/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/memo/internal/adapters/shell"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/memo/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/engine/incremental"
)

// NodeID is the unique identifier for the scheduler Graft node.
const NodeID graft.ID = "engine.scheduler"

func init() {
	graft.Register(graft.Node[*Scheduler]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			incremental.NodeID,
			shell.NodeID,
			fs.FingerprinterNodeID,
			fs.VerifierNodeID,
			fs.ArchiverNodeID,
			telemetry.TracerNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Scheduler, error) {
			engine, err := graft.Dep[*incremental.Engine](ctx)
			if err != nil {
				return nil, err
			}

			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}

			fingerprinter, err := graft.Dep[ports.Fingerprinter](ctx)
			if err != nil {
				return nil, err
			}

			verifier, err := graft.Dep[ports.Verifier](ctx)
			if err != nil {
				return nil, err
			}

			archiver, err := graft.Dep[ports.Archiver](ctx)
			if err != nil {
				return nil, err
			}

			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewScheduler(engine, executor, fingerprinter, verifier, archiver, tracer, log), nil
		},
	})
}
