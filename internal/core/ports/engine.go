package ports

import (
	"context"

	"go.trai.ch/memo/internal/core/domain"
)

// Engine decides whether a task must run and records what happened when it did.
//
//go:generate mockgen -source=engine.go -destination=mocks/mock_engine.go -package=mocks
type Engine interface {
	// Evaluate returns the verdict for a task.
	Evaluate(ctx context.Context, req *domain.EvaluationRequest) (domain.Verdict, error)
	// RecordExecution persists the outcome of a run or a cache restore.
	RecordExecution(ctx context.Context, exec *domain.Execution) error
	// MaterializeFromCache fetches the cached result stored under key.
	MaterializeFromCache(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, bool, error)
}
