package ports

import (
	"context"

	"go.trai.ch/memo/internal/core/domain"
)

// HistoryStore persists the last execution state of every task.
//
//go:generate mockgen -source=history.go -destination=mocks/mock_history.go -package=mocks
type HistoryStore interface {
	// Load returns the entry for the task identity.
	// It returns nil, nil if there is no entry or the entry is unreadable.
	Load(ctx context.Context, taskIdentity string) (*domain.ExecutionHistoryEntry, error)

	// Store replaces the entry for entry.TaskIdentity as a whole.
	Store(ctx context.Context, entry *domain.ExecutionHistoryEntry) error

	// Remove deletes the entry for the task identity. A missing entry is not an error.
	Remove(ctx context.Context, taskIdentity string) error

	// List returns every readable entry ordered by task identity.
	List(ctx context.Context) ([]*domain.ExecutionHistoryEntry, error)
}
