package storage

import (
	"context"

	"github.com/gateway-fm/walletbot/pkg/types"
)

// Storage defines the persistence interface for cycle history.
type Storage interface {
	// Cycle lifecycle
	CreateCycle(ctx context.Context, cycle *types.CycleReport) error
	CompleteCycle(ctx context.Context, cycle *types.CycleReport) error
	GetCycle(ctx context.Context, id string) (*types.CycleReport, error)

	// History queries
	ListCycles(ctx context.Context, limit, offset int) (*PaginatedCycles, error)

	// Per-operation outcomes, written as the cycle progresses
	InsertOperationResult(ctx context.Context, op *types.OperationReport) error
	GetCycleOperations(ctx context.Context, cycleID string) ([]types.OperationReport, error)

	// Lifecycle
	Close() error
}
