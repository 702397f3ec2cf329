package storage

import (
	"context"

	"github.com/bcnelson/simulation-deployer/internal/domain"
)

// Storage defines the interface for the operation history store.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Operations
	CreateOperation(ctx context.Context, op *domain.Operation) error
	GetOperation(ctx context.Context, id string) (*domain.Operation, error)
	GetLatestOperation(ctx context.Context, userID string) (*domain.Operation, error)
	ListOperations(ctx context.Context, userID string, limit, offset int) ([]*domain.Operation, error)
	UpdateOperation(ctx context.Context, op *domain.Operation) error
}
