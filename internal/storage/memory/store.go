package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu         sync.RWMutex
	operations map[string]*domain.Operation // key: id
	seq        map[string]int               // insertion order, key: id
	next       int
}

// Ensure Store implements storage.Storage.
var _ storage.Storage = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		operations: make(map[string]*domain.Operation),
		seq:        make(map[string]int),
	}
}

func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) CreateOperation(ctx context.Context, op *domain.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.operations[op.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *op
	s.operations[op.ID] = &cp
	s.seq[op.ID] = s.next
	s.next++
	return nil
}

func (s *Store) GetOperation(ctx context.Context, id string) (*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, exists := s.operations[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (s *Store) GetLatestOperation(ctx context.Context, userID string) (*domain.Operation, error) {
	ops, err := s.ListOperations(ctx, userID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, domain.ErrNotFound
	}
	return ops[0], nil
}

// ListOperations returns a user's operations, newest first.
func (s *Store) ListOperations(ctx context.Context, userID string, limit, offset int) ([]*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make([]*domain.Operation, 0)
	for _, op := range s.operations {
		if op.UserID == userID {
			cp := *op
			ops = append(ops, &cp)
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if !ops[i].CreatedAt.Equal(ops[j].CreatedAt) {
			return ops[i].CreatedAt.After(ops[j].CreatedAt)
		}
		return s.seq[ops[i].ID] > s.seq[ops[j].ID]
	})

	if offset >= len(ops) {
		return []*domain.Operation{}, nil
	}
	ops = ops[offset:]
	if limit > 0 && limit < len(ops) {
		ops = ops[:limit]
	}
	return ops, nil
}

func (s *Store) UpdateOperation(ctx context.Context, op *domain.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.operations[op.ID]; !exists {
		return domain.ErrNotFound
	}
	cp := *op
	s.operations[op.ID] = &cp
	return nil
}
