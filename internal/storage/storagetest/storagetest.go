// Package storagetest holds conformance tests shared by storage implementations.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/storage"
)

// Run exercises the operation history contract against store.
func Run(t *testing.T, store storage.Storage) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ops := []*domain.Operation{
		{ID: "op-1", UserID: "u1", ModuleID: "m1", StackName: "stack-u1", Kind: domain.OperationDeploy, Status: domain.OperationPending, RequestedBy: "instructor@example.edu", CreatedAt: base},
		{ID: "op-2", UserID: "u1", StackName: "stack-u1", Kind: domain.OperationDestroy, Status: domain.OperationPending, CreatedAt: base.Add(time.Minute)},
		{ID: "op-3", UserID: "u2", ModuleID: "m1", StackName: "stack-u2", Kind: domain.OperationDeploy, Status: domain.OperationPending, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, op := range ops {
		if err := store.CreateOperation(ctx, op); err != nil {
			t.Fatalf("CreateOperation(%s) error = %v", op.ID, err)
		}
	}

	if err := store.CreateOperation(ctx, ops[0]); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate id, got %v", err)
	}

	got, err := store.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	if got.UserID != "u1" || got.ModuleID != "m1" || got.Kind != domain.OperationDeploy || got.RequestedBy != "instructor@example.edu" {
		t.Errorf("unexpected operation: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("expected nil CompletedAt, got %v", got.CompletedAt)
	}

	if _, err := store.GetOperation(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := store.ListOperations(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 operations for u1, got %d", len(list))
	}
	if list[0].ID != "op-2" || list[1].ID != "op-1" {
		t.Errorf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}

	page, err := store.ListOperations(ctx, "u1", 1, 1)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(page) != 1 || page[0].ID != "op-1" {
		t.Errorf("unexpected page: %+v", page)
	}

	latest, err := store.GetLatestOperation(ctx, "u1")
	if err != nil {
		t.Fatalf("GetLatestOperation() error = %v", err)
	}
	if latest.ID != "op-2" {
		t.Errorf("expected op-2 as latest, got %s", latest.ID)
	}
	if _, err := store.GetLatestOperation(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}

	done := base.Add(5 * time.Minute)
	update := *ops[0]
	update.Status = domain.OperationFailed
	update.Error = "cluster unreachable"
	update.Image = "example.com/sim@sha256:abc"
	update.CompletedAt = &done
	if err := store.UpdateOperation(ctx, &update); err != nil {
		t.Fatalf("UpdateOperation() error = %v", err)
	}

	got, err = store.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatalf("GetOperation() error = %v", err)
	}
	if got.Status != domain.OperationFailed || got.Error != "cluster unreachable" {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("expected CompletedAt %v, got %v", done, got.CompletedAt)
	}

	missing := domain.Operation{ID: "missing", Status: domain.OperationSuccess}
	if err := store.UpdateOperation(ctx, &missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound updating missing operation, got %v", err)
	}
}
