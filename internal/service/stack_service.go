package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bcnelson/simulation-deployer/internal/auth"
	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/engine"
	"github.com/bcnelson/simulation-deployer/internal/manifest"
	"github.com/bcnelson/simulation-deployer/internal/metrics"
	"github.com/bcnelson/simulation-deployer/internal/storage"
	"github.com/bcnelson/simulation-deployer/internal/validation"
)

// DefaultHistoryLimit is used when History is called without a limit.
const DefaultHistoryLimit = 50

// StackService deploys and destroys per-user simulation stacks.
type StackService struct {
	store   storage.Storage
	builder *manifest.Builder
	engine  engine.Engine
	timeout time.Duration
	logger  *slog.Logger
	locks   *stackLocker
}

// NewStackService creates a new StackService. A zero timeout lets engine
// operations run until they finish or the caller's context ends.
func NewStackService(store storage.Storage, builder *manifest.Builder, eng engine.Engine, timeout time.Duration, logger *slog.Logger) *StackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StackService{
		store:   store,
		builder: builder,
		engine:  eng,
		timeout: timeout,
		logger:  logger,
		locks:   newStackLocker(),
	}
}

// Render builds the manifest for a deploy without touching the engine.
func (s *StackService) Render(userID, moduleID string) (*manifest.Manifest, error) {
	return s.builder.Build(userID, moduleID)
}

// Deploy converges the user's stack to run moduleID.
func (s *StackService) Deploy(ctx context.Context, userID, moduleID string) (*domain.DeployResult, error) {
	m, err := s.builder.Build(userID, moduleID)
	if err != nil {
		return nil, err
	}

	op := &domain.Operation{
		ID:          uuid.New().String(),
		UserID:      userID,
		ModuleID:    moduleID,
		StackName:   m.StackName,
		Kind:        domain.OperationDeploy,
		Status:      domain.OperationPending,
		Image:       m.Image,
		CreatedAt:   time.Now(),
		RequestedBy: requestedBy(ctx),
	}

	var res *engine.Result
	err = s.run(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.engine.Up(ctx, m.StackName, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &domain.DeployResult{
		StackName: m.StackName,
		Outputs:   res.Outputs,
		Summary:   res.Summary,
	}, nil
}

// Destroy tears down the user's stack. It never creates a stack; a user
// without one gets domain.ErrStackNotFound.
func (s *StackService) Destroy(ctx context.Context, userID string) (*domain.DestroyResult, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	stackName := manifest.StackName(userID)
	op := &domain.Operation{
		ID:          uuid.New().String(),
		UserID:      userID,
		StackName:   stackName,
		Kind:        domain.OperationDestroy,
		Status:      domain.OperationPending,
		CreatedAt:   time.Now(),
		RequestedBy: requestedBy(ctx),
	}

	var res *engine.Result
	err := s.run(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.engine.Destroy(ctx, stackName)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &domain.DestroyResult{
		StackName: stackName,
		Summary:   res.Summary,
	}, nil
}

// History returns the user's recorded operations, newest first.
func (s *StackService) History(ctx context.Context, userID string, limit, offset int) ([]*domain.Operation, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListOperations(ctx, userID, limit, offset)
}

// Operation returns one recorded operation by ID.
func (s *StackService) Operation(ctx context.Context, id string) (*domain.Operation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: operation id %q", domain.ErrNotFound, id)
	}
	return s.store.GetOperation(ctx, id)
}

// LatestOperation returns the user's most recent operation.
func (s *StackService) LatestOperation(ctx context.Context, userID string) (*domain.Operation, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return s.store.GetLatestOperation(ctx, userID)
}

// requestedBy names the authenticated caller, preferring the email claim.
func requestedBy(ctx context.Context) string {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return ""
	}
	if p.Email != "" {
		return p.Email
	}
	return p.Subject
}

// run records op, executes fn under the stack lock and records the outcome.
// History write failures are logged and never fail the operation.
func (s *StackService) run(ctx context.Context, op *domain.Operation, fn func(context.Context) error) (err error) {
	logger := s.logger.With("operation", op.Kind, "stack", op.StackName, "operation_id", op.ID)

	unlock, err := s.locks.Lock(ctx, op.StackName)
	if err != nil {
		return fmt.Errorf("%w: waiting for %s: %v", domain.ErrStackBusy, op.StackName, err)
	}
	defer unlock()

	if err := s.store.CreateOperation(ctx, op); err != nil {
		logger.Warn("recording operation failed", "error", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := metrics.StartOperation(op.Kind)
	logger.Info("stack operation started")

	err = classify(fn(ctx))
	done(err)

	now := time.Now()
	op.CompletedAt = &now
	op.Status = domain.OperationSuccess
	if err != nil {
		op.Status = domain.OperationFailed
		op.Error = err.Error()
		logger.Error("stack operation failed", "error", err, "duration", now.Sub(op.CreatedAt))
	} else {
		logger.Info("stack operation finished", "duration", now.Sub(op.CreatedAt))
	}

	// The request context may already be done; the record should still land.
	if err := s.store.UpdateOperation(context.WithoutCancel(ctx), op); err != nil {
		logger.Warn("updating operation record failed", "error", err)
	}

	return err
}

// classify makes sure every engine failure carries a domain error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{domain.ErrStackNotFound, domain.ErrStackBusy, domain.ErrConvergence} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrConvergence, err)
}
