package sql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Ensure Store implements storage.Storage.
var _ storage.Storage = (*Store)(nil)

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if driver == "sqlite3" {
		// A single writer avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const operationColumns = `id, user_id, module_id, stack_name, kind, status, image, error, requested_by, created_at, completed_at`

func (s *Store) CreateOperation(ctx context.Context, op *domain.Operation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (`+operationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		op.ID, op.UserID, op.ModuleID, op.StackName, op.Kind, op.Status,
		op.Image, op.Error, op.RequestedBy, op.CreatedAt, op.CompletedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetOperation(ctx context.Context, id string) (*domain.Operation, error) {
	var op domain.Operation
	err := s.db.GetContext(ctx, &op,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *Store) GetLatestOperation(ctx context.Context, userID string) (*domain.Operation, error) {
	var op domain.Operation
	err := s.db.GetContext(ctx, &op,
		`SELECT `+operationColumns+` FROM operations WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT 1`, userID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// ListOperations returns a user's operations, newest first.
func (s *Store) ListOperations(ctx context.Context, userID string, limit, offset int) ([]*domain.Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	ops := []*domain.Operation{}
	err := s.db.SelectContext(ctx, &ops,
		`SELECT `+operationColumns+` FROM operations WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	return ops, err
}

func (s *Store) UpdateOperation(ctx context.Context, op *domain.Operation) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE operations SET status = $1, image = $2, error = $3, completed_at = $4 WHERE id = $5`,
		op.Status, op.Image, op.Error, op.CompletedAt, op.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
