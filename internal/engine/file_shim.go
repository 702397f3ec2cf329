package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/manifest"
)

// FileShim is a testing implementation that writes each stack's rendered
// manifest to <dir>/<stack>.yaml instead of touching a cluster.
type FileShim struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	versions map[string]int
}

// Ensure FileShim implements Engine.
var _ Engine = (*FileShim)(nil)

// NewFileShim creates a new file-based engine rooted at dir.
func NewFileShim(dir string, logger *slog.Logger) *FileShim {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileShim{
		dir:      dir,
		logger:   logger,
		versions: make(map[string]int),
	}
}

// Path returns the file a stack is written to.
func (f *FileShim) Path(stackName string) string {
	return filepath.Join(f.dir, stackName+".yaml")
}

// Up writes the rendered manifest for the stack.
func (f *FileShim) Up(ctx context.Context, stackName string, m *manifest.Manifest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConvergence, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()

	data, err := m.YAML()
	if err != nil {
		return nil, fmt.Errorf("%w: rendering manifest: %v", domain.ErrConvergence, err)
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating stack directory: %v", domain.ErrConvergence, err)
	}

	path := f.Path(stackName)
	change := "create"
	if existing, err := os.ReadFile(path); err == nil {
		change = "update"
		if bytes.Equal(existing, data) {
			change = "same"
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: reading stack file: %v", domain.ErrConvergence, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("%w: writing stack file: %v", domain.ErrConvergence, err)
	}

	f.versions[stackName]++
	version := f.versions[stackName]

	f.logger.Info("file shim wrote stack", "stack", stackName, "path", path, "change", change)

	return &Result{
		Outputs: Outputs(m),
		Summary: domain.Summary{
			Kind:            "update",
			Result:          ResultSucceeded,
			Version:         version,
			ResourceChanges: map[string]int{change: len(m.Objects())},
			StartedAt:       timestamp(start),
			EndedAt:         timestamp(time.Now()),
		},
	}, nil
}

// Destroy removes the stack's file. A missing file means the stack does not exist.
func (f *FileShim) Destroy(ctx context.Context, stackName string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConvergence, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	path := f.Path(stackName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no stack named %q", domain.ErrStackNotFound, stackName)
		}
		return nil, fmt.Errorf("%w: reading stack file: %v", domain.ErrConvergence, err)
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("%w: removing stack file: %v", domain.ErrConvergence, err)
	}

	f.versions[stackName]++
	version := f.versions[stackName]

	f.logger.Info("file shim removed stack", "stack", stackName, "path", path)

	return &Result{
		Outputs: map[string]any{},
		Summary: domain.Summary{
			Kind:            "destroy",
			Result:          ResultSucceeded,
			Version:         version,
			ResourceChanges: map[string]int{"delete": countDocuments(data)},
			StartedAt:       timestamp(start),
			EndedAt:         timestamp(time.Now()),
		},
	}, nil
}

func countDocuments(data []byte) int {
	if len(bytes.TrimSpace(data)) == 0 {
		return 0
	}
	return bytes.Count(data, []byte("\n---\n")) + 1
}
