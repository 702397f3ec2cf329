package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pulumi/pulumi/sdk/v3/go/auto"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optdestroy"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optup"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/logging"
	"github.com/bcnelson/simulation-deployer/internal/manifest"
)

// PulumiConfig configures the Pulumi automation engine.
type PulumiConfig struct {
	ProjectName string
	BackendURL  string
	Passphrase  string

	ClusterProject  string
	ClusterLocation string
	ClusterName     string

	// RemoveStackOnDestroy deletes the stack record after a successful destroy.
	RemoveStackOnDestroy bool
}

// Pulumi converges stacks with the Pulumi Automation API using an inline
// program, so no Pulumi project directory is needed on disk.
type Pulumi struct {
	cfg    PulumiConfig
	logger *slog.Logger
}

// Ensure Pulumi implements Engine.
var _ Engine = (*Pulumi)(nil)

// NewPulumi creates a new Pulumi engine.
func NewPulumi(cfg PulumiConfig, logger *slog.Logger) *Pulumi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pulumi{cfg: cfg, logger: logger}
}

// Up creates or selects the stack and converges it to m.
func (p *Pulumi) Up(ctx context.Context, stackName string, m *manifest.Manifest) (*Result, error) {
	doc, err := m.YAML()
	if err != nil {
		return nil, fmt.Errorf("%w: rendering manifest: %v", domain.ErrConvergence, err)
	}

	stack, err := auto.UpsertStackInlineSource(ctx, stackName, p.cfg.ProjectName, p.program(m, doc), p.workspaceOptions()...)
	if err != nil {
		return nil, classify("preparing stack", err)
	}

	if err := p.configure(ctx, stack); err != nil {
		return nil, classify("configuring stack", err)
	}

	progress := logging.NewWriter(p.logger.With("stack", stackName), "pulumi up")
	defer progress.Flush()

	p.logger.Info("starting stack update", "stack", stackName, "image", m.Image)
	res, err := stack.Up(ctx, optup.ProgressStreams(progress))
	if err != nil {
		return nil, classify("update", err)
	}

	return &Result{
		Outputs: outputValues(res.Outputs),
		Summary: summarize(res.Summary),
	}, nil
}

// Destroy selects an existing stack and tears down all of its resources.
// The stack is never created here.
func (p *Pulumi) Destroy(ctx context.Context, stackName string) (*Result, error) {
	stack, err := auto.SelectStackInlineSource(ctx, stackName, p.cfg.ProjectName, emptyProgram, p.workspaceOptions()...)
	if err != nil {
		return nil, classify("selecting stack", err)
	}

	progress := logging.NewWriter(p.logger.With("stack", stackName), "pulumi destroy")
	defer progress.Flush()

	p.logger.Info("starting stack destroy", "stack", stackName)
	res, err := stack.Destroy(ctx, optdestroy.ProgressStreams(progress))
	if err != nil {
		return nil, classify("destroy", err)
	}

	if p.cfg.RemoveStackOnDestroy {
		if err := stack.Workspace().RemoveStack(ctx, stackName); err != nil {
			// The resources are gone; a leftover stack record is harmless.
			p.logger.Warn("removing stack record failed", "stack", stackName, "error", err)
		}
	}

	return &Result{
		Outputs: map[string]any{},
		Summary: summarize(res.Summary),
	}, nil
}

func (p *Pulumi) workspaceOptions() []auto.LocalWorkspaceOption {
	env := map[string]string{}
	if p.cfg.BackendURL != "" {
		env["PULUMI_BACKEND_URL"] = p.cfg.BackendURL
	}
	if p.cfg.Passphrase != "" {
		env["PULUMI_CONFIG_PASSPHRASE"] = p.cfg.Passphrase
	}
	if len(env) == 0 {
		return nil
	}
	return []auto.LocalWorkspaceOption{auto.EnvVars(env)}
}

func (p *Pulumi) configure(ctx context.Context, stack auto.Stack) error {
	if p.cfg.ClusterProject != "" {
		if err := stack.SetConfig(ctx, "gcp:project", auto.ConfigValue{Value: p.cfg.ClusterProject}); err != nil {
			return err
		}
	}
	if p.cfg.ClusterLocation != "" {
		if err := stack.SetConfig(ctx, locationConfigKey(p.cfg.ClusterLocation), auto.ConfigValue{Value: p.cfg.ClusterLocation}); err != nil {
			return err
		}
	}
	return nil
}

// locationConfigKey returns the provider setting for a GKE location: zones
// such as us-central1-c carry a suffix after the region, regions do not.
func locationConfigKey(location string) string {
	if strings.Count(location, "-") >= 2 {
		return "gcp:zone"
	}
	return "gcp:region"
}

// emptyProgram satisfies SelectStackInlineSource for destroy, which works
// from recorded state and does not run the program.
func emptyProgram(*pulumi.Context) error {
	return nil
}

// classify maps an automation error onto the domain errors.
func classify(op string, err error) error {
	switch {
	case auto.IsSelectStack404Error(err):
		return fmt.Errorf("%w: %s", domain.ErrStackNotFound, err)
	case auto.IsConcurrentUpdateError(err):
		return fmt.Errorf("%w: %s", domain.ErrStackBusy, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s timed out: %v", domain.ErrConvergence, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", domain.ErrConvergence, op, err)
	}
}

func outputValues(outputs auto.OutputMap) map[string]any {
	values := make(map[string]any, len(outputs))
	for k, v := range outputs {
		if v.Secret {
			values[k] = "[secret]"
			continue
		}
		values[k] = v.Value
	}
	return values
}

func summarize(s auto.UpdateSummary) domain.Summary {
	summary := domain.Summary{
		Kind:      s.Kind,
		Result:    s.Result,
		Message:   strings.TrimSpace(s.Message),
		Version:   s.Version,
		StartedAt: normalizeTime(s.StartTime),
	}
	if s.EndTime != nil {
		summary.EndedAt = normalizeTime(*s.EndTime)
	}
	if s.ResourceChanges != nil {
		summary.ResourceChanges = make(map[string]int, len(*s.ResourceChanges))
		for op, n := range *s.ResourceChanges {
			summary.ResourceChanges[op] = n
		}
	}
	return summary
}

// normalizeTime converts engine timestamps to RFC 3339 UTC, leaving
// unparseable values untouched.
func normalizeTime(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999 -0700 MST"} {
		if t, err := time.Parse(layout, value); err == nil {
			return timestamp(t)
		}
	}
	return value
}
