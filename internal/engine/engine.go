// Package engine drives the infrastructure-as-code engine that converges
// per-user stacks. Pulumi is used in production; FileShim renders stacks to
// disk for local runs and tests.
package engine

import (
	"context"
	"time"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/manifest"
)

// Engine converges and tears down named stacks.
//
// Up creates the stack when it does not exist. Destroy never creates a
// stack and returns domain.ErrStackNotFound when there is nothing to tear
// down. Other failures wrap domain.ErrConvergence, or domain.ErrStackBusy
// when the engine reports a concurrent update.
type Engine interface {
	Up(ctx context.Context, stackName string, m *manifest.Manifest) (*Result, error)
	Destroy(ctx context.Context, stackName string) (*Result, error)
}

// Result is the engine's report for a completed operation.
type Result struct {
	Outputs map[string]any
	Summary domain.Summary
}

// Output keys exported by every deployed stack.
const (
	OutputDeploymentName = "deploymentName"
	OutputServiceName    = "serviceName"
	OutputRouteName      = "routeName"
	OutputImage          = "image"
	OutputNamespace      = "namespace"
)

// ResultSucceeded is the summary result of a completed shim operation.
const ResultSucceeded = "succeeded"

// Outputs returns the values a stack exports for m.
func Outputs(m *manifest.Manifest) map[string]any {
	return map[string]any{
		OutputDeploymentName: m.Deployment.Name,
		OutputServiceName:    m.Service.Name,
		OutputRouteName:      m.Route.Name,
		OutputImage:          m.Image,
		OutputNamespace:      m.Namespace,
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
