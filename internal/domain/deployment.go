package domain

import "time"

// DeployRequest is the request body for POST /deploy.
type DeployRequest struct {
	UserID   string `json:"user_id"`
	ModuleID string `json:"module_id"`
	// StackName is accepted for compatibility with older clients and ignored;
	// the stack is always derived from UserID.
	StackName string `json:"stackName,omitempty"`
}

// DestroyRequest is the request body for POST /destroy.
type DestroyRequest struct {
	UserID string `json:"user_id"`
}

// Summary is the engine's report for one stack operation.
type Summary struct {
	Kind            string         `json:"kind,omitempty"`
	Result          string         `json:"result"`
	Message         string         `json:"message,omitempty"`
	Version         int            `json:"version,omitempty"`
	ResourceChanges map[string]int `json:"resource_changes,omitempty"`
	StartedAt       string         `json:"started_at,omitempty"`
	EndedAt         string         `json:"ended_at,omitempty"`
}

// DeployResult is returned after a successful deploy.
type DeployResult struct {
	StackName string         `json:"stackName"`
	Outputs   map[string]any `json:"outputs"`
	Summary   Summary        `json:"summary"`
}

// DestroyResult is returned after a successful teardown.
type DestroyResult struct {
	StackName string  `json:"stackName"`
	Summary   Summary `json:"summary"`
}

// DeployResponse is the success envelope for POST /deploy.
type DeployResponse struct {
	Status string `json:"status"`
	*DeployResult
}

// DestroyResponse is the success envelope for POST /destroy.
type DestroyResponse struct {
	Status string `json:"status"`
	*DestroyResult
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Operation kinds.
const (
	OperationDeploy  = "deploy"
	OperationDestroy = "destroy"
)

// Operation status values.
const (
	OperationPending = "pending"
	OperationSuccess = "success"
	OperationFailed  = "failed"
)

// Operation records one deploy or destroy attempt against a stack.
// Used as an audit trail since the engine owns the stack state itself.
type Operation struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	ModuleID    string     `json:"module_id,omitempty" db:"module_id"`
	StackName   string     `json:"stack_name" db:"stack_name"`
	Kind        string     `json:"kind" db:"kind"`     // "deploy", "destroy"
	Status      string     `json:"status" db:"status"` // "pending", "success", "failed"
	Image       string     `json:"image,omitempty" db:"image"`
	Error       string     `json:"error,omitempty" db:"error"`
	RequestedBy string     `json:"requested_by,omitempty" db:"requested_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ModulesResponse lists the modules that can be deployed.
type ModulesResponse struct {
	Modules []string `json:"modules"`
}
