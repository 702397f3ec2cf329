package domain

import "errors"

// Common errors used throughout the application.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUnknownModule = errors.New("unknown module")
	ErrStackNotFound = errors.New("stack not found")
	ErrStackBusy     = errors.New("stack operation already in progress")
	ErrConvergence   = errors.New("stack operation failed")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrAlreadyExists = errors.New("already exists")
)

// Error codes for standardized API error responses.
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeValidationError = "VALIDATION_ERROR"
	ErrCodeUnknownModule   = "UNKNOWN_MODULE"
	ErrCodeStackNotFound   = "STACK_NOT_FOUND"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeStackBusy       = "STACK_BUSY"
	ErrCodeDeployFailed    = "DEPLOYMENT_FAILED"
	ErrCodeDestroyFailed   = "DESTROY_FAILED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// Response status values used in every envelope.
const (
	StatusOK      = "ok"
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrorResponse is the JSON envelope returned for every failed request.
// Message is a short human description, Error carries the underlying cause.
type ErrorResponse struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
