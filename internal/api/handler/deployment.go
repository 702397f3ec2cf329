package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/service"
	"github.com/bcnelson/simulation-deployer/internal/validation"
)

// DeploymentHandler handles deploy, destroy and their read-only companions.
type DeploymentHandler struct {
	stacks *service.StackService
}

// NewDeploymentHandler creates a new DeploymentHandler.
func NewDeploymentHandler(stacks *service.StackService) *DeploymentHandler {
	return &DeploymentHandler{stacks: stacks}
}

// Deploy converges the user's stack to the requested module.
//
// Responses: 200 with outputs and summary; 400 for an invalid body or an
// unknown module; 409 while another operation holds the stack; 500 when
// convergence fails.
func (h *DeploymentHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req domain.DeployRequest
	if !decodeBody(w, r, validation.DeploySchema, &req) {
		return
	}

	if errs := validation.ValidateDeploy(req.UserID, req.ModuleID); errs.HasErrors() {
		respondFieldErrors(w, r, errs)
		return
	}

	res, err := h.stacks.Deploy(r.Context(), req.UserID, req.ModuleID)
	if err != nil {
		handleError(w, r, err, domain.ErrCodeDeployFailed, "Deployment failed")
		return
	}

	respondJSON(w, http.StatusOK, &domain.DeployResponse{
		Status:       domain.StatusSuccess,
		DeployResult: res,
	})
}

// Destroy tears down the user's stack.
//
// Responses: 200 with the update summary; 400 for an invalid body; 404
// (STACK_NOT_FOUND) when the user has no stack, since destroy never creates
// one; 409 while another operation holds the stack; 500 when the engine
// fails to tear it down.
func (h *DeploymentHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	var req domain.DestroyRequest
	if !decodeBody(w, r, validation.DestroySchema, &req) {
		return
	}

	if err := validation.ValidateUserID(req.UserID); err != nil {
		respondFieldErrors(w, r, validation.FieldErrors{
			validation.NewFieldError("user_id", req.UserID, err.Error()),
		})
		return
	}

	res, err := h.stacks.Destroy(r.Context(), req.UserID)
	if err != nil {
		handleError(w, r, err, domain.ErrCodeDestroyFailed, "Destroy failed")
		return
	}

	respondJSON(w, http.StatusOK, &domain.DestroyResponse{
		Status:        domain.StatusSuccess,
		DestroyResult: res,
	})
}

// Manifest renders the resources a deploy would submit, without deploying.
func (h *DeploymentHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	moduleID := r.URL.Query().Get("module_id")

	if errs := validation.ValidateDeploy(userID, moduleID); errs.HasErrors() {
		respondFieldErrors(w, r, errs)
		return
	}

	m, err := h.stacks.Render(userID, moduleID)
	if err != nil {
		handleError(w, r, err, domain.ErrCodeInternalError, "Rendering failed")
		return
	}

	doc, err := m.YAML()
	if err != nil {
		handleError(w, r, err, domain.ErrCodeInternalError, "Rendering failed")
		return
	}

	etag := GenerateETag(doc)
	w.Header().Set("ETag", etag)
	if CheckIfNoneMatch(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("X-Stack-Name", m.StackName)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// History lists the user's recorded operations, newest first.
func (h *DeploymentHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	limit := service.DefaultHistoryLimit
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	ops, err := h.stacks.History(r.Context(), userID, limit, offset)
	if err != nil {
		handleError(w, r, err, domain.ErrCodeInternalError, "Listing operations failed")
		return
	}
	if ops == nil {
		ops = []*domain.Operation{}
	}

	respondJSON(w, http.StatusOK, ops)
}

// Latest returns the user's most recent operation.
func (h *DeploymentHandler) Latest(w http.ResponseWriter, r *http.Request) {
	op, err := h.stacks.LatestOperation(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		handleError(w, r, err, domain.ErrCodeInternalError, "Reading operation failed")
		return
	}
	respondJSON(w, http.StatusOK, op)
}

// Operation returns one recorded operation by ID.
func (h *DeploymentHandler) Operation(w http.ResponseWriter, r *http.Request) {
	op, err := h.stacks.Operation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err, domain.ErrCodeInternalError, "Reading operation failed")
		return
	}
	respondJSON(w, http.StatusOK, op)
}
