package handler

import (
	"net/http"

	"github.com/bcnelson/simulation-deployer/internal/domain"
)

// ModuleLister lists the deployable module IDs.
type ModuleLister interface {
	Modules() []string
}

// ModuleHandler serves the module catalogue.
type ModuleHandler struct {
	modules ModuleLister
}

// NewModuleHandler creates a new ModuleHandler.
func NewModuleHandler(modules ModuleLister) *ModuleHandler {
	return &ModuleHandler{modules: modules}
}

// List returns the known module IDs in sorted order.
func (h *ModuleHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := []string{}
	if h.modules != nil {
		if m := h.modules.Modules(); m != nil {
			ids = m
		}
	}
	respondJSON(w, http.StatusOK, &domain.ModulesResponse{Modules: ids})
}
