package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/validation"
)

// maxBodyBytes bounds request bodies; every request type is a few fields.
const maxBodyBytes = 64 << 10

// respondJSON writes a JSON response. The body is encoded before the header
// is written so an encoding failure can still produce a 500.
func respondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if data != nil {
		if err := json.NewEncoder(&buf).Encode(data); err != nil {
			slog.Error("encoding response failed", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"error","code":"INTERNAL_ERROR","message":"internal server error"}` + "\n"))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// respondError writes the error envelope.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message, cause string) {
	respondJSON(w, status, &domain.ErrorResponse{
		Status:    domain.StatusError,
		Code:      code,
		Message:   message,
		Error:     cause,
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// respondFieldErrors writes a 400 naming the first failing field.
func respondFieldErrors(w http.ResponseWriter, r *http.Request, errs validation.FieldErrors) {
	resp := &domain.ErrorResponse{
		Status:    domain.StatusError,
		Code:      domain.ErrCodeValidationError,
		Message:   "Invalid request",
		Error:     errs.Error(),
		RequestID: chimw.GetReqID(r.Context()),
	}
	if first := errs.First(); first != nil {
		resp.Field = first.Field
		resp.Message = first.Message
	}
	respondJSON(w, http.StatusBadRequest, resp)
}

// handleError converts domain errors to HTTP errors. failCode and
// failMessage describe engine failures for the operation being served.
func handleError(w http.ResponseWriter, r *http.Request, err error, failCode, failMessage string) {
	switch {
	case errors.Is(err, domain.ErrUnknownModule):
		respondError(w, r, http.StatusBadRequest, domain.ErrCodeUnknownModule, "Unknown module", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, r, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid request", err.Error())
	case errors.Is(err, domain.ErrStackNotFound):
		respondError(w, r, http.StatusNotFound, domain.ErrCodeStackNotFound, "Stack not found", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, r, http.StatusNotFound, domain.ErrCodeNotFound, "Not found", err.Error())
	case errors.Is(err, domain.ErrStackBusy):
		respondError(w, r, http.StatusConflict, domain.ErrCodeStackBusy, "Another operation is running on this stack", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, r, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, domain.ErrConvergence):
		respondError(w, r, http.StatusInternalServerError, failCode, failMessage, err.Error())
	default:
		slog.Error("unhandled error", "error", err, "request_id", chimw.GetReqID(r.Context()))
		respondError(w, r, http.StatusInternalServerError, domain.ErrCodeInternalError, "Internal server error", err.Error())
	}
}

// decodeBody validates the request body against schema and decodes it into v.
// It writes the error response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, schema validation.Schema, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Unable to read request body", err.Error())
		return false
	}

	errs, err := validation.ValidateDocument(schema, body)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Request body must be a JSON object", err.Error())
		return false
	}
	if errs.HasErrors() {
		respondFieldErrors(w, r, errs)
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		respondError(w, r, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid request", fmt.Sprintf("decoding request body: %v", err))
		return false
	}
	return true
}
