package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bcnelson/simulation-deployer/internal/auth"
	"github.com/bcnelson/simulation-deployer/internal/domain"
)

// Auth creates authentication middleware. A nil verifier leaves the
// routes open.
func Auth(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract the token from the Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, r, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				unauthorized(w, r, "invalid authorization header format")
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				unauthorized(w, r, "empty bearer token")
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Warn("rejected credentials", "path", r.URL.Path, "error", err, "request_id", chimw.GetReqID(r.Context()))
				unauthorized(w, r, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="simulation-deployer"`)
	writeError(w, r, http.StatusUnauthorized, domain.ErrCodeUnauthorized, message)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&domain.ErrorResponse{
		Status:    domain.StatusError,
		Code:      code,
		Message:   message,
		RequestID: chimw.GetReqID(r.Context()),
	})
}
