package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/bcnelson/simulation-deployer/internal/domain"
)

// RateLimit rejects requests beyond a shared token bucket with 429.
// A zero limit disables limiting.
func RateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		limiter := rate.NewLimiter(limit, burst)
		retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/float64(limit)))))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, r, http.StatusTooManyRequests, domain.ErrCodeRateLimited, domain.ErrRateLimited.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
