package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
)

// NewRateLimiter builds a per-IP request limiter. The teacher's go.mod
// already declared tollbooth/v7 but never wired it in (its own rate-limit
// middleware was a header-only placeholder); this wires the real library in
// its place, keyed on IP rather than API key since spec.md has no
// multi-tenant/API-key concept.
func NewRateLimiter(requestsPerSecond float64) *limiter.Limiter {
	lmt := tollbooth.NewLimiter(requestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})
	lmt.SetMessage(`{"error":"rate limit exceeded"}`)
	lmt.SetMessageContentType("application/json")
	return lmt
}

// RateLimitMiddleware wraps next with tollbooth's per-IP limiter.
func RateLimitMiddleware(lmt *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(lmt, next)
	}
}

// LoggingMiddleware logs method, path, status, and duration for every
// request. Grounded on the teacher's middleware.go LoggingMiddleware
// (same responseWriter-wrapping shape to capture the status code).
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if r.URL.Path != "/health" {
			log.Printf("%s %s %d %v", r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
