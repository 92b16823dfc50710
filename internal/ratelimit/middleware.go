package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"ratelimiter/internal/models"
)

// Evaluator is the part of Limiter the middleware needs.
type Evaluator interface {
	Evaluate(ctx context.Context, category Category, clientID string) (Result, error)
}

// KeyFunc extracts the client id a request is limited under.
type KeyFunc func(r *http.Request) string

// HeaderKeyFunc keys requests by the named header, falling back to the
// client IP when the header is absent.
func HeaderKeyFunc(header string) KeyFunc {
	return func(r *http.Request) string {
		if header != "" {
			if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
				return id
			}
		}
		return ClientIP(r)
	}
}

// Middleware returns HTTP middleware that admits each request against
// category. Dropped requests get a 429 with Retry-After; limiter failures are
// answered with the status from ErrorStatus.
func Middleware(limiter Evaluator, category Category, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = HeaderKeyFunc("X-Client-ID")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := keyFunc(r)

			res, err := limiter.Evaluate(r.Context(), category, clientID)
			if err != nil {
				status, code := ErrorStatus(err)
				if IsConfigurationError(err) {
					// The guarded category is fixed at wiring time, so a miss is ours.
					status, code = http.StatusInternalServerError, models.ErrorCodeInternalError
				}
				slog.Error("Rate limit check failed",
					"category", string(category),
					"client_id", clientID,
					"error", err,
				)
				writeError(w, status, "Rate limit check failed", code)
				return
			}

			SetHeaders(w, res)

			if !res.Allowed() {
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", models.ErrorCodeRateLimitExceeded)

				slog.Warn("Rate limit exceeded",
					"category", string(category),
					"client_id", clientID,
					"estimate", res.Estimate,
					"quota", res.Quota,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the X-RateLimit-* headers for res, and Retry-After when
// the request was dropped.
func SetHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", res.Quota))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", res.ResetAt.Unix()))
	if !res.Allowed() {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", RetryAfterSeconds(res)))
	}
}

// RetryAfterSeconds rounds res.RetryAfter up to whole seconds, minimum one.
func RetryAfterSeconds(res Result) int {
	secs := int(res.RetryAfter.Seconds())
	if float64(secs) < res.RetryAfter.Seconds() || secs < 1 {
		secs++
	}
	return secs
}

// ErrorStatus maps a limiter error to an HTTP status and error code.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrEmptyClient):
		return http.StatusBadRequest, models.ErrorCodeInvalidRequest
	case IsConfigurationError(err):
		return http.StatusNotFound, models.ErrorCodeUnknownCategory
	case IsDataCorruptionError(err):
		return http.StatusInternalServerError, models.ErrorCodeDataCorruption
	case IsStoreError(err):
		return http.StatusServiceUnavailable, models.ErrorCodeStorageUnavailable
	default:
		return http.StatusInternalServerError, models.ErrorCodeInternalError
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, code))
}

// ClientIP extracts the client IP from the request, checking proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
