package ratelimit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"accounts-api/internal/observability"
)

// Middleware consumes one point from the policy per request before the
// request proceeds.
func Middleware(limiter *Limiter, policy Policy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		consume(limiter, policy, w, r, next)
	})
}

// GeneralMiddleware applies the policy to all traffic except paths under
// skipPrefix, which are governed by their own policy and must not be charged
// twice.
func GeneralMiddleware(limiter *Limiter, policy Policy, skipPrefix string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipPrefix != "" && strings.HasPrefix(r.URL.Path, skipPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		consume(limiter, policy, w, r, next)
	})
}

func consume(limiter *Limiter, policy Policy, w http.ResponseWriter, r *http.Request, next http.Handler) {
	result, err := limiter.Consume(r.Context(), policy, observability.ClientIP(r))
	if err != nil {
		var exhausted *ExhaustedError
		if errors.As(err, &exhausted) {
			writeExhausted(w, policy, exhausted)
			return
		}

		// A broken limiter is an infrastructure failure, not a quota
		// decision: neither silently allow nor silently block.
		sentry.CaptureException(err)
		writeLimitJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	setRateLimitHeaders(w, result.Limit, result.Remaining, result.ResetAt)
	if result.Remaining == 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secondsUntil(result.ResetAt)))
	}

	next.ServeHTTP(w, r)
}

func writeExhausted(w http.ResponseWriter, policy Policy, exhausted *ExhaustedError) {
	setRateLimitHeaders(w, exhausted.Limit, 0, exhausted.ResetAt)
	retryAfter := int(exhausted.RetryAfter.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	message := policy.Message
	if message == "" {
		message = "Rate limit exceeded, please try again later."
	}

	writeLimitJSON(w, http.StatusTooManyRequests, map[string]any{
		"status":     http.StatusTooManyRequests,
		"error":      "Too Many Requests",
		"message":    message,
		"retryAfter": retryAfter,
	})
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAt time.Time) {
	limitValue := strconv.Itoa(limit)
	remainingValue := strconv.Itoa(remaining)
	resetValue := strconv.FormatInt(resetAt.Unix(), 10)

	w.Header().Set("RateLimit-Limit", limitValue)
	w.Header().Set("RateLimit-Remaining", remainingValue)
	w.Header().Set("RateLimit-Reset", resetValue)

	w.Header().Set("X-RateLimit-Limit", limitValue)
	w.Header().Set("X-RateLimit-Remaining", remainingValue)
	w.Header().Set("X-RateLimit-Reset", resetValue)
}

func secondsUntil(at time.Time) int {
	seconds := int(time.Until(at).Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func writeLimitJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
