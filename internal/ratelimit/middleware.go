package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/platform/httputil"
	"legitify/pkg/requestcontext"
)

// Middleware enforces the limiter for the authenticated principal. Store
// failures are logged and the request proceeds.
func Middleware(limiter *Limiter, metrics *Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			principal, err := httputil.RequirePrincipal(ctx, logger)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			result, err := limiter.Allow(ctx, principal.UserID)
			if err != nil {
				if metrics != nil {
					metrics.StoreErrors.Inc()
				}
				logger.WarnContext(ctx, "rate limit check failed, allowing request",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				if metrics != nil {
					metrics.Rejections.Inc()
				}
				logger.InfoContext(ctx, "verification rate limit exceeded",
					"user_id", principal.UserID,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many verification requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(result Result) int {
	return int(math.Ceil(result.RetryAfter.Seconds()))
}
