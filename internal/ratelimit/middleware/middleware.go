// Package middleware applies the per-caller request limit to authenticated
// routes.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"reyu/internal/ratelimit/models"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/requestcontext"
)

type Store interface {
	Allow(ctx context.Context, key string, policy models.Policy) (models.Result, error)
}

type Middleware struct {
	store  Store
	policy models.Policy
	logger *slog.Logger
}

func New(store Store, policy models.Policy, logger *slog.Logger) *Middleware {
	return &Middleware{store: store, policy: policy, logger: logger}
}

// PerUser limits each authenticated user. It must run after auth.RequireAuth.
// Store failures let the request through.
func (m *Middleware) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := requestcontext.UserID(ctx)
		if userID.IsNil() {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.store.Allow(ctx, "user:"+userID.String(), m.policy)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retry := int(math.Ceil(result.RetryAfter(time.Now()).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"user_id", userID.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
