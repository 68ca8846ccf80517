// Package httpapi assembles the public router: the request middleware stack,
// health and metrics endpoints, and the authenticated module routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reyu/internal/platform/metrics"
	"reyu/internal/platform/middleware"
	"reyu/pkg/platform/httputil"
	"reyu/pkg/platform/middleware/admin"
	"reyu/pkg/platform/middleware/auth"
	"reyu/pkg/platform/middleware/requesttime"
)

// Module mounts routes for any authenticated caller.
type Module interface {
	Register(r chi.Router)
}

// AdminModule is implemented by modules that also expose admin-only routes.
type AdminModule interface {
	RegisterAdmin(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	Validator      auth.JWTValidator
	AllowedOrigins []string
	Metrics        *metrics.HTTP
	HealthChecks   map[string]HealthCheck
	// RateLimit runs after authentication so it can key on the user.
	RateLimit func(http.Handler) http.Handler
}

const healthTimeout = 2 * time.Second

// NewRouter wires every module behind bearer authentication. Admin routes sit
// in a nested group that additionally requires the admin role.
func NewRouter(cfg Config, modules ...Module) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(requesttime.Middleware)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthz(cfg.HealthChecks, logger))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, logger))
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		for _, m := range modules {
			m.Register(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdmin(logger))
			for _, m := range modules {
				if am, ok := m.(AdminModule); ok {
					am.RegisterAdmin(r)
				}
			}
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for _, name := range names {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(names))
			}
			if err := checks[name](ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
