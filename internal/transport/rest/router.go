package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/employee-management/internal/transport/middleware"
	"github.com/frahmantamala/employee-management/internal/transport/swagger"
	"github.com/frahmantamala/employee-management/pkg/metrics"
)

type RouterConfig struct {
	AllowedOrigins string
	MetricsPath    string
	// OpenAPI is served at /openapi.yml for the swagger UI when set.
	OpenAPI []byte
}

func RegisterAllRoutes(router *chi.Mux, cfg RouterConfig, health *HealthHandler, data *Dispatcher, registry *metrics.Registry, logger *slog.Logger) {
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	if registry != nil {
		router.Use(middleware.Metrics(registry))
		router.Handle(cfg.MetricsPath, registry.Handler())
	}

	if len(cfg.OpenAPI) > 0 {
		router.Get(swagger.DocumentPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(cfg.OpenAPI)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.Health)
		r.Get("/ping", health.Ping)
	})

	router.Handle("/api/data", data)
}
