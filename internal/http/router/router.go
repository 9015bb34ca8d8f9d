package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/device-auth-service/internal/health"
	"github.com/sandeepkv93/device-auth-service/internal/http/handler"
	"github.com/sandeepkv93/device-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/device-auth-service/internal/http/response"
)

const maxBodyBytes = 1 << 20

type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	UserHandler     *handler.UserHandler
	Authenticator   middleware.Authenticator
	Readiness       *health.ProbeRunner
	Logger          *slog.Logger
	MetricsGatherer prometheus.Gatherer
	HTTPMetrics     *middleware.HTTPMetrics
	EnableOTelHTTP  bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	if dep.HTTPMetrics != nil {
		r.Use(dep.HTTPMetrics.Middleware)
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(maxBodyBytes))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})
	if dep.MetricsGatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(dep.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	requireAuth := middleware.AuthMiddleware(dep.Authenticator)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", dep.AuthHandler.Register)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(requireAuth).Post("/logout-all", dep.AuthHandler.LogoutAll)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", dep.UserHandler.Me)
			r.Get("/me/sessions", dep.UserHandler.Sessions)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
