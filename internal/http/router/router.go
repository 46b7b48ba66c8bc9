package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/security-monitoring-service/internal/health"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/handler"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/middleware"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/response"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	SessionHandler   *handler.SessionHandler
	SecurityHandler  *handler.SecurityHandler
	Tokens           middleware.AccessTokenParser
	Sessions         middleware.SessionValidator
	Gate             middleware.AccessChecker
	Monitor          middleware.OperationMonitor
	Logger           *slog.Logger
	LoginRateLimiter func(http.Handler) http.Handler
	LoginRateLimit   int
	Readiness        *health.ProbeRunner
	EnableOTelHTTP   bool

	// TrustForwardedHeaders rewrites RemoteAddr from proxy headers before any IP check.
	TrustForwardedHeaders bool
	// RequestTimeout bounds every store call made while serving a request.
	RequestTimeout time.Duration
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	if dep.TrustForwardedHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Recoverer)
	if dep.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(dep.RequestTimeout))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))

	loginLimiter := dep.LoginRateLimiter
	if loginLimiter == nil {
		loginLimiter = middleware.NewRateLimiter(dep.LoginRateLimit, time.Minute).Middleware()
	}

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

	authenticated := []func(http.Handler) http.Handler{
		middleware.AuthMiddleware(dep.Tokens, dep.Sessions),
		middleware.RequireAccess(dep.Gate),
		middleware.TrackOperations(dep.Monitor, dep.Logger),
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(loginLimiter, middleware.RequireAccess(dep.Gate)).Post("/register", dep.AuthHandler.Register)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(authenticated...)
			r.Get("/sessions", dep.SessionHandler.List)
			r.Delete("/sessions/{ref}", dep.SessionHandler.Revoke)
			r.Post("/sessions/revoke-others", dep.SessionHandler.RevokeOthers)
			r.Post("/password", dep.AuthHandler.ChangePassword)
		})

		r.Route("/admin/security", func(r chi.Router) {
			r.Use(authenticated...)
			r.Use(middleware.RequireAdmin)
			r.Get("/metrics", dep.SecurityHandler.Metrics)
			r.Get("/events", dep.SecurityHandler.Events)
			r.Get("/export", dep.SecurityHandler.Export)
			r.Get("/report", dep.SecurityHandler.Report)
			r.Post("/anomalies", dep.SecurityHandler.ReportAnomaly)
			r.Get("/responses", dep.SecurityHandler.Responses)
			r.Get("/lockdown", dep.SecurityHandler.LockdownStatus)
			r.Post("/lockdown", dep.SecurityHandler.ActivateLockdown)
			r.Delete("/lockdown", dep.SecurityHandler.DeactivateLockdown)
			r.Get("/ip-blocks", dep.SecurityHandler.BlockedIPs)
			r.Delete("/ip-blocks/{ip}", dep.SecurityHandler.UnblockIP)
			r.Post("/accounts/{id}/unlock", dep.SecurityHandler.UnlockAccount)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
