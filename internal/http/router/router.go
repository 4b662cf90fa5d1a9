package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/haulstack/console-gateway/internal/guard"
	"github.com/haulstack/console-gateway/internal/health"
	"github.com/haulstack/console-gateway/internal/http/handler"
	"github.com/haulstack/console-gateway/internal/http/middleware"
	"github.com/haulstack/console-gateway/internal/http/response"
	"github.com/haulstack/console-gateway/internal/session"
)

// RoutePolicy gates one console route group behind a role requirement. An
// empty role list means "any authenticated user".
type RoutePolicy struct {
	Path  string
	Roles []string
}

type Dependencies struct {
	SessionHandler *handler.SessionHandler
	Store          *session.Store
	RoutePolicies  []RoutePolicy
	AppHandler     http.Handler
	Readiness      *health.ProbeRunner
	LoginRateLimit int
	EnableOTelHTTP bool
}

func New(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)

	loginLimit := dep.LoginRateLimit
	if loginLimit <= 0 {
		loginLimit = 10
	}
	credentialLimiter := middleware.NewRateLimiter(loginLimit, time.Minute).Middleware()

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

	r.Route("/session", func(r chi.Router) {
		r.With(credentialLimiter).Post("/login", dep.SessionHandler.Login)
		r.With(credentialLimiter).Post("/register", dep.SessionHandler.Register)
		r.With(credentialLimiter).Post("/password/forgot", dep.SessionHandler.ForgotPassword)
		r.With(credentialLimiter).Post("/password/reset", dep.SessionHandler.ResetPassword)
		r.Post("/logout", dep.SessionHandler.Logout)
		r.Post("/refresh", dep.SessionHandler.Refresh)
		r.Post("/activity", dep.SessionHandler.Activity)
		r.Post("/stay", dep.SessionHandler.StayLoggedIn)
		r.Get("/", dep.SessionHandler.Current)
		r.Get("/events", dep.SessionHandler.Events)
		r.Get("/history", dep.SessionHandler.History)
		r.Delete("/history/{session_id}", dep.SessionHandler.RevokeHistorySession)
		r.Get("/sso/login", dep.SessionHandler.SSOLogin)
		r.Get("/sso/callback", dep.SessionHandler.SSOCallback)
	})

	// The login and unauthorized pages must stay reachable without a
	// session, or the guard's redirects would loop.
	r.Get(guard.LoginPath, servePage(loginPage))
	r.Get(guard.UnauthorizedPath, servePage(unauthorizedPage))

	appHandler := dep.AppHandler
	if appHandler == nil {
		appHandler = servePage(appShellPage)
	}
	for _, policy := range dep.RoutePolicies {
		policy := policy
		r.Route(policy.Path, func(r chi.Router) {
			r.Use(guard.Middleware(dep.Store, policy.Roles...))
			r.Handle("/*", appHandler)
			r.Handle("/", appHandler)
		})
	}

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

func servePage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(page))
	}
}

const (
	loginPage        = `<!doctype html><html><head><title>Sign in</title></head><body data-view="login"></body></html>`
	unauthorizedPage = `<!doctype html><html><head><title>Unauthorized</title></head><body data-view="unauthorized">You do not have access to this area.</body></html>`
	appShellPage     = `<!doctype html><html><head><title>Console</title></head><body data-view="app"></body></html>`
)
