// Package httpapi exposes the authentication engine as a JSON HTTP service.
// Handlers stay thin: they decode, delegate to the engine, and map errors
// onto statuses. All policy lives in the engine.
package httpapi

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	gradauth "github.com/MrEthical07/gradauth"
	"github.com/MrEthical07/gradauth/metrics/export/prometheus"
	"github.com/MrEthical07/gradauth/middleware"
)

// Config defines a public type used by gradauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// ExposeDevTokens echoes issued one-time tokens in responses. Development
	// only; the engine's ProductionMode validation forbids it.
	ExposeDevTokens bool
	// EnableMetrics mounts the Prometheus exporter at /metrics.
	EnableMetrics bool
}

// Server defines a public type used by gradauth APIs.
//
// Server instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Server struct {
	engine *gradauth.Engine
	config Config
	router chi.Router
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(engine *gradauth.Engine, cfg Config) *Server {
	s := &Server{
		engine: engine,
		config: cfg,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler describes the handler operation and its observable behavior.
//
// Handler may return an error when input validation, dependency calls, or security checks fail.
// Handler does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(clientIPContext)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/google", s.handleGoogle)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/request-email-verification", s.handleRequestEmailVerification)
		r.Post("/verify-email", s.handleVerifyEmail)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine, false))
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
			r.Post("/change-password", s.handleChangePassword)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(s.engine, true))
		r.Patch("/admin/users/{id}/role", s.handleUpdateRole)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.config.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", prometheus.NewPrometheusExporter(s.engine).Handler())
	}
}

// clientIPContext copies the transport-level client IP into the engine's
// context slot so rate limiting and audit see the same actor.
func clientIPContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(gradauth.WithClientIP(r.Context(), ip)))
	})
}
