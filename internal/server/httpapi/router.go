package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterOptions configure the cross-cutting middleware.
type RouterOptions struct {
	AllowedOrigins []string
	RequestsPerMin int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready backs /readyz, typically a store ping.
	Ready       func(ctx context.Context) error
	ServiceName string
}

// NewRouter builds the HTTP handler with health, readiness, metrics and the
// account routes under /api/v1/users.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// credentialed requests only from origins named in config
	allowed, credentials := opts.AllowedOrigins, true
	if len(allowed) == 0 {
		allowed, credentials = []string{"*"}, false
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: credentials,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	if opts.RequestsPerMin > 0 {
		r.Use(httprate.LimitByIP(opts.RequestsPerMin, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(r.Context()); err != nil {
				h.log.Warn(r.Context(), "readiness check failed", "error", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/verify-email", h.verifyEmail)
		r.Post("/resend-verification", h.resendVerification)
		r.Post("/login", h.login)
		r.Post("/refresh-token", h.refreshToken)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.Post("/confirm-email-change", h.confirmEmailChange)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Post("/logout", h.logout)
			r.Get("/me", h.me)
			r.Patch("/me", h.updateProfile)
			r.Patch("/me/avatar", h.updateAvatar)
			r.Post("/me/change-password", h.changePassword)
			r.Post("/me/change-email", h.changeEmail)
			r.Get("/others", h.others)
		})
	})

	name := opts.ServiceName
	if name == "" {
		name = "erpkeeper"
	}
	return otelhttp.NewHandler(r, name)
}
