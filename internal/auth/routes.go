package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edduval373/aisentinel-sub002/internal/middleware"
	"github.com/edduval373/aisentinel-sub002/internal/roles"
)

func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Post("/request-verification", h.RequestVerification)
	r.Get("/verify-email", h.VerifyEmail)
	r.Post("/verify-email", h.VerifyEmail)
	r.Post("/dev-login", h.DevLogin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(h.Verifier, h.Log))
		r.Get("/me", h.Me)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.Verifier, h.Log))
		if h.Limiter != nil {
			r.Use(middleware.DemoRateLimit(h.Limiter))
		}
		r.Post("/logout", h.Logout)
		r.Post("/logout-all", h.LogoutAll)
		r.Get("/capabilities", h.Capabilities)
		r.Post("/test-role", h.SetTestRole)
		r.Delete("/test-role", h.SetTestRole)

		r.With(middleware.RequireRole(roles.Administrator)).
			Post("/users/{userID}/revoke-sessions", h.RevokeUserSessions)
	})

	return r
}
