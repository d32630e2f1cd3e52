package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/htmlshot/htmlshot/internal/api/middleware"
	"github.com/htmlshot/htmlshot/internal/api/response"
	"github.com/htmlshot/htmlshot/internal/ratelimit"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	LoginHandler          http.HandlerFunc
	RegisterHandler       http.HandlerFunc
	LogoutHandler         http.HandlerFunc
	MeHandler             http.HandlerFunc
	ChangePasswordHandler http.HandlerFunc

	ConvertHandler http.HandlerFunc

	ListConversionsHandler  http.HandlerFunc
	DeleteConversionHandler http.HandlerFunc

	CreateKeyHandler     http.HandlerFunc
	ListKeysHandler      http.HandlerFunc
	DeactivateKeyHandler http.HandlerFunc

	AdminListUsersHandler        http.HandlerFunc
	AdminCreateUserHandler       http.HandlerFunc
	AdminDeleteUserHandler       http.HandlerFunc
	AdminListInvitationsHandler  http.HandlerFunc
	AdminCreateInvitationHandler http.HandlerFunc
	AdminDeleteInvitationHandler http.HandlerFunc
	AdminGetSettingsHandler      http.HandlerFunc
	AdminUpdateSettingsHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
// Rate-limit checks run before credential resolution: both are cheap, and
// rejected attempts are meant to consume quota.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Auth endpoints: stricter window, no credentials needed.
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit(ratelimit.ClassAuth))

		r.Post("/api/v1/auth/login", orNotImplemented(deps.LoginHandler))
		r.Post("/api/v1/auth/register", orNotImplemented(deps.RegisterHandler))
	})

	// Authenticated endpoints. The class limiter keys on client address,
	// so it runs before credential resolution: over-quota callers are
	// rejected without touching the key store.
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit(ratelimit.ClassConvert))
		r.Use(deps.Auth.Resolve)
		r.Use(mw.RequireAuth)

		r.Post("/api/v1/convert", orNotImplemented(deps.ConvertHandler))
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit(ratelimit.ClassAPI))
		r.Use(deps.Auth.Resolve)
		r.Use(mw.RequireAuth)

		r.Post("/api/v1/auth/logout", orNotImplemented(deps.LogoutHandler))
		r.Get("/api/v1/auth/me", orNotImplemented(deps.MeHandler))
		r.Post("/api/v1/auth/change-password", orNotImplemented(deps.ChangePasswordHandler))

		r.Get("/api/v1/conversions", orNotImplemented(deps.ListConversionsHandler))
		r.Delete("/api/v1/conversions/{id}", orNotImplemented(deps.DeleteConversionHandler))

		r.Post("/api/v1/keys", orNotImplemented(deps.CreateKeyHandler))
		r.Get("/api/v1/keys", orNotImplemented(deps.ListKeysHandler))
		r.Delete("/api/v1/keys/{id}", orNotImplemented(deps.DeactivateKeyHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdmin)

			r.Get("/api/v1/admin/users", orNotImplemented(deps.AdminListUsersHandler))
			r.Post("/api/v1/admin/users", orNotImplemented(deps.AdminCreateUserHandler))
			r.Delete("/api/v1/admin/users/{id}", orNotImplemented(deps.AdminDeleteUserHandler))

			r.Get("/api/v1/admin/invitations", orNotImplemented(deps.AdminListInvitationsHandler))
			r.Post("/api/v1/admin/invitations", orNotImplemented(deps.AdminCreateInvitationHandler))
			r.Delete("/api/v1/admin/invitations/{id}", orNotImplemented(deps.AdminDeleteInvitationHandler))

			r.Get("/api/v1/admin/settings", orNotImplemented(deps.AdminGetSettingsHandler))
			r.Put("/api/v1/admin/settings", orNotImplemented(deps.AdminUpdateSettingsHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
