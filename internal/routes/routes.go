package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/rizonesoft/isotone-sub002/internal/auth"
	"github.com/rizonesoft/isotone-sub002/internal/handlers"
	"github.com/rizonesoft/isotone-sub002/internal/middleware"
	"github.com/rizonesoft/isotone-sub002/internal/models"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
)

// Dependencies bundles what RegisterRoutes needs to mount the API
type Dependencies struct {
	Protection  *handlers.ProtectionHandler
	Credentials *handlers.CredentialHandler
	Admin       *handlers.AdminHandler
	Settings    *handlers.SettingsHandler

	Authenticator auth.Authenticator
	Padding       *auth.RejectionPadding
	IPConfig      *pkghttp.IPConfig

	LoginRequestsPerMinute int
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	// Login protection hooks, called by the host application's login flow
	router.Route("/protection/login", func(r chi.Router) {
		r.Use(middleware.RateLimitByClientIP(deps.LoginRequestsPerMinute, deps.IPConfig))
		r.Post("/check", deps.Protection.Check)
		r.Post("/attempts", deps.Protection.RecordAttempt)
	})

	// Everything below requires an API credential
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireCredential(deps.Authenticator, deps.Padding))

		r.Get("/api/v1/identity", deps.Credentials.WhoAmI)

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(models.PermissionCredentialsWrite))
				r.Get("/credentials", deps.Credentials.List)
				r.Post("/credentials", deps.Credentials.Create)
				r.Get("/credentials/{id}", deps.Credentials.Get)
				r.Delete("/credentials/{id}", deps.Credentials.Revoke)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(models.PermissionProtectionRead))
				r.Get("/lists", deps.Admin.ListEntries)
				r.Get("/lockouts", deps.Admin.ActiveLockouts)
				r.Get("/attempts/denied", deps.Admin.DeniedAttempts)
				r.Get("/auth-log", deps.Admin.AuthLog)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(models.PermissionProtectionWrite))
				r.Post("/lists", deps.Admin.AddToList)
				r.Delete("/lists", deps.Admin.RemoveFromList)
				r.Delete("/lockouts", deps.Admin.ClearLockout)
			})

			r.With(auth.RequirePermission(models.PermissionSettingsRead)).Get("/settings", deps.Settings.List)
			r.With(auth.RequirePermission(models.PermissionSettingsWrite)).Put("/settings/{key}", deps.Settings.Update)
		})
	})
}
