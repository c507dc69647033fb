package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/rizonesoft/isotone-sub002/internal/models"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey is the key for storing the authenticated caller in context
	IdentityContextKey contextKey = "identity"

	// RequiredPermissionsContextKey records the permissions a route demanded, for request logs
	RequiredPermissionsContextKey contextKey = "required_permissions"
)

// Authenticator resolves the caller of an API request
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*models.Identity, bool)
}

// RequireCredential authenticates the request with an API credential and
// injects the identity into context. Every failure is the same 401.
func RequireCredential(a Authenticator, padding *RejectionPadding) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			identity, ok := a.Authenticate(r.Context(), r)
			if !ok {
				padding.WaitFrom(start)
				pkghttp.WriteUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects identities lacking the permission with 403.
// Must run after RequireCredential.
func RequirePermission(permission string) func(next http.Handler) http.Handler {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission allows the request when ANY of the permissions is held
func RequireAnyPermission(permissions ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				pkghttp.WriteUnauthorized(w)
				return
			}

			for _, p := range permissions {
				if models.HasPermission(identity.Permissions, p) {
					ctx := context.WithValue(r.Context(), RequiredPermissionsContextKey, permissions)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			pkghttp.WriteForbidden(w, "insufficient permissions")
		})
	}
}

// GetIdentity returns the authenticated caller, or nil
func GetIdentity(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// GetRequiredPermissions returns the permissions the matched route demanded
func GetRequiredPermissions(ctx context.Context) []string {
	perms, _ := ctx.Value(RequiredPermissionsContextKey).([]string)
	return perms
}
