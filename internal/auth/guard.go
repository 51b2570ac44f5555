package auth

import (
	"log/slog"
	"net/http"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/session"
)

const (
	msgUnauthorized = "Unauthorized: Please log in first."
	msgForbidden    = "Forbidden: You don't have permission for this action."
)

// Guard turns session state into access decisions for HTTP routes.
type Guard struct {
	Sessions *session.Manager
	Logger   *slog.Logger
}

// RequireRoles admits logged-in users holding one of roles. With no roles
// given only ADMIN is admitted.
func (g Guard) RequireRoles(roles ...permissions.Role) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		roles = []permissions.Role{permissions.RoleAdmin}
	}
	return g.require(func(role permissions.Role) bool {
		for _, allowed := range roles {
			if role == allowed {
				return true
			}
		}
		return false
	})
}

// RequirePermission admits logged-in users whose role may perform action on
// resource according to the permission matrix.
func (g Guard) RequirePermission(resource permissions.Resource, action permissions.Action) func(http.Handler) http.Handler {
	return g.require(func(role permissions.Role) bool {
		return permissions.HasPermission(role, resource, action)
	})
}

func (g Guard) require(allow func(permissions.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := g.Sessions.FromRequest(r)
			if !sess.Authenticated() {
				httpx.Error(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}
			if !allow(sess.Role()) {
				if g.Logger != nil {
					g.Logger.Info("access denied",
						slog.String("user_id", sess.User.ID),
						slog.String("role", string(sess.Role())),
						slog.String("path", r.URL.Path))
				}
				httpx.Error(w, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.ContextWithSession(r.Context(), sess)))
		})
	}
}
