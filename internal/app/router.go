package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sassyweb/storefront/internal/admin"
	"github.com/sassyweb/storefront/internal/audit"
	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/dashboard"
	"github.com/sassyweb/storefront/internal/media"
	"github.com/sassyweb/storefront/internal/observability"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/products"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/storefront"
	"github.com/sassyweb/storefront/internal/users"
	"github.com/sassyweb/storefront/jobs"
	"github.com/sassyweb/storefront/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Sessions *session.Manager
	Guard    auth.Guard
	Metrics  *observability.Metrics

	AdminHandler      *admin.Handler
	AuthHandler       *auth.Handler
	AuditHandler      *audit.Handler
	UsersHandler      *users.Handler
	ProductsHandler   *products.Handler
	MediaHandler      *media.Handler
	DashboardHandler  *dashboard.Handler
	StorefrontHandler *storefront.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with storefront defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   logger,
		Config:   params.Config,
		Sessions: params.Sessions,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}
	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.ProductsHandler != nil {
			r.Route("/products", params.ProductsHandler.MountRoutes)
		}
		r.Route("/admin", func(r chi.Router) {
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.ProductsHandler != nil {
				r.Route("/products", params.ProductsHandler.MountAdminRoutes)
			}
			if params.MediaHandler != nil {
				r.Route("/media", params.MediaHandler.MountRoutes)
				r.Route("/upload", params.MediaHandler.MountUploadRoutes)
			}
			if params.DashboardHandler != nil {
				r.Route("/stats", params.DashboardHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.Guard.RequireRoles(permissions.RoleAdmin))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	if params.AuthHandler != nil {
		r.Get("/login", params.AuthHandler.ShowLogin)
		r.Post("/logout", params.AuthHandler.LogoutForm)
	}
	if params.AdminHandler != nil {
		r.Route("/admin", params.AdminHandler.MountRoutes)
	}
	if params.StorefrontHandler != nil {
		params.StorefrontHandler.MountRoutes(r)
		r.NotFound(params.StorefrontHandler.NotFound)
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler lets browsers keep static assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
