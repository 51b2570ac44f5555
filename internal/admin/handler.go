// Package admin renders the server-side back office. Every route is guarded
// by the permission matrix and templates use the same matrix, through the
// "can" function, to decide which controls to show.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/dashboard"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/products"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/shared"
	"github.com/sassyweb/storefront/internal/users"
	"github.com/sassyweb/storefront/internal/view"
)

// Products is the product service as the back office uses it.
type Products interface {
	ListAll(ctx context.Context, q products.ListQuery) ([]products.Product, error)
	Get(ctx context.Context, id string, staff bool) (products.Product, error)
	Create(ctx context.Context, actorID string, in products.Input) (products.Product, error)
	Update(ctx context.Context, actorID, id string, patch products.Patch) (products.Product, error)
	Delete(ctx context.Context, actorID, id string) error
}

// Users is the account service as the back office uses it.
type Users interface {
	ListUsers(ctx context.Context) ([]users.User, error)
	GetUser(ctx context.Context, id string) (users.User, error)
	CreateUser(ctx context.Context, actorID string, in users.CreateInput) (users.User, error)
	UpdateRole(ctx context.Context, actorID, userID string, in users.RoleUpdate) (users.User, error)
	DeleteUser(ctx context.Context, actorID, userID string) error
}

// Stats supplies the dashboard figures.
type Stats interface {
	Stats(ctx context.Context) (dashboard.Stats, error)
}

// Options carries the handler collaborators. All are required.
type Options struct {
	Products  Products
	Users     Users
	Stats     Stats
	Sessions  *session.Manager
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Guard     auth.Guard
	Logger    *slog.Logger
}

// Handler serves the /admin pages.
type Handler struct {
	logger    *slog.Logger
	products  Products
	users     Users
	stats     Stats
	sessions  *session.Manager
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     auth.Guard
}

// NewHandler builds Handler instance.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		logger:    opts.Logger,
		products:  opts.Products,
		users:     opts.Users,
		stats:     opts.Stats,
		sessions:  opts.Sessions,
		templates: opts.Templates,
		csrf:      opts.CSRF,
		guard:     opts.Guard,
	}
}

// MountRoutes registers the back office under the current router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.requireLogin)
	r.Use(h.csrf.Protect)

	can := h.guard.RequirePermission
	r.With(h.guard.RequireRoles(permissions.RoleAdmin, permissions.RoleEditor)).Get("/", h.dashboard)

	r.Route("/products", func(r chi.Router) {
		r.With(can(permissions.ResourceProducts, permissions.ActionRead)).Get("/", h.productList)
		r.With(can(permissions.ResourceProducts, permissions.ActionCreate)).Get("/new", h.productNew)
		r.With(can(permissions.ResourceProducts, permissions.ActionCreate)).Post("/", h.productCreate)
		r.With(can(permissions.ResourceProducts, permissions.ActionRead)).Get("/{id}", h.productEdit)
		r.With(can(permissions.ResourceProducts, permissions.ActionUpdate)).Post("/{id}", h.productUpdate)
		r.With(can(permissions.ResourceProducts, permissions.ActionDelete)).Post("/{id}/delete", h.productDelete)
	})

	r.Route("/users", func(r chi.Router) {
		r.With(can(permissions.ResourceUsers, permissions.ActionRead)).Get("/", h.userList)
		r.With(can(permissions.ResourceUsers, permissions.ActionCreate)).Get("/new", h.userNew)
		r.With(can(permissions.ResourceUsers, permissions.ActionCreate)).Post("/", h.userCreate)
		r.With(can(permissions.ResourceUsers, permissions.ActionRead)).Get("/{id}", h.userEdit)
		r.With(can(permissions.ResourceUsers, permissions.ActionUpdate)).Post("/{id}", h.userUpdate)
		r.With(can(permissions.ResourceUsers, permissions.ActionDelete)).Post("/{id}/delete", h.userDelete)
	})
}

// requireLogin sends anonymous visitors to the login page instead of the
// JSON 401 the API guard writes.
func (h *Handler) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.sessions.FromRequest(r).Authenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type dashboardPage struct {
	Stats dashboard.Stats
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch dashboard stats")
		return
	}
	h.render(w, r, http.StatusOK, "Dashboard", "pages/admin/dashboard.html", dashboardPage{Stats: stats})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, title, page string, data any) {
	token, err := h.csrf.EnsureToken(w, r)
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	viewData := view.TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		User:        h.sessions.FromRequest(r).User,
		CSRFToken:   token,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, page, viewData); err != nil {
		h.logger.Error("render template", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type errorPage struct {
	Message string
	Back    string
}

// fail renders the error page with the status RespondError would use.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, message := http.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, httpx.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, httpx.ErrDuplicate), errors.Is(err, httpx.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, httpx.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, httpx.ErrValidation):
		status, message = http.StatusBadRequest, formMessage(err)
	default:
		h.logger.Error(fallback, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	back := "/admin"
	for _, section := range []string{"/admin/products", "/admin/users"} {
		if strings.HasPrefix(r.URL.Path, section) {
			back = section
		}
	}
	h.render(w, r, status, "Error", "pages/admin/error.html", errorPage{Message: message, Back: back})
}

// formMessage flattens validation errors into one line for a form banner.
func formMessage(err error) string {
	if fields, ok := users.IsValidation(err); ok {
		msgs := make([]string, 0, len(fields))
		for _, m := range fields {
			msgs = append(msgs, m)
		}
		sort.Strings(msgs)
		return strings.Join(msgs, " ")
	}
	return err.Error()
}

func actorID(r *http.Request) string {
	if sess := session.FromContext(r.Context()); sess != nil && sess.User != nil {
		return sess.User.ID
	}
	return ""
}
