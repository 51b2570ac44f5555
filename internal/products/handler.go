package products

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/session"
)

// Handler exposes the product JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers /api/products routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.With(h.guard.RequirePermission(permissions.ResourceProducts, permissions.ActionUpdate)).Patch("/{id}", h.update)
	r.With(h.guard.RequirePermission(permissions.ResourceProducts, permissions.ActionDelete)).Delete("/{id}", h.delete)
}

// MountAdminRoutes registers /api/admin/products routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(permissions.ResourceProducts, permissions.ActionRead)).Get("/", h.listAll)
	r.With(h.guard.RequirePermission(permissions.ResourceProducts, permissions.ActionCreate)).Post("/", h.create)
}

// QueryFromRequest reads catalogue filters from URL parameters.
func QueryFromRequest(r *http.Request) ListQuery {
	q := r.URL.Query()
	return ListQuery{
		Category: q.Get("category"),
		Brand:    q.Get("brand"),
		Search:   q.Get("search"),
		Featured: q.Get("featured") == "true",
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), QueryFromRequest(r))
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch products")
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListAll(r.Context(), QueryFromRequest(r))
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch products")
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	staff := IsStaff(h.guard.Sessions.FromRequest(r))
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), staff)
	if err != nil {
		h.fail(w, err, "Failed to fetch product")
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.service.Create(r.Context(), actorID(r), in)
	if err != nil {
		h.fail(w, err, "Failed to create product")
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var patch Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.service.Update(r.Context(), actorID(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, err, "Failed to update product")
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "Failed to delete product")
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) fail(w http.ResponseWriter, err error, fallback string) {
	if !httpx.IsClientError(err) {
		h.logger.Error(fallback, slog.Any("error", err))
	}
	httpx.RespondError(w, err, fallback)
}

// IsStaff reports whether sess belongs to a signed-in ADMIN or EDITOR.
func IsStaff(sess *session.Session) bool {
	return sess.Authenticated() && sess.Role().Valid()
}

func actorID(r *http.Request) string {
	if sess := session.FromContext(r.Context()); sess != nil && sess.User != nil {
		return sess.User.ID
	}
	return ""
}
