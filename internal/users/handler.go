package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/session"
)

// Handler manages user management endpoints.
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

// MountRoutes registers /api/admin/users routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(permissions.ResourceUsers, permissions.ActionRead)).Get("/", h.listUsers)
	r.With(h.guard.RequirePermission(permissions.ResourceUsers, permissions.ActionCreate)).Post("/", h.createUser)
	r.With(h.guard.RequirePermission(permissions.ResourceUsers, permissions.ActionRead)).Get("/{userID}", h.getUser)
	r.With(h.guard.RequirePermission(permissions.ResourceUsers, permissions.ActionUpdate)).Patch("/{userID}", h.updateRole)
	r.With(h.guard.RequirePermission(permissions.ResourceUsers, permissions.ActionDelete)).Delete("/{userID}", h.deleteUser)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, err, "Failed to fetch user")
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, err := h.service.CreateUser(r.Context(), actorID(r), in)
	if err != nil {
		h.fail(w, err, "Failed to create user")
		return
	}
	h.logger.Info("user created", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var in RoleUpdate
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, err := h.service.UpdateRole(r.Context(), actorID(r), chi.URLParam(r, "userID"), in)
	if err != nil {
		h.fail(w, err, "Failed to update user role.")
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), actorID(r), chi.URLParam(r, "userID")); err != nil {
		h.fail(w, err, "Failed to delete user.")
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) fail(w http.ResponseWriter, err error, fallback string) {
	if fields, ok := IsValidation(err); ok {
		httpx.FieldErrors(w, fields)
		return
	}
	if !httpx.IsClientError(err) {
		h.logger.Error(fallback, slog.Any("error", err))
	}
	httpx.RespondError(w, err, fallback)
}

func actorID(r *http.Request) string {
	if sess := session.FromContext(r.Context()); sess != nil && sess.User != nil {
		return sess.User.ID
	}
	return ""
}
