package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
)

// Handler serves GET /api/admin/stats.
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

// MountRoutes registers the stats route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireRoles(permissions.RoleAdmin, permissions.RoleEditor)).Get("/", h.stats)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("dashboard stats failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch dashboard stats")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
