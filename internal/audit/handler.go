package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/session"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	exportRateLimit  = 10
)

// TimelineService is the read side the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Handler serves the admin audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	guard   auth.Guard
	now     func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service TimelineService, guard auth.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, now: time.Now}
}

// MountRoutes registers the timeline and its CSV export. Admins only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequireRoles(permissions.RoleAdmin))
	r.Get("/", h.timeline)
	r.With(httprate.Limit(exportRateLimit, time.Minute, httprate.WithKeyFuncs(rateLimitKey))).
		Get("/export.csv", h.export)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, field, ok := h.parseFilters(r)
	if !ok {
		httpx.FieldErrors(w, map[string]string{field: "invalid value"})
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to fetch audit log")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, field, ok := h.parseFilters(r)
	if !ok {
		httpx.FieldErrors(w, map[string]string{field: "invalid value"})
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to export audit log")
		return
	}
	body, err := WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to export audit log")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-log.csv"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads from/to (YYYY-MM-DD, to inclusive), actor, entity,
// action, page and page_size. It reports the offending field on failure.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, string, bool) {
	q := r.URL.Query()
	now := h.now().UTC()
	to := now.Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return TimelineFilters{}, "to", false
		}
		to = parsed
	}
	from := to.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return TimelineFilters{}, "from", false
		}
		from = parsed
	}
	if from.After(to) || to.Sub(from) > maxDateRange {
		return TimelineFilters{}, "range", false
	}

	page, ok := positiveInt(q.Get("page"), 1)
	if !ok {
		return TimelineFilters{}, "page", false
	}
	pageSize, ok := positiveInt(q.Get("page_size"), defaultPageSize)
	if !ok {
		return TimelineFilters{}, "page_size", false
	}

	return TimelineFilters{
		From:     from,
		To:       to.Add(24 * time.Hour),
		Actor:    strings.TrimSpace(q.Get("actor")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, "", true
}

func positiveInt(raw string, fallback int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func rateLimitKey(r *http.Request) (string, error) {
	if sess := session.FromContext(r.Context()); sess.Authenticated() {
		return "user:" + sess.User.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
