package media

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/session"
)

const msgForbidden = "Forbidden: You don't have permission for this action."

// Handler exposes the media library and image upload endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    auth.Guard
	maxBytes int64
}

// NewHandler builds Handler instance. maxBytes <= 0 uses DefaultMaxUploadBytes.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Guard, maxBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Handler{logger: logger, service: service, guard: guard, maxBytes: maxBytes}
}

// MountRoutes registers /api/admin/media routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePermission(permissions.ResourceMedia, permissions.ActionRead)).Get("/", h.list)
	r.With(h.guard.RequirePermission(permissions.ResourceMedia, permissions.ActionCreate)).Post("/", h.save)
	r.With(h.guard.RequirePermission(permissions.ResourceMedia, permissions.ActionDelete)).Delete("/", h.remove)
}

// MountUploadRoutes registers /api/admin/upload routes.
func (h *Handler) MountUploadRoutes(r chi.Router) {
	r.Use(h.guard.RequirePermission(permissions.ResourceProducts, permissions.ActionUpdate))
	r.Post("/", h.uploadImage)
	r.Delete("/", h.deleteImage)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list media failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to list media")
		return
	}
	httpx.JSON(w, http.StatusOK, files)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	name, data, ok := h.readFile(w, r, ErrNoFile.Error())
	if !ok {
		return
	}
	stored, err := h.service.Save(r.Context(), name, data)
	if err != nil {
		h.fail(w, err, "Failed to upload file")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "file": map[string]string{"path": stored}})
}

type removeRequest struct {
	Name string `json:"name"`
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, ErrNoName.Error())
		return
	}
	if err := h.service.Remove(r.Context(), req.Name); err != nil {
		h.fail(w, err, "Failed to delete file")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	name, data, ok := h.readFile(w, r, "No file provided")
	if !ok {
		return
	}
	result, err := h.service.UploadImage(r.Context(), actorID(r), UploadInput{
		Filename:  name,
		Data:      data,
		ProductID: r.FormValue("productId"),
		Type:      r.FormValue("type"),
	})
	if err != nil {
		h.fail(w, err, "Upload failed")
		return
	}
	h.logger.Info("image uploaded", slog.String("key", result.Key), slog.Int("bytes", len(data)))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deleteImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, productID := q.Get("key"), q.Get("productId")
	// Detached uploads are library files: deleting them needs media/delete.
	role := session.FromContext(r.Context()).Role()
	if key != "" && productID == "" && !permissions.HasPermission(role, permissions.ResourceMedia, permissions.ActionDelete) {
		httpx.Error(w, http.StatusForbidden, msgForbidden)
		return
	}
	if err := h.service.DeleteImage(r.Context(), actorID(r), key, productID); err != nil {
		h.fail(w, err, "Delete failed")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Image deleted successfully"})
}

// readFile extracts the multipart "file" field within the upload limit.
func (h *Handler) readFile(w http.ResponseWriter, r *http.Request, missing string) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Error(w, http.StatusRequestEntityTooLarge, "File too large")
			return "", nil, false
		}
		httpx.Error(w, http.StatusBadRequest, missing)
		return "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, missing)
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, missing)
		return "", nil, false
	}
	return header.Filename, data, true
}

func (h *Handler) fail(w http.ResponseWriter, err error, fallback string) {
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
