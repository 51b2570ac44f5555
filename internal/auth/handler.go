package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/shared"
	"github.com/sassyweb/storefront/internal/view"
)

// Login outcomes reported to the observer.
const (
	OutcomeSuccess    = "success"
	OutcomeInvalid    = "invalid"
	OutcomeBadRequest = "bad_request"
	OutcomeError      = "error"
)

// LoginObserver is notified of every login attempt.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  *session.Manager
	templates *view.Engine
	csrf      *shared.CSRFManager
	observer  LoginObserver
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. templates and observer may be
// nil. Without csrf, HTML form logins are refused; JSON logins still work.
func NewHandler(logger *slog.Logger, service *Service, sessions *session.Manager, templates *view.Engine, csrf *shared.CSRFManager, observer LoginObserver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		templates: templates,
		csrf:      csrf,
		observer:  observer,
		validator: validator.New(),
	}
}

// MountRoutes registers /api/auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(10, time.Minute)).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginForm struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type meResponse struct {
	User           *session.Record                               `json:"user"`
	Permissions    map[permissions.Resource][]permissions.Action `json:"permissions"`
	CanManageUsers bool                                          `json:"canManageUsers"`
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	jsonRequest := isJSON(r)
	if jsonRequest {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			h.observe(OutcomeBadRequest)
			httpx.Error(w, http.StatusBadRequest, "Name and password are required")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.observe(OutcomeBadRequest)
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		form = loginForm{Name: r.PostFormValue("name"), Password: r.PostFormValue("password")}
		if err := h.verifyCSRF(r); err != nil {
			h.observe(OutcomeBadRequest)
			h.loginFailed(w, r, false, http.StatusForbidden, "Your login form expired. Please try again.", strings.TrimSpace(form.Name))
			return
		}
	}
	form.Name = strings.TrimSpace(form.Name)

	if err := h.validator.Struct(form); err != nil {
		h.observe(OutcomeBadRequest)
		h.loginFailed(w, r, jsonRequest, http.StatusBadRequest, "Name and password are required", form.Name)
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Name, form.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.observe(OutcomeInvalid)
			h.loginFailed(w, r, jsonRequest, http.StatusUnauthorized, "Invalid credentials", form.Name)
			return
		}
		h.observe(OutcomeError)
		h.logger.Error("login lookup failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "An internal server error occurred")
		return
	}

	sess := h.sessions.FromRequest(r)
	sess.SetUser(session.Record{ID: user.ID, Name: user.Name, Role: user.Role})
	if err := sess.Save(w); err != nil {
		h.observe(OutcomeError)
		h.logger.Error("save session", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "An internal server error occurred")
		return
	}
	h.observe(OutcomeSuccess)
	h.logger.Info("user logged in", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))

	if !jsonRequest {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	httpx.JSON(w, http.StatusOK, user.Public())
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, jsonRequest bool, status int, message, name string) {
	if jsonRequest || h.templates == nil {
		httpx.Error(w, status, message)
		return
	}
	h.renderLogin(w, r, status, map[string]any{"Name": name, "Error": message})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.FromRequest(r)
	if sess.User != nil {
		h.logger.Info("user logged out", slog.String("user_id", sess.User.ID))
	}
	sess.Destroy(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.FromRequest(r)
	if !sess.Authenticated() {
		httpx.Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	role := sess.Role()
	httpx.JSON(w, http.StatusOK, meResponse{
		User:           sess.User,
		Permissions:    permissions.Grants(role),
		CanManageUsers: permissions.CanManageUsers(role),
	})
}

// LogoutForm ends the session from an HTML form and returns to the home page.
func (h *Handler) LogoutForm(w http.ResponseWriter, r *http.Request) {
	if err := h.verifyCSRF(r); err != nil {
		httpx.RespondError(w, err, "")
		return
	}
	sess := h.sessions.FromRequest(r)
	if sess.User != nil {
		h.logger.Info("user logged out", slog.String("user_id", sess.User.ID))
	}
	sess.Destroy(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ShowLogin renders the HTML login page.
func (h *Handler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	if h.sessions.FromRequest(r).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, map[string]any{})
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data map[string]any) {
	viewData := view.TemplateData{Title: "Login", CurrentPath: r.URL.Path, Data: data}
	if h.csrf != nil {
		token, err := h.csrf.EnsureToken(w, r)
		if err != nil {
			h.logger.Error("issue csrf token", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, "An internal server error occurred")
			return
		}
		viewData.CSRFToken = token
	}
	if err := h.templates.RenderStatus(w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

func (h *Handler) verifyCSRF(r *http.Request) error {
	if h.csrf == nil {
		return shared.ErrCSRFTokenMissing
	}
	return h.csrf.VerifyToken(r, r.PostFormValue(shared.CSRFFormField))
}

func (h *Handler) observe(outcome string) {
	if h.observer != nil {
		h.observer.ObserveLogin(outcome)
	}
}
