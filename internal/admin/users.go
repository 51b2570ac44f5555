package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/users"
)

type userListPage struct {
	Users []users.User
}

type userFormPage struct {
	Target users.User
	New    bool
	Roles  []permissions.Role
	Error  string
}

func (h *Handler) userList(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch users")
		return
	}
	h.render(w, r, http.StatusOK, "Users", "pages/admin/users.html", userListPage{Users: list})
}

func (h *Handler) userNew(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "New user", "pages/admin/user_form.html", userFormPage{
		New:    true,
		Roles:  permissions.Roles(),
		Target: users.User{Role: permissions.RoleEditor},
	})
}

func (h *Handler) userCreate(w http.ResponseWriter, r *http.Request) {
	in := users.CreateInput{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Password: r.PostFormValue("password"),
		Role:     permissions.Role(r.PostFormValue("role")),
	}
	user, err := h.users.CreateUser(r.Context(), actorID(r), in)
	if errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrDuplicate) {
		h.render(w, r, http.StatusBadRequest, "New user", "pages/admin/user_form.html", userFormPage{
			New:    true,
			Roles:  permissions.Roles(),
			Target: users.User{Name: in.Name, Role: in.Role},
			Error:  formMessage(err),
		})
		return
	}
	if err != nil {
		h.fail(w, r, err, "Failed to create user")
		return
	}
	h.logger.Info("user created", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

func (h *Handler) userEdit(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch user")
		return
	}
	h.render(w, r, http.StatusOK, user.Name, "pages/admin/user_form.html", userFormPage{
		Target: user,
		Roles:  permissions.Roles(),
	})
}

func (h *Handler) userUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := h.users.UpdateRole(r.Context(), actorID(r), id, users.RoleUpdate{Role: permissions.Role(r.PostFormValue("role"))})
	if err != nil {
		h.fail(w, r, err, "Failed to update user role.")
		return
	}
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

func (h *Handler) userDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, "Failed to delete user.")
		return
	}
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}
