package users

import (
	"errors"
	"time"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
)

// User represents a staff account for management. The password hash never
// leaves the repository.
type User struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Role      permissions.Role `json:"role"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// CreateInput carries a new account request.
type CreateInput struct {
	Name     string           `json:"name" validate:"min=3"`
	Password string           `json:"password" validate:"min=6"`
	Role     permissions.Role `json:"role" validate:"omitempty,oneof=ADMIN EDITOR"`
}

// RoleUpdate carries a role change request.
type RoleUpdate struct {
	Role permissions.Role `json:"role" validate:"required,oneof=ADMIN EDITOR"`
}

var (
	ErrUserNotFound   = httpx.NewProblem(httpx.ErrNotFound, "User not found")
	ErrNameTaken      = httpx.NewProblem(httpx.ErrDuplicate, "User with that name already exists")
	ErrSelfRoleChange = httpx.NewProblem(httpx.ErrForbidden, "Admins cannot change their own role.")
	ErrSelfDelete     = httpx.NewProblem(httpx.ErrForbidden, "You cannot delete your own account.")

	ErrAuthorOfProducts = httpx.NewProblem(httpx.ErrConflict,
		"Cannot delete user. They are still the author of products. Please reassign or delete their content first.")

	ErrStillReferenced = httpx.NewProblem(httpx.ErrConflict,
		"Cannot delete user. They are still referenced by other records. Please reassign or delete their content first.")
)

// ValidationErrors maps request fields to messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string { return "users: invalid input" }

func (v ValidationErrors) Unwrap() error { return httpx.ErrValidation }

// IsValidation reports whether err carries field errors.
func IsValidation(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
