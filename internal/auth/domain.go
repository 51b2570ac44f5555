package auth

import (
	"time"

	"github.com/sassyweb/storefront/internal/permissions"
)

// User represents a staff account as stored.
type User struct {
	ID           string
	Name         string
	PasswordHash string
	Role         permissions.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the user representation returned to clients.
type PublicUser struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Role      permissions.Role `json:"role"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Public strips the password hash.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}
