package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sassyweb/storefront/internal/permissions"
)

var (
	// ErrUserNotFound is returned when no account matches.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidCredentials indicates a failed login. Unknown names and wrong
	// passwords are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByName(ctx context.Context, name string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByName fetches a user by login name.
func (r *PGRepository) FindByName(ctx context.Context, name string) (*User, error) {
	var (
		user User
		role string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT "id", "name", "passwordHash", "role", "createdAt", "updatedAt" FROM "User" WHERE "name" = $1`,
		name,
	).Scan(&user.ID, &user.Name, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.Role = permissions.Role(role)
	return &user, nil
}

var _ Repository = (*PGRepository)(nil)
