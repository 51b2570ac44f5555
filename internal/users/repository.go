package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/db"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, user User, passwordHash string) (User, error)
	UpdateRole(ctx context.Context, id string, role permissions.Role, at time.Time) (User, error)
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `"id", "name", "role", "createdAt", "updatedAt"`

func scanUser(row pgx.Row) (User, error) {
	var (
		user User
		role string
	)
	if err := row.Scan(&user.ID, &user.Name, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	user.Role = permissions.Role(role)
	return user, nil
}

// ListUsers returns all users, oldest first.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM "User" ORDER BY "createdAt" ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetUser loads one user.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM "User" WHERE "id" = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

// CreateUser inserts a user row.
func (r *Repository) CreateUser(ctx context.Context, user User, passwordHash string) (User, error) {
	created, err := scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO "User" ("id", "name", "passwordHash", "role", "createdAt", "updatedAt")
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+userColumns,
		user.ID, user.Name, passwordHash, string(user.Role), user.CreatedAt))
	if db.IsUniqueViolation(err) {
		return User{}, ErrNameTaken
	}
	return created, err
}

// UpdateRole changes a user's role.
func (r *Repository) UpdateRole(ctx context.Context, id string, role permissions.Role, at time.Time) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE "User" SET "role" = $2, "updatedAt" = $3 WHERE "id" = $1 RETURNING `+userColumns,
		id, string(role), at))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

// DeleteUser removes a user that authors no products.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM "User" WHERE "id" = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
		var authored bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM "Product" WHERE "authorId" = $1)`, id).Scan(&authored); err != nil {
			return err
		}
		if authored {
			return ErrAuthorOfProducts
		}
		_, err := tx.Exec(ctx, `DELETE FROM "User" WHERE "id" = $1`, id)
		return err
	})
	if db.IsForeignKeyViolation(err) {
		return ErrStillReferenced
	}
	return err
}

// CountUsers returns the number of accounts.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM "User"`).Scan(&n)
	return n, err
}
