package products

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sassyweb/storefront/internal/platform/db"
)

// RepositoryPort defines product persistence.
type RepositoryPort interface {
	List(ctx context.Context, q ListQuery, includeUnpublished bool) ([]Product, error)
	Get(ctx context.Context, id string, includeUnpublished bool) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, id string, patch Patch, at time.Time) (updated Product, previousImage string, err error)
	Delete(ctx context.Context, id string) (Product, error)
	Count(ctx context.Context) (int, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectProduct = `SELECT p."id", p."name", COALESCE(p."image", ''), p."brand", p."category",
	COALESCE(p."subcategory", ''), p."sizes", p."concerns", p."description", p."featured", p."published",
	COALESCE(p."authorId", ''), u."name", p."createdAt", p."updatedAt"
FROM "Product" p
LEFT JOIN "User" u ON u."id" = p."authorId"`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p          Product
		authorName *string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Image, &p.Brand, &p.Category, &p.Subcategory, &p.Sizes, &p.Concerns,
		&p.Description, &p.Featured, &p.Published, &p.AuthorID, &authorName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if authorName != nil {
		p.Author = &Author{Name: *authorName}
	}
	return p, nil
}

// likePattern wraps term for a substring ILIKE match with wildcards escaped.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// buildListQuery renders the filtered listing statement. Newest first.
func buildListQuery(q ListQuery, includeUnpublished bool) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !includeUnpublished {
		where = append(where, `p."published" = TRUE`)
	}
	if c := strings.TrimSpace(q.Category); c != "" {
		where = append(where, `p."category" ILIKE `+arg(likePattern(c)))
	}
	if b := strings.TrimSpace(q.Brand); b != "" {
		where = append(where, `p."brand" ILIKE `+arg(likePattern(b)))
	}
	if q.Featured {
		where = append(where, `p."featured" = TRUE`)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		ph := arg(likePattern(s))
		where = append(where, fmt.Sprintf(`(p."name" ILIKE %[1]s OR p."brand" ILIKE %[1]s OR p."category" ILIKE %[1]s OR p."subcategory" ILIKE %[1]s)`, ph))
	}
	sql := selectProduct
	if len(where) > 0 {
		sql += "\nWHERE " + strings.Join(where, " AND ")
	}
	sql += "\nORDER BY p.\"createdAt\" DESC"
	return sql, args
}

// List returns products matching q.
func (r *Repository) List(ctx context.Context, q ListQuery, includeUnpublished bool) ([]Product, error) {
	sql, args := buildListQuery(q, includeUnpublished)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get loads one product. Unpublished products are hidden unless requested.
func (r *Repository) Get(ctx context.Context, id string, includeUnpublished bool) (Product, error) {
	sql := selectProduct + "\nWHERE p.\"id\" = $1"
	if !includeUnpublished {
		sql += ` AND p."published" = TRUE`
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// Create inserts p and returns the stored row.
func (r *Repository) Create(ctx context.Context, p Product) (Product, error) {
	var author any
	if p.AuthorID != "" {
		author = p.AuthorID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO "Product" ("id", "name", "image", "brand", "category", "subcategory", "sizes", "concerns",
			"description", "featured", "published", "authorId", "createdAt", "updatedAt")
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $13)`,
		p.ID, p.Name, p.Image, p.Brand, p.Category, p.Subcategory, nonNil(p.Sizes), nonNil(p.Concerns),
		p.Description, p.Featured, p.Published, author, p.CreatedAt)
	if err != nil {
		return Product{}, err
	}
	return r.Get(ctx, p.ID, true)
}

// Update applies patch inside a transaction and reports the image the row
// held before the update.
func (r *Repository) Update(ctx context.Context, id string, patch Patch, at time.Time) (Product, string, error) {
	var previousImage string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanProduct(tx.QueryRow(ctx, selectProduct+"\nWHERE p.\"id\" = $1\nFOR UPDATE OF p", id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}
		previousImage = current.Image
		next := patch.Apply(current)
		_, err = tx.Exec(ctx,
			`UPDATE "Product" SET "name" = $2, "image" = NULLIF($3, ''), "brand" = $4, "category" = $5,
				"subcategory" = NULLIF($6, ''), "sizes" = $7, "concerns" = $8, "description" = $9,
				"featured" = $10, "published" = $11, "updatedAt" = $12
			 WHERE "id" = $1`,
			id, next.Name, next.Image, next.Brand, next.Category, next.Subcategory, nonNil(next.Sizes),
			nonNil(next.Concerns), next.Description, next.Featured, next.Published, at)
		return err
	})
	if err != nil {
		return Product{}, "", err
	}
	updated, err := r.Get(ctx, id, true)
	return updated, previousImage, err
}

// Delete removes a product and returns the removed row.
func (r *Repository) Delete(ctx context.Context, id string) (Product, error) {
	var removed Product
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := scanProduct(tx.QueryRow(ctx, selectProduct+"\nWHERE p.\"id\" = $1\nFOR UPDATE OF p", id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM "Product" WHERE "id" = $1`, id); err != nil {
			return err
		}
		removed = p
		return nil
	})
	return removed, err
}

// Count returns the number of products, published or not.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM "Product"`).Scan(&n)
	return n, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
