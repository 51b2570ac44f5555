package products

import (
	"time"

	"github.com/sassyweb/storefront/internal/platform/httpx"
)

// Product is a catalogue entry.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Image       string    `json:"image"`
	Brand       string    `json:"brand"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Sizes       []string  `json:"sizes"`
	Concerns    []string  `json:"concerns"`
	Description string    `json:"description"`
	Featured    bool      `json:"featured"`
	Published   bool      `json:"published"`
	AuthorID    string    `json:"authorId,omitempty"`
	Author      *Author   `json:"author,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Author is the display form of a product's author.
type Author struct {
	Name string `json:"name"`
}

// ListQuery filters the public catalogue. Empty fields do not filter.
type ListQuery struct {
	Category string
	Brand    string
	Search   string
	Featured bool
}

// CacheKey identifies the query in the catalogue cache.
func (q ListQuery) CacheKey() []string {
	featured := "0"
	if q.Featured {
		featured = "1"
	}
	return []string{"list", q.Category, q.Brand, q.Search, featured}
}

// Input carries a new product.
type Input struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Image       string   `json:"image" validate:"omitempty,max=1024"`
	Brand       string   `json:"brand" validate:"required,max=100"`
	Category    string   `json:"category" validate:"required,max=100"`
	Subcategory string   `json:"subcategory" validate:"max=100"`
	Sizes       []string `json:"sizes" validate:"dive,max=50"`
	Concerns    []string `json:"concerns" validate:"dive,max=100"`
	Description string   `json:"description"`
	Featured    bool     `json:"featured"`
	Published   *bool    `json:"published"`
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string   `json:"name" validate:"omitempty,min=1,max=200"`
	Image       *string   `json:"image" validate:"omitempty,max=1024"`
	Brand       *string   `json:"brand" validate:"omitempty,min=1,max=100"`
	Category    *string   `json:"category" validate:"omitempty,min=1,max=100"`
	Subcategory *string   `json:"subcategory" validate:"omitempty,max=100"`
	Sizes       *[]string `json:"sizes"`
	Concerns    *[]string `json:"concerns"`
	Description *string   `json:"description"`
	Featured    *bool     `json:"featured"`
	Published   *bool     `json:"published"`
}

// Apply returns p with the patch applied.
func (pt Patch) Apply(p Product) Product {
	if pt.Name != nil {
		p.Name = *pt.Name
	}
	if pt.Image != nil {
		p.Image = *pt.Image
	}
	if pt.Brand != nil {
		p.Brand = *pt.Brand
	}
	if pt.Category != nil {
		p.Category = *pt.Category
	}
	if pt.Subcategory != nil {
		p.Subcategory = *pt.Subcategory
	}
	if pt.Sizes != nil {
		p.Sizes = *pt.Sizes
	}
	if pt.Concerns != nil {
		p.Concerns = *pt.Concerns
	}
	if pt.Description != nil {
		p.Description = *pt.Description
	}
	if pt.Featured != nil {
		p.Featured = *pt.Featured
	}
	if pt.Published != nil {
		p.Published = *pt.Published
	}
	return p
}

var ErrProductNotFound = httpx.NewProblem(httpx.ErrNotFound, "Product not found")
