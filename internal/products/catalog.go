package products

import (
	"sort"
	"strings"

	"github.com/sassyweb/storefront/internal/shared"
)

// Selection narrows an already loaded product list the way the catalogue
// pages do: a free-text search plus an optional set of brands.
type Selection struct {
	Search string
	Brands []string
}

// BrandFacet counts the products of one brand.
type BrandFacet struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Filter keeps products whose name, subcategory or brand contain the search
// term (case-insensitive) and whose brand is selected. Order is preserved.
func Filter(items []Product, sel Selection) []Product {
	term := strings.ToLower(strings.TrimSpace(sel.Search))
	brands := make(map[string]struct{}, len(sel.Brands))
	for _, b := range sel.Brands {
		if b != "" {
			brands[b] = struct{}{}
		}
	}
	out := make([]Product, 0, len(items))
	for _, p := range items {
		if term != "" {
			haystack := strings.ToLower(strings.Join([]string{p.Name, p.Subcategory, p.Brand}, " "))
			if !strings.Contains(haystack, term) {
				continue
			}
		}
		if len(brands) > 0 {
			if _, ok := brands[p.Brand]; !ok {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// BrandFacets counts products per brand in first-seen order.
func BrandFacets(items []Product) []BrandFacet {
	index := map[string]int{}
	var facets []BrandFacet
	for _, p := range items {
		i, ok := index[p.Brand]
		if !ok {
			index[p.Brand] = len(facets)
			facets = append(facets, BrandFacet{Name: p.Brand})
			i = len(facets) - 1
		}
		facets[i].Count++
	}
	return facets
}

// Paginate returns one page of products, shared.DefaultPerPage per page.
func Paginate(items []Product, page int) ([]Product, shared.Pagination) {
	return shared.Paginate(items, page, shared.DefaultPerPage)
}

// UniqueBrands lists distinct non-empty brands, sorted.
func UniqueBrands(items []Product) []string {
	return unique(items, func(p Product) string { return p.Brand })
}

// UniqueCategories lists distinct non-empty categories, sorted.
func UniqueCategories(items []Product) []string {
	return unique(items, func(p Product) string { return p.Category })
}

func unique(items []Product, field func(Product) string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, p := range items {
		v := strings.TrimSpace(field(p))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
