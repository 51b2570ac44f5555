package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/products"
)

type productListPage struct {
	Products []products.Product
}

type productFormPage struct {
	Product products.Product
	New     bool
	Error   string
}

func (h *Handler) productList(w http.ResponseWriter, r *http.Request) {
	items, err := h.products.ListAll(r.Context(), products.QueryFromRequest(r))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch products")
		return
	}
	h.render(w, r, http.StatusOK, "Products", "pages/admin/products.html", productListPage{Products: items})
}

func (h *Handler) productNew(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "New product", "pages/admin/product_form.html",
		productFormPage{New: true, Product: products.Product{Published: true}})
}

func (h *Handler) productCreate(w http.ResponseWriter, r *http.Request) {
	form := productFromForm(r)
	published := form.Published
	_, err := h.products.Create(r.Context(), actorID(r), products.Input{
		Name:        form.Name,
		Image:       form.Image,
		Brand:       form.Brand,
		Category:    form.Category,
		Subcategory: form.Subcategory,
		Sizes:       form.Sizes,
		Concerns:    form.Concerns,
		Description: form.Description,
		Featured:    form.Featured,
		Published:   &published,
	})
	if errors.Is(err, httpx.ErrValidation) {
		h.render(w, r, http.StatusBadRequest, "New product", "pages/admin/product_form.html",
			productFormPage{New: true, Product: form, Error: formMessage(err)})
		return
	}
	if err != nil {
		h.fail(w, r, err, "Failed to create product")
		return
	}
	http.Redirect(w, r, "/admin/products", http.StatusSeeOther)
}

func (h *Handler) productEdit(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"), true)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch product")
		return
	}
	h.render(w, r, http.StatusOK, p.Name, "pages/admin/product_form.html", productFormPage{Product: p})
}

func (h *Handler) productUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	form := productFromForm(r)
	form.ID = id
	_, err := h.products.Update(r.Context(), actorID(r), id, products.Patch{
		Name:        &form.Name,
		Image:       &form.Image,
		Brand:       &form.Brand,
		Category:    &form.Category,
		Subcategory: &form.Subcategory,
		Sizes:       &form.Sizes,
		Concerns:    &form.Concerns,
		Description: &form.Description,
		Featured:    &form.Featured,
		Published:   &form.Published,
	})
	if errors.Is(err, httpx.ErrValidation) {
		h.render(w, r, http.StatusBadRequest, form.Name, "pages/admin/product_form.html",
			productFormPage{Product: form, Error: formMessage(err)})
		return
	}
	if err != nil {
		h.fail(w, r, err, "Failed to update product")
		return
	}
	http.Redirect(w, r, "/admin/products", http.StatusSeeOther)
}

func (h *Handler) productDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, "Failed to delete product")
		return
	}
	http.Redirect(w, r, "/admin/products", http.StatusSeeOther)
}

// productFromForm reads the product form. Lists are comma separated.
func productFromForm(r *http.Request) products.Product {
	return products.Product{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Image:       strings.TrimSpace(r.PostFormValue("image")),
		Brand:       strings.TrimSpace(r.PostFormValue("brand")),
		Category:    strings.TrimSpace(r.PostFormValue("category")),
		Subcategory: strings.TrimSpace(r.PostFormValue("subcategory")),
		Sizes:       splitList(r.PostFormValue("sizes")),
		Concerns:    splitList(r.PostFormValue("concerns")),
		Description: r.PostFormValue("description"),
		Featured:    r.PostFormValue("featured") != "",
		Published:   r.PostFormValue("published") != "",
	}
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
