package storefront

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/products"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/shared"
	"github.com/sassyweb/storefront/internal/view"
)

const homeShelfSize = 8

// Catalog is the read side of the product service.
type Catalog interface {
	List(ctx context.Context, q products.ListQuery) ([]products.Product, error)
	Get(ctx context.Context, id string, staff bool) (products.Product, error)
	Brands(ctx context.Context) ([]string, error)
}

// Handler renders the public storefront pages.
type Handler struct {
	logger    *slog.Logger
	catalog   Catalog
	sessions  *session.Manager
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, catalog Catalog, sessions *session.Manager, templates *view.Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, catalog: catalog, sessions: sessions, templates: templates}
}

// WithCSRF enables the header logout form for signed-in visitors.
func (h *Handler) WithCSRF(m *shared.CSRFManager) *Handler {
	h.csrf = m
	return h
}

// MountRoutes registers page routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/products", h.products)
	r.Get("/products/id/{id}", h.product)
	r.Get("/products/{brand}/{category}", h.brandCategory)
	r.Get("/categories", h.categories)
	r.Get("/categories/{categoryName}", h.category)
	r.Get("/stores", h.static("Stores", "pages/stores.html", Stores))
	r.Get("/contacts", h.static("Contact Us", "pages/contacts.html", ContactDetails))
	r.Get("/wholesale", h.static("Wholesale", "pages/wholesale.html", ContactDetails))
	r.Get("/about", h.static("About", "pages/about.html", nil))
}

// NotFound renders the 404 page.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "Not Found", "pages/not_found.html", nil)
}

type homePage struct {
	Featured []products.Product
	Latest   []products.Product
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	featured, err := h.catalog.List(r.Context(), products.ListQuery{Featured: true})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	latest, err := h.catalog.List(r.Context(), products.ListQuery{})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "", "pages/home.html", homePage{
		Featured: firstN(featured, homeShelfSize),
		Latest:   firstN(latest, homeShelfSize),
	})
}

type listingPage struct {
	Heading    string
	Search     string
	Brand      string
	Brands     []products.BrandFacet
	Products   []products.Product
	Pagination shared.Pagination
}

func (h *Handler) products(w http.ResponseWriter, r *http.Request) {
	h.listing(w, r, "All Products", products.ListQuery{})
}

func (h *Handler) brandCategory(w http.ResponseWriter, r *http.Request) {
	brand := view.SlugToTitle(pathParam(r, "brand"))
	category := view.SlugToTitle(pathParam(r, "category"))
	h.listing(w, r, brand+" - "+category, products.ListQuery{Brand: brand, Category: category})
}

func (h *Handler) category(w http.ResponseWriter, r *http.Request) {
	name := view.SlugToTitle(pathParam(r, "categoryName"))
	h.listing(w, r, name, products.ListQuery{Brand: name})
}

// listing loads base from the catalogue, then applies the page's search,
// brand selection and pagination.
func (h *Handler) listing(w http.ResponseWriter, r *http.Request, heading string, base products.ListQuery) {
	all, err := h.catalog.List(r.Context(), base)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	q := r.URL.Query()
	sel := products.Selection{Search: q.Get("search")}
	if b := q.Get("brand"); b != "" {
		sel.Brands = []string{b}
	}
	page, _ := strconv.Atoi(q.Get("page"))
	items, pagination := products.Paginate(products.Filter(all, sel), page)
	h.render(w, r, http.StatusOK, heading, "pages/products.html", listingPage{
		Heading:    heading,
		Search:     sel.Search,
		Brand:      q.Get("brand"),
		Brands:     products.BrandFacets(all),
		Products:   items,
		Pagination: pagination,
	})
}

func (h *Handler) product(w http.ResponseWriter, r *http.Request) {
	staff := products.IsStaff(h.sessions.FromRequest(r))
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"), staff)
	if errors.Is(err, httpx.ErrNotFound) {
		h.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, p.Name, "pages/product.html", p)
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	brands, err := h.catalog.Brands(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "Categories", "pages/categories.html", brands)
}

func (h *Handler) static(title, page string, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, http.StatusOK, title, page, data)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, title, page string, data any) {
	viewData := view.TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		User:        h.sessions.FromRequest(r).User,
		Data:        data,
	}
	if viewData.User != nil && h.csrf != nil {
		token, err := h.csrf.EnsureToken(w, r)
		if err != nil {
			h.logger.Warn("issue csrf token", slog.Any("error", err))
		}
		viewData.CSRFToken = token
	}
	if err := h.templates.RenderStatus(w, status, page, viewData); err != nil {
		h.logger.Error("render template", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("storefront page failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func firstN(items []products.Product, n int) []products.Product {
	if len(items) > n {
		return items[:n]
	}
	return items
}
