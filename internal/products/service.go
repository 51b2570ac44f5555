package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sassyweb/storefront/internal/platform/cache"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/shared"
)

// ImagePrefix is where product uploads land in the bucket. Only objects
// under it are ever purged on behalf of a product.
const ImagePrefix = "products/"

// MediaPurger schedules removal of stored objects that no product uses.
type MediaPurger interface {
	EnqueueMediaPurge(ctx context.Context, keys []string) error
}

// ObjectKeyer maps a public image URL back to its storage key.
type ObjectKeyer interface {
	KeyFromURL(url string) (string, bool)
}

// Service handles product business logic.
type Service struct {
	repo     RepositoryPort
	cache    *cache.Versioned
	purger   MediaPurger
	keyer    ObjectKeyer
	audit    shared.AuditRecorder
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// Options carries optional collaborators.
type Options struct {
	Cache  *cache.Versioned
	Purger MediaPurger
	Keyer  ObjectKeyer
	Audit  shared.AuditRecorder
	Logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, opts Options) *Service {
	if opts.Audit == nil {
		opts.Audit = shared.NopAudit{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &Service{
		repo:     repo,
		cache:    opts.Cache,
		purger:   opts.Purger,
		keyer:    opts.Keyer,
		audit:    opts.Audit,
		logger:   opts.Logger,
		validate: v,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// List returns published products matching q through the catalogue cache.
// Cache failures fall back to the database.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Product, error) {
	var loadErr error
	load := func(ctx context.Context) (any, error) {
		out, err := s.repo.List(ctx, q, false)
		loadErr = err
		return out, err
	}
	key, err := s.cache.BuildKey(ctx, q.CacheKey()...)
	if err == nil {
		var out []Product
		if err = s.cache.FetchJSON(ctx, key, &out, load); err == nil {
			return out, nil
		}
	}
	if loadErr != nil {
		return nil, loadErr
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	s.logger.Warn("catalogue cache unavailable", slog.Any("error", err))
	return s.repo.List(ctx, q, false)
}

// ListAll returns every product including drafts, for staff screens.
func (s *Service) ListAll(ctx context.Context, q ListQuery) ([]Product, error) {
	return s.repo.List(ctx, q, true)
}

// ImageURLs returns the set of image URLs referenced by any product.
func (s *Service) ImageURLs(ctx context.Context) (map[string]struct{}, error) {
	all, err := s.repo.List(ctx, ListQuery{}, true)
	if err != nil {
		return nil, err
	}
	urls := make(map[string]struct{}, len(all))
	for _, p := range all {
		if p.Image != "" {
			urls[p.Image] = struct{}{}
		}
	}
	return urls, nil
}

// Get returns a product. Drafts are only visible to staff.
func (s *Service) Get(ctx context.Context, id string, staff bool) (Product, error) {
	if strings.TrimSpace(id) == "" {
		return Product{}, httpx.NewProblem(httpx.ErrValidation, "Product ID is required")
	}
	return s.repo.Get(ctx, id, staff)
}

// Count returns the number of products.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Create stores a new product authored by actorID.
func (s *Service) Create(ctx context.Context, actorID string, in Input) (Product, error) {
	if err := s.check(in); err != nil {
		return Product{}, err
	}
	published := true
	if in.Published != nil {
		published = *in.Published
	}
	now := s.now().UTC()
	p, err := s.repo.Create(ctx, Product{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Image:       in.Image,
		Brand:       strings.TrimSpace(in.Brand),
		Category:    strings.TrimSpace(in.Category),
		Subcategory: strings.TrimSpace(in.Subcategory),
		Sizes:       in.Sizes,
		Concerns:    in.Concerns,
		Description: in.Description,
		Featured:    in.Featured,
		Published:   published,
		AuthorID:    actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Product{}, err
	}
	s.changed(ctx, actorID, "product.create", p.ID)
	return p, nil
}

// Update applies a partial update. A replaced product upload is queued for
// purge once no other product uses it.
func (s *Service) Update(ctx context.Context, actorID, id string, patch Patch) (Product, error) {
	if err := s.check(patch); err != nil {
		return Product{}, err
	}
	p, previous, err := s.repo.Update(ctx, id, patch, s.now().UTC())
	if err != nil {
		return Product{}, err
	}
	if previous != "" && previous != p.Image {
		s.purge(ctx, previous)
	}
	s.changed(ctx, actorID, "product.update", id)
	return p, nil
}

// SetImage points a product at a newly uploaded image.
func (s *Service) SetImage(ctx context.Context, actorID, id, url string) (Product, error) {
	return s.Update(ctx, actorID, id, Patch{Image: &url})
}

// ClearImage removes the product image if it still equals url.
func (s *Service) ClearImage(ctx context.Context, actorID, id, url string) error {
	p, err := s.repo.Get(ctx, id, true)
	if err != nil {
		return err
	}
	if p.Image != url {
		return nil
	}
	empty := ""
	_, _, err = s.repo.Update(ctx, id, Patch{Image: &empty}, s.now().UTC())
	if err != nil {
		return err
	}
	s.changed(ctx, actorID, "product.image.clear", id)
	return nil
}

// Delete removes a product and queues its image for purge under the same
// rules as Update.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	p, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if p.Image != "" {
		s.purge(ctx, p.Image)
	}
	s.changed(ctx, actorID, "product.delete", id)
	return nil
}

// Brands returns the distinct brands of the published catalogue.
func (s *Service) Brands(ctx context.Context) ([]string, error) {
	all, err := s.List(ctx, ListQuery{})
	if err != nil {
		return nil, err
	}
	return UniqueBrands(all), nil
}

// Categories returns the distinct categories of the published catalogue.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	all, err := s.List(ctx, ListQuery{})
	if err != nil {
		return nil, err
	}
	return UniqueCategories(all), nil
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fe := fieldErrs[0]
	return httpx.NewProblem(httpx.ErrValidation, fmt.Sprintf("Invalid value for %s", fe.Field()))
}

func (s *Service) changed(ctx context.Context, actorID, action, id string) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("catalogue cache bump failed", slog.Any("error", err))
	}
	if actorID == "" {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "Product", EntityID: id, At: s.now()})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) purge(ctx context.Context, imageURL string) {
	if s.purger == nil || s.keyer == nil {
		return
	}
	key, ok := s.keyer.KeyFromURL(imageURL)
	if !ok || !strings.HasPrefix(key, ImagePrefix) {
		return
	}
	inUse, err := s.ImageURLs(ctx)
	if err != nil {
		s.logger.Warn("image reference check failed, purge skipped", slog.String("key", key), slog.Any("error", err))
		return
	}
	if _, shared := inUse[imageURL]; shared {
		return
	}
	if err := s.purger.EnqueueMediaPurge(ctx, []string{key}); err != nil {
		s.logger.Warn("enqueue media purge failed", slog.String("key", key), slog.Any("error", err))
	}
}
