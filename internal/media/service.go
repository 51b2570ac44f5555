package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/products"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 10 << 20

var (
	ErrNoFile      = httpx.NewProblem(httpx.ErrValidation, "No file uploaded")
	ErrNoKey       = httpx.NewProblem(httpx.ErrValidation, "No key provided")
	ErrNoName      = httpx.NewProblem(httpx.ErrValidation, "Missing file name")
	ErrNotImage    = httpx.NewProblem(httpx.ErrValidation, "File must be an image")
	ErrInvalidType = httpx.NewProblem(httpx.ErrValidation, "Invalid upload type")
	ErrNotUpload   = httpx.NewProblem(httpx.ErrForbidden, "Only uploaded images can be deleted here")
	ErrNotOwned    = httpx.NewProblem(httpx.ErrForbidden, "Image does not belong to this product")
	ErrImageInUse  = httpx.NewProblem(httpx.ErrConflict, "Image is still used by a product")
)

var uploadType = regexp.MustCompile(`^[a-z][a-z0-9-]{0,31}$`)

// ProductImages is the part of the product service uploads touch.
type ProductImages interface {
	ImageIndex
	Get(ctx context.Context, id string, staff bool) (products.Product, error)
	SetImage(ctx context.Context, actorID, id, url string) (products.Product, error)
	ClearImage(ctx context.Context, actorID, id, url string) error
}

// File is a media library entry.
type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
}

// Author labels who uploaded a file.
type Author struct {
	Name string `json:"name"`
}

// UploadInput is an image upload for a product or other entity type.
type UploadInput struct {
	Filename  string
	Data      []byte
	ProductID string
	Type      string
}

// UploadResult reports where an upload was stored.
type UploadResult struct {
	Success  bool   `json:"success"`
	URL      string `json:"url"`
	Key      string `json:"key"`
	FileName string `json:"fileName"`
}

// Locator maps bucket keys to their public URLs and back.
type Locator struct {
	base string
}

// NewLocator returns a Locator for objects served under publicBase.
func NewLocator(publicBase string) Locator {
	return Locator{base: strings.TrimRight(publicBase, "/")}
}

// URL returns the public address of key.
func (l Locator) URL(key string) string {
	return l.base + "/" + key
}

// KeyFromURL maps a public URL of this bucket back to its key.
func (l Locator) KeyFromURL(url string) (string, bool) {
	prefix := l.base + "/"
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// Service manages the uploads bucket.
type Service struct {
	Locator
	store    ObjectStore
	products ProductImages
	logger   *slog.Logger
	now      func() time.Time
	suffix   func() string
}

// NewService builds Service instance. publicBase is the URL prefix under
// which bucket objects are served.
func NewService(store ObjectStore, productImages ProductImages, publicBase string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Locator:  NewLocator(publicBase),
		store:    store,
		products: productImages,
		logger:   logger,
		now:      time.Now,
		suffix:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:6] },
	}
}

// List returns every file in the bucket, newest first.
func (s *Service) List(ctx context.Context) ([]File, error) {
	objects, err := s.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(objects))
	for _, o := range objects {
		if strings.HasSuffix(o.Key, "/") {
			continue
		}
		files = append(files, File{
			ID:        o.Key,
			Name:      o.Key,
			URL:       s.URL(o.Key),
			Size:      o.Size,
			CreatedAt: o.LastModified,
			Author:    Author{Name: "Admin"},
		})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].CreatedAt.After(files[j].CreatedAt) })
	return files, nil
}

// Count returns the number of files in the bucket.
func (s *Service) Count(ctx context.Context) (int, error) {
	files, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// Save stores a library file under its own name, replacing any file of the
// same name.
func (s *Service) Save(ctx context.Context, filename string, data []byte) (string, error) {
	name := cleanName(filename)
	if name == "" || len(data) == 0 {
		return "", ErrNoFile
	}
	mt := mimetype.Detect(data)
	if err := s.store.Put(ctx, name, bytes.NewReader(data), mt.String(), true); err != nil {
		return "", fmt.Errorf("media: put %s: %w", name, err)
	}
	return name, nil
}

// Remove deletes a library file by name.
func (s *Service) Remove(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNoName
	}
	return s.store.Delete(ctx, name)
}

// UploadImage stores an image under a generated key and, for product
// uploads with a product id, makes it the product image.
func (s *Service) UploadImage(ctx context.Context, actorID string, in UploadInput) (UploadResult, error) {
	if len(in.Data) == 0 {
		return UploadResult{}, httpx.NewProblem(httpx.ErrValidation, "No file provided")
	}
	kind := in.Type
	if kind == "" {
		kind = "product"
	}
	if !uploadType.MatchString(kind) {
		return UploadResult{}, ErrInvalidType
	}
	mt := mimetype.Detect(in.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return UploadResult{}, ErrNotImage
	}
	ext := strings.TrimPrefix(path.Ext(cleanName(in.Filename)), ".")
	if ext == "" {
		ext = strings.TrimPrefix(mt.Extension(), ".")
	}
	fileName := fmt.Sprintf("%s-%d-%s.%s", kind, s.now().UnixMilli(), s.suffix(), strings.ToLower(ext))
	key := kind + "s/" + fileName
	if err := s.store.Put(ctx, key, bytes.NewReader(in.Data), mt.String(), false); err != nil {
		if errors.Is(err, ErrObjectExists) {
			return UploadResult{}, httpx.NewProblem(httpx.ErrConflict, "Upload failed: file already exists")
		}
		return UploadResult{}, fmt.Errorf("media: put %s: %w", key, err)
	}
	url := s.URL(key)
	if in.ProductID != "" && kind == "product" && s.products != nil {
		if _, err := s.products.SetImage(ctx, actorID, in.ProductID, url); err != nil {
			s.logger.Warn("attach product image failed", slog.String("product_id", in.ProductID), slog.Any("error", err))
		}
	}
	return UploadResult{Success: true, URL: url, Key: key, FileName: fileName}, nil
}

// IsUploadKey reports whether key was produced by UploadImage, that is it
// sits directly under an "<type>s/" folder.
func IsUploadKey(key string) bool {
	dir, name, ok := strings.Cut(key, "/")
	if !ok || name == "" || strings.Contains(name, "/") || name == ".." {
		return false
	}
	kind, plural := strings.CutSuffix(dir, "s")
	return plural && uploadType.MatchString(kind)
}

// DeleteImage removes an uploaded image. With a productID the image must be
// that product's current image; it is detached first and the object is only
// deleted when no other product still uses it. Without a productID the
// object is deleted only if no product references it.
func (s *Service) DeleteImage(ctx context.Context, actorID, key, productID string) error {
	if strings.TrimSpace(key) == "" {
		return ErrNoKey
	}
	if !IsUploadKey(key) {
		return ErrNotUpload
	}
	url := s.URL(key)
	if productID != "" && s.products != nil {
		p, err := s.products.Get(ctx, productID, true)
		if err != nil {
			return err
		}
		if p.Image != url {
			return ErrNotOwned
		}
		if err := s.products.ClearImage(ctx, actorID, productID, url); err != nil {
			return fmt.Errorf("media: detach %s: %w", key, err)
		}
	}
	if s.products != nil {
		inUse, err := s.products.ImageURLs(ctx)
		if err != nil {
			return fmt.Errorf("media: image references: %w", err)
		}
		if _, ok := inUse[url]; ok {
			if productID != "" {
				s.logger.Info("image detached but kept, still referenced", slog.String("key", key))
				return nil
			}
			return ErrImageInUse
		}
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("media: delete %s: %w", key, err)
	}
	return nil
}

// Purge deletes keys in batches of at most MaxDeleteBatch. Used by the
// background worker.
func (s *Service) Purge(ctx context.Context, keys []string) error {
	return inBatches(ctx, keys, MaxDeleteBatch, func(batch []string) error {
		return s.store.Delete(ctx, batch...)
	})
}

func cleanName(filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
