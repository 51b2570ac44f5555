package media

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sassyweb/storefront/internal/products"
)

// ProductImagePrefix is where product uploads land in the bucket.
const ProductImagePrefix = products.ImagePrefix

// ImageIndex reports the image URLs currently referenced by products.
type ImageIndex interface {
	ImageURLs(ctx context.Context) (map[string]struct{}, error)
}

// Sweeper deletes product uploads that no product points at.
type Sweeper struct {
	media  *Service
	index  ImageIndex
	minAge time.Duration
}

// NewSweeper builds a Sweeper. Objects younger than minAge are kept so an
// upload still waiting to be attached is not lost.
func NewSweeper(media *Service, index ImageIndex, minAge time.Duration) *Sweeper {
	return &Sweeper{media: media, index: index, minAge: minAge}
}

// SweepOrphans removes unreferenced product images and returns how many.
func (s *Sweeper) SweepOrphans(ctx context.Context) (int, error) {
	inUse, err := s.index.ImageURLs(ctx)
	if err != nil {
		return 0, err
	}
	objects, err := s.media.store.List(ctx, ProductImagePrefix)
	if err != nil {
		return 0, err
	}
	cutoff := s.media.now().Add(-s.minAge)
	var orphans []string
	for _, o := range objects {
		if o.LastModified.After(cutoff) {
			continue
		}
		if _, ok := inUse[s.media.URL(o.Key)]; ok {
			continue
		}
		orphans = append(orphans, o.Key)
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	if err := s.media.Purge(ctx, orphans); err != nil {
		return 0, err
	}
	s.media.logger.Info("orphaned media removed", slog.Int("count", len(orphans)))
	return len(orphans), nil
}

// Purge deletes the product uploads among keys that no product references
// at the time of the call. Other keys are left alone.
func (s *Sweeper) Purge(ctx context.Context, keys []string) error {
	inUse, err := s.index.ImageURLs(ctx)
	if err != nil {
		return err
	}
	var owned []string
	for _, key := range keys {
		if !strings.HasPrefix(key, ProductImagePrefix) {
			s.media.logger.Warn("purge of non-product key refused", slog.String("key", key))
			continue
		}
		if _, ok := inUse[s.media.URL(key)]; ok {
			continue
		}
		owned = append(owned, key)
	}
	if len(owned) == 0 {
		return nil
	}
	return s.media.Purge(ctx, owned)
}
