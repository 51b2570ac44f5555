package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticIndex map[string]struct{}

func (s staticIndex) ImageURLs(context.Context) (map[string]struct{}, error) {
	return s, nil
}

func TestSweepOrphansKeepsReferencedImages(t *testing.T) {
	f := newMediaFixture(t)
	f.store.objects["products/product-1-a.png"] = pngData
	f.store.objects["products/product-2-b.png"] = pngData
	f.store.objects["banners/hero.png"] = pngData

	index := staticIndex{"https://uploads.example.com/products/product-1-a.png": {}}
	removed, err := NewSweeper(f.service, index, time.Hour).SweepOrphans(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Contains(t, f.store.objects, "products/product-1-a.png")
	require.NotContains(t, f.store.objects, "products/product-2-b.png")
	require.Contains(t, f.store.objects, "banners/hero.png")
}

func TestSweepOrphansSkipsRecentUploads(t *testing.T) {
	f := newMediaFixture(t)
	f.store.objects["products/product-9-z.png"] = pngData
	f.service.now = func() time.Time { return time.Unix(0, 0) }

	removed, err := NewSweeper(f.service, staticIndex{}, time.Hour).SweepOrphans(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Contains(t, f.store.objects, "products/product-9-z.png")
}

func TestPurgeOnlyRemovesUnreferencedProductUploads(t *testing.T) {
	f := newMediaFixture(t)
	f.store.objects["products/product-1-a.png"] = pngData
	f.store.objects["products/product-2-b.png"] = pngData
	f.store.objects["banner.jpg"] = pngData

	index := staticIndex{"https://uploads.example.com/products/product-1-a.png": {}}
	sweeper := NewSweeper(f.service, index, time.Hour)
	err := sweeper.Purge(context.Background(), []string{"products/product-1-a.png", "products/product-2-b.png", "banner.jpg"})
	require.NoError(t, err)
	require.Contains(t, f.store.objects, "products/product-1-a.png")
	require.NotContains(t, f.store.objects, "products/product-2-b.png")
	require.Contains(t, f.store.objects, "banner.jpg")
}

func TestLocatorRoundTrip(t *testing.T) {
	l := NewLocator("https://uploads.example.com/")
	url := l.URL("products/a.png")
	require.Equal(t, "https://uploads.example.com/products/a.png", url)

	key, ok := l.KeyFromURL(url)
	require.True(t, ok)
	require.Equal(t, "products/a.png", key)

	_, ok = l.KeyFromURL("https://elsewhere.example.com/products/a.png")
	require.False(t, ok)
	_, ok = l.KeyFromURL("https://uploads.example.com/")
	require.False(t, ok)
}
