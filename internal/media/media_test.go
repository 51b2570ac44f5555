package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/products"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/session/sessiontest"
)

var pngData = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Object{}
	i := 0
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Object{Key: key, Size: int64(len(data)), LastModified: time.Unix(int64(i), 0)})
			i++
		}
	}
	return out, nil
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader, contentType string, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	if _, ok := m.objects[key]; ok && !overwrite {
		return ErrObjectExists
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

type fakeProducts struct {
	images  map[string]string
	cleared []string
}

func (f *fakeProducts) Get(_ context.Context, id string, _ bool) (products.Product, error) {
	img, ok := f.images[id]
	if !ok {
		return products.Product{}, products.ErrProductNotFound
	}
	return products.Product{ID: id, Image: img}, nil
}

func (f *fakeProducts) ImageURLs(context.Context) (map[string]struct{}, error) {
	urls := map[string]struct{}{}
	for _, img := range f.images {
		if img != "" {
			urls[img] = struct{}{}
		}
	}
	return urls, nil
}

func (f *fakeProducts) SetImage(_ context.Context, _, id, url string) (products.Product, error) {
	if _, ok := f.images[id]; !ok {
		return products.Product{}, products.ErrProductNotFound
	}
	f.images[id] = url
	return products.Product{ID: id, Image: url}, nil
}

func (f *fakeProducts) ClearImage(_ context.Context, _, id, url string) error {
	if f.images[id] == url {
		f.images[id] = ""
	}
	f.cleared = append(f.cleared, id)
	return nil
}

type mediaFixture struct {
	store    *memoryStore
	products *fakeProducts
	service  *Service
	sessions *session.Manager
	router   http.Handler
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()
	f := &mediaFixture{
		store:    newMemoryStore(),
		products: &fakeProducts{images: map[string]string{"p1": ""}},
		sessions: sessiontest.NewManager(t),
	}
	f.service = NewService(f.store, f.products, "https://uploads.example.com/", nil)
	f.service.now = func() time.Time { return time.UnixMilli(1700000000000) }
	f.service.suffix = func() string { return "abc123" }
	h := NewHandler(nil, f.service, auth.Guard{Sessions: f.sessions}, 1024)
	r := chi.NewRouter()
	r.Route("/api/admin/media", h.MountRoutes)
	r.Route("/api/admin/upload", h.MountUploadRoutes)
	f.router = r
	return f
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *mediaFixture) do(t *testing.T, req *http.Request, role permissions.Role) *httptest.ResponseRecorder {
	t.Helper()
	if role != "" {
		sessiontest.SignIn(t, f.sessions, req, "u1", "staff", role)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadImageBuildsKeyAndAttaches(t *testing.T) {
	f := newMediaFixture(t)

	res, err := f.service.UploadImage(context.Background(), "u1", UploadInput{Filename: "Glow.PNG", Data: pngData, ProductID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "products/product-1700000000000-abc123.png", res.Key)
	assert.Equal(t, "product-1700000000000-abc123.png", res.FileName)
	assert.Equal(t, "https://uploads.example.com/products/product-1700000000000-abc123.png", res.URL)
	assert.True(t, res.Success)
	assert.Equal(t, "image/png", f.store.types[res.Key])
	assert.Equal(t, res.URL, f.products.images["p1"])

	key, ok := f.service.KeyFromURL(res.URL)
	assert.True(t, ok)
	assert.Equal(t, res.Key, key)
	_, ok = f.service.KeyFromURL("https://elsewhere.example.com/x.png")
	assert.False(t, ok)
}

func TestUploadImageRules(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	_, err := f.service.UploadImage(ctx, "u1", UploadInput{Filename: "notes.txt", Data: []byte("plain text, not an image")})
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = f.service.UploadImage(ctx, "u1", UploadInput{Filename: "a.png", Data: pngData, Type: "../etc"})
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = f.service.UploadImage(ctx, "u1", UploadInput{Filename: "a.png"})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	res, err := f.service.UploadImage(ctx, "u1", UploadInput{Filename: "banner", Data: pngData, Type: "banner", ProductID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "banners/banner-1700000000000-abc123.png", res.Key)
	assert.Empty(t, f.products.images["p1"], "only product uploads attach")

	_, err = f.service.UploadImage(ctx, "u1", UploadInput{Filename: "banner.png", Data: pngData, Type: "banner"})
	assert.ErrorIs(t, err, httpx.ErrConflict)

	f.store.failPut = errors.New("bucket offline")
	_, err = f.service.UploadImage(ctx, "u1", UploadInput{Filename: "a.png", Data: pngData, Type: "logo"})
	assert.Error(t, err)
	assert.False(t, httpx.IsClientError(err))
}

func TestSaveUpsertsByName(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	name, err := f.service.Save(ctx, "../../hero.png", pngData)
	require.NoError(t, err)
	assert.Equal(t, "hero.png", name)
	_, err = f.service.Save(ctx, "hero.png", []byte("second version"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second version"), f.store.objects["hero.png"])

	_, err = f.service.Save(ctx, "", pngData)
	assert.ErrorIs(t, err, ErrNoFile)

	files, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, File{ID: "hero.png", Name: "hero.png", URL: "https://uploads.example.com/hero.png", Size: 14, CreatedAt: time.Unix(0, 0), Author: Author{Name: "Admin"}}, files[0])

	n, err := f.service.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUploadEndpoint(t *testing.T) {
	f := newMediaFixture(t)

	body, ct := multipartBody(t, "lipstick.png", pngData, map[string]string{"productId": "p1"})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := f.do(t, req, permissions.RoleEditor)
	require.Equal(t, http.StatusOK, rec.Code)
	var res UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "products/product-1700000000000-abc123.png", res.Key)

	body, ct = multipartBody(t, "", nil, map[string]string{"productId": "p1"})
	req = httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
	req.Header.Set("Content-Type", ct)
	rec = f.do(t, req, permissions.RoleEditor)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No file provided"}`, rec.Body.String())

	body, ct = multipartBody(t, "huge.png", append(pngData, make([]byte, 2048)...), nil)
	req = httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
	req.Header.Set("Content-Type", ct)
	rec = f.do(t, req, permissions.RoleEditor)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/upload", nil)
	rec = f.do(t, req, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteImageEndpoint(t *testing.T) {
	f := newMediaFixture(t)
	res, err := f.service.UploadImage(context.Background(), "u1", UploadInput{Filename: "a.png", Data: pngData, ProductID: "p1"})
	require.NoError(t, err)

	rec := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/upload", nil), permissions.RoleEditor)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No key provided"}`, rec.Body.String())

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/upload?key="+res.Key+"&productId=p1", nil), permissions.RoleEditor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Image deleted successfully"}`, rec.Body.String())
	assert.NotContains(t, f.store.objects, res.Key)
	assert.Empty(t, f.products.images["p1"])
	assert.Equal(t, []string{"p1"}, f.products.cleared)
}

func TestDeleteImageStaysWithinProductUploads(t *testing.T) {
	f := newMediaFixture(t)
	f.store.objects["banner.jpg"] = pngData
	f.store.objects["banners/hero.png"] = pngData
	res, err := f.service.UploadImage(context.Background(), "u1", UploadInput{Filename: "a.png", Data: pngData, ProductID: "p1"})
	require.NoError(t, err)
	f.products.images["p2"] = res.URL
	f.products.images["p3"] = ""

	del := func(query string, role permissions.Role) *httptest.ResponseRecorder {
		return f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/upload?"+query, nil), role)
	}

	rec := del("key=banner.jpg", permissions.RoleEditor)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = del("key=banner.jpg&productId=p1", permissions.RoleEditor)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Only uploaded images can be deleted here"}`, rec.Body.String())
	rec = del("key=banners/hero.png&productId=p1", permissions.RoleEditor)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Image does not belong to this product"}`, rec.Body.String())
	rec = del("key=banner.jpg", permissions.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, f.store.objects, "banner.jpg")
	assert.Contains(t, f.store.objects, "banners/hero.png")

	rec = del("key="+res.Key+"&productId=p3", permissions.RoleEditor)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = del("key="+res.Key+"&productId=p1", permissions.RoleEditor)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.products.images["p1"])
	assert.Contains(t, f.store.objects, res.Key, "p2 still shows the image")

	rec = del("key="+res.Key, permissions.RoleAdmin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	f.products.images["p2"] = ""
	rec = del("key="+res.Key, permissions.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, f.store.objects, res.Key)
}

func TestIsUploadKey(t *testing.T) {
	assert.True(t, IsUploadKey("products/product-1-a.png"))
	assert.True(t, IsUploadKey("banners/hero.png"))
	for _, key := range []string{"banner.jpg", "products/", "products/../x.png", "products/a/b.png", "Products/a.png", "product/a.png", "s/a.png"} {
		assert.False(t, IsUploadKey(key), key)
	}
}

func TestMediaLibraryPermissions(t *testing.T) {
	f := newMediaFixture(t)
	_, err := f.service.Save(context.Background(), "hero.png", pngData)
	require.NoError(t, err)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/media", nil), permissions.RoleEditor)
	require.Equal(t, http.StatusOK, rec.Code)
	var files []File
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files, 1)

	body, ct := multipartBody(t, "new.png", pngData, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/media", body)
	req.Header.Set("Content-Type", ct)
	rec = f.do(t, req, permissions.RoleEditor)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body, ct = multipartBody(t, "new.png", pngData, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/admin/media", body)
	req.Header.Set("Content-Type", ct)
	rec = f.do(t, req, permissions.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"file":{"path":"new.png"}}`, rec.Body.String())

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/media", strings.NewReader(`{"name":"hero.png"}`)), permissions.RoleEditor)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/media", strings.NewReader(`{}`)), permissions.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing file name"}`, rec.Body.String())

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/media", strings.NewReader(`{"name":"hero.png"}`)), permissions.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, f.store.objects, "hero.png")
}
