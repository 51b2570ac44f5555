package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sassyweb/storefront/internal/auth"
	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/platform/httpx"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/session/sessiontest"
	"github.com/sassyweb/storefront/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	users    map[string]User
	hashes   map[string]string
	authors  map[string]bool
	failList error
}

func newMemoryRepo(seed ...User) *memoryRepo {
	repo := &memoryRepo{users: map[string]User{}, hashes: map[string]string{}, authors: map[string]bool{}}
	for _, u := range seed {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *memoryRepo) ListUsers(context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRepo) GetUser(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryRepo) CreateUser(_ context.Context, user User, hash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Name == user.Name {
			return User{}, ErrNameTaken
		}
	}
	m.users[user.ID] = user
	m.hashes[user.ID] = hash
	return user, nil
}

func (m *memoryRepo) UpdateRole(_ context.Context, id string, role permissions.Role, at time.Time) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = at
	m.users[id] = u
	return u, nil
}

func (m *memoryRepo) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrUserNotFound
	}
	if m.authors[id] {
		return ErrAuthorOfProducts
	}
	delete(m.users, id)
	return nil
}

func (m *memoryRepo) CountUsers(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

type recordingRevoker struct{ revoked []string }

func (r *recordingRevoker) Revoke(_ context.Context, userID string) error {
	r.revoked = append(r.revoked, userID)
	return nil
}

func (r *recordingRevoker) RevokedAt(context.Context, string) (time.Time, error) {
	return time.Time{}, nil
}

type recordingAudit struct{ entries []shared.AuditLog }

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

var (
	t0     = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	admin  = User{ID: "u-admin", Name: "admin", Role: permissions.RoleAdmin, CreatedAt: t0, UpdatedAt: t0}
	editor = User{ID: "u-editor", Name: "editor", Role: permissions.RoleEditor, CreatedAt: t0.Add(time.Hour), UpdatedAt: t0.Add(time.Hour)}
)

type fixture struct {
	repo     *memoryRepo
	revoker  *recordingRevoker
	audit    *recordingAudit
	service  *Service
	sessions *session.Manager
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemoryRepo(admin, editor),
		revoker:  &recordingRevoker{},
		audit:    &recordingAudit{},
		sessions: sessiontest.NewManager(t),
	}
	f.service = NewService(f.repo, f.audit, f.revoker, nil)
	f.service.now = func() time.Time { return t0.Add(24 * time.Hour) }
	f.service.newID = func() string { return "user_new" }
	h := NewHandler(nil, f.service, auth.Guard{Sessions: f.sessions})
	r := chi.NewRouter()
	r.Route("/api/admin/users", h.MountRoutes)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, as *User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		sessiontest.SignIn(t, f.sessions, req, as.ID, as.Name, as.Role)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateUserDefaultsToEditor(t *testing.T) {
	f := newFixture(t)

	user, err := f.service.CreateUser(context.Background(), admin.ID, CreateInput{Name: "  wanjiru ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "user_new", user.ID)
	assert.Equal(t, "wanjiru", user.Name)
	assert.Equal(t, permissions.RoleEditor, user.Role)

	hash := f.repo.hashes["user_new"]
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, PasswordCost, cost)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter22")))

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "user.create", f.audit.entries[0].Action)
	assert.Equal(t, admin.ID, f.audit.entries[0].ActorID)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateUser(context.Background(), admin.ID, CreateInput{Name: "ab", Password: "123", Role: "OWNER"})
	fields, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "Name must be at least 3 characters long.", fields["name"])
	assert.Equal(t, "Password must be at least 6 characters long", fields["password"])
	assert.Equal(t, "Role must be ADMIN or EDITOR", fields["role"])
	assert.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestSelfProtection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.UpdateRole(ctx, admin.ID, admin.ID, RoleUpdate{Role: permissions.RoleEditor})
	assert.ErrorIs(t, err, ErrSelfRoleChange)
	assert.ErrorIs(t, f.service.DeleteUser(ctx, admin.ID, admin.ID), ErrSelfDelete)
	assert.Empty(t, f.revoker.revoked)
	assert.Equal(t, permissions.RoleAdmin, f.repo.users[admin.ID].Role)
}

func TestUpdateRoleRevokesSessions(t *testing.T) {
	f := newFixture(t)

	user, err := f.service.UpdateRole(context.Background(), admin.ID, editor.ID, RoleUpdate{Role: permissions.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleAdmin, user.Role)
	assert.Equal(t, t0.Add(24*time.Hour), user.UpdatedAt)
	assert.Equal(t, []string{editor.ID}, f.revoker.revoked)
}

func TestDeleteUserBlockedByProducts(t *testing.T) {
	f := newFixture(t)
	f.repo.authors[editor.ID] = true

	err := f.service.DeleteUser(context.Background(), admin.ID, editor.ID)
	assert.ErrorIs(t, err, ErrAuthorOfProducts)
	assert.ErrorIs(t, err, httpx.ErrConflict)
	assert.Empty(t, f.revoker.revoked)
}

func TestHandlerRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/users", "", &editor)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Forbidden: You don't have permission for this action."}`, rec.Body.String())
}

func TestHandlerListAndGet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/admin/users", "", &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0]["name"])
	assert.NotContains(t, users[0], "passwordHash")

	rec = f.do(t, http.MethodGet, "/api/admin/users/u-editor", "", &admin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/users/missing", "", &admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())

	f.repo.failList = errors.New("connection reset")
	rec = f.do(t, http.MethodGet, "/api/admin/users", "", &admin)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch users"}`, rec.Body.String())
}

func TestHandlerCreate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/users", `{"name":"achieng","password":"secret1","role":"ADMIN"}`, &admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"ADMIN"`)

	rec = f.do(t, http.MethodPost, "/api/admin/users", `{"name":"editor","password":"secret1"}`, &admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"User with that name already exists"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/admin/users", `{"name":"x","password":"secret1"}`, &admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":{"name":"Name must be at least 3 characters long."}}`, rec.Body.String())
}

func TestHandlerRoleAndDelete(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/api/admin/users/u-admin", `{"role":"EDITOR"}`, &admin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Admins cannot change their own role."}`, rec.Body.String())

	rec = f.do(t, http.MethodPatch, "/api/admin/users/u-editor", `{"role":"OWNER"}`, &admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/admin/users/nobody", `{"role":"ADMIN"}`, &admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/admin/users/u-admin", "", &admin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"You cannot delete your own account."}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/admin/users/u-editor", "", &admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, []string{"u-editor"}, f.revoker.revoked)

	rec = f.do(t, http.MethodDelete, "/api/admin/users/u-editor", "", &admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
