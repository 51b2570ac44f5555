package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/session"
	"github.com/sassyweb/storefront/internal/session/sessiontest"
	"github.com/sassyweb/storefront/internal/shared"
	"github.com/sassyweb/storefront/internal/view"
	_ "github.com/sassyweb/storefront/testing"
)

type stubRepo struct {
	users map[string]*User
	err   error
}

func (s *stubRepo) FindByName(_ context.Context, name string) (*User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[name]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

type countingObserver map[string]int

func (c countingObserver) ObserveLogin(outcome string) { c[outcome]++ }

func newStubRepo(t *testing.T) *stubRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubRepo{users: map[string]*User{
		"admin": {ID: "u-admin", Name: "admin", PasswordHash: string(hash), Role: permissions.RoleAdmin},
		"ghost": {ID: "u-ghost", Name: "ghost", PasswordHash: string(hash), Role: permissions.Role("OWNER")},
	}}
}

func newTestHandler(t *testing.T) (*Handler, *session.Manager, countingObserver, http.Handler) {
	t.Helper()
	sessions := sessiontest.NewManager(t)
	engine, err := view.NewEngine()
	require.NoError(t, err)
	csrf, err := shared.NewCSRFManager("test-secret-password-32-characters", false)
	require.NoError(t, err)
	observer := countingObserver{}
	h := NewHandler(nil, NewService(newStubRepo(t)), sessions, engine, csrf, observer)
	r := chi.NewRouter()
	r.Route("/api/auth", h.MountRoutes)
	r.Get("/login", h.ShowLogin)
	r.Post("/logout", h.LogoutForm)
	return h, sessions, observer, r
}

// loginToken fetches the login page and returns its CSRF cookie and token.
func loginToken(t *testing.T, router http.Handler) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == shared.CSRFCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Contains(t, rec.Body.String(), `name="csrf_token" value="`+cookie.Value+`"`)
	return cookie, cookie.Value
}

func formRequest(path string, form url.Values, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func jsonLogin(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginJSONSuccess(t *testing.T) {
	_, sessions, observer, router := newTestHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonLogin(`{"name":"admin","password":"secret123"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u-admin", body["id"])
	assert.Equal(t, "ADMIN", body["role"])
	assert.NotContains(t, body, "passwordHash")
	assert.NotContains(t, body, "PasswordHash")

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	sess := sessions.Get(req)
	assert.True(t, sess.IsLoggedIn)
	assert.Equal(t, session.Record{ID: "u-admin", Name: "admin", Role: permissions.RoleAdmin}, *sess.User)
	assert.Equal(t, 1, observer[OutcomeSuccess])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, _, observer, router := newTestHandler(t)

	cases := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"wrong password", `{"name":"admin","password":"nope"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown user", `{"name":"nobody","password":"secret123"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"role outside matrix", `{"name":"ghost","password":"secret123"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"missing password", `{"name":"admin"}`, http.StatusBadRequest, "Name and password are required"},
		{"blank name", `{"name":"  ","password":"secret123"}`, http.StatusBadRequest, "Name and password are required"},
		{"malformed", `{`, http.StatusBadRequest, "Name and password are required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, jsonLogin(tc.body))
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, `{"error":"`+tc.msg+`"}`, rec.Body.String())
			assert.Empty(t, rec.Result().Cookies())
		})
	}
	assert.Equal(t, 3, observer[OutcomeInvalid])
	assert.Equal(t, 3, observer[OutcomeBadRequest])
}

func TestLoginFormRedirectsAndRendersErrors(t *testing.T) {
	_, _, _, router := newTestHandler(t)
	cookie, token := loginToken(t, router)

	form := url.Values{"name": {"admin"}, "password": {"secret123"}, "csrf_token": {token}}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, formRequest("/api/auth/login", form, cookie))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	form.Set("password", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, formRequest("/api/auth/login", form, cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid credentials")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestLoginFormRequiresCSRFToken(t *testing.T) {
	_, _, observer, router := newTestHandler(t)
	cookie, token := loginToken(t, router)
	form := url.Values{"name": {"admin"}, "password": {"secret123"}}

	cases := map[string]*http.Request{
		"no token":     formRequest("/api/auth/login", form, cookie),
		"no cookie":    formRequest("/api/auth/login", url.Values{"name": {"admin"}, "password": {"secret123"}, "csrf_token": {token}}, nil),
		"wrong cookie": formRequest("/api/auth/login", url.Values{"name": {"admin"}, "password": {"secret123"}, "csrf_token": {"abc.def"}}, &http.Cookie{Name: shared.CSRFCookieName, Value: "abc.def"}),
	}
	for name, req := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "Your login form expired", name)
		for _, c := range rec.Result().Cookies() {
			assert.NotEqual(t, session.CookieName, c.Name, name)
		}
	}
	assert.Equal(t, 3, observer[OutcomeBadRequest])
}

func TestLogoutFormNeedsToken(t *testing.T) {
	_, sessions, _, router := newTestHandler(t)
	cookie, token := loginToken(t, router)

	req := sessiontest.SignIn(t, sessions, formRequest("/logout", url.Values{}, cookie), "u-admin", "admin", permissions.RoleAdmin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = sessiontest.SignIn(t, sessions, formRequest("/logout", url.Values{"csrf_token": {token}}, cookie), "u-admin", "admin", permissions.RoleAdmin)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestLogoutClearsCookie(t *testing.T) {
	_, sessions, _, router := newTestHandler(t)

	for _, signedIn := range []bool{true, false} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		if signedIn {
			sessiontest.SignIn(t, sessions, req, "u-admin", "admin", permissions.RoleAdmin)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, session.CookieName, cookies[0].Name)
		assert.Less(t, cookies[0].MaxAge, 0)
	}
}

func TestMe(t *testing.T) {
	_, sessions, _, router := newTestHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Not authenticated"}`, rec.Body.String())

	req := sessiontest.SignIn(t, sessions, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "u-ed", "ed", permissions.RoleEditor)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User           session.Record                                `json:"user"`
		Permissions    map[permissions.Resource][]permissions.Action `json:"permissions"`
		CanManageUsers bool                                          `json:"canManageUsers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u-ed", body.User.ID)
	assert.False(t, body.CanManageUsers)
	assert.Empty(t, body.Permissions[permissions.ResourceUsers])
	assert.ElementsMatch(t, []permissions.Action{permissions.ActionRead, permissions.ActionUpdate}, body.Permissions[permissions.ResourceProducts])
}

func TestShowLogin(t *testing.T) {
	_, sessions, _, router := newTestHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/api/auth/login"`)

	req := sessiontest.SignIn(t, sessions, httptest.NewRequest(http.MethodGet, "/login", nil), "u-admin", "admin", permissions.RoleAdmin)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}
