// Package sessiontest provides helpers for tests that need signed-in requests.
package sessiontest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sassyweb/storefront/internal/permissions"
	"github.com/sassyweb/storefront/internal/session"
)

// Secret is the session secret used by NewManager.
const Secret = "sessiontest-secret-0123456789abcdef"

// NewManager returns a development-mode manager with a fixed secret.
func NewManager(t testing.TB, opts ...session.ManagerOption) *session.Manager {
	t.Helper()
	cfg, err := session.NewConfig(session.Options{Secret: Secret, Environment: session.EnvDevelopment})
	if err != nil {
		t.Fatalf("session config: %v", err)
	}
	m, err := session.NewManager(cfg, opts...)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	return m
}

// Cookie issues a session cookie for the given user.
func Cookie(t testing.TB, m *session.Manager, id, name string, role permissions.Role) *http.Cookie {
	t.Helper()
	sess := m.Get(httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetUser(session.Record{ID: id, Name: name, Role: role})
	rec := httptest.NewRecorder()
	if err := sess.Save(rec); err != nil {
		t.Fatalf("save session: %v", err)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == m.CookieName() {
			return &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	t.Fatalf("session cookie not written")
	return nil
}

// SignIn attaches a session cookie for the given user to r.
func SignIn(t testing.TB, m *session.Manager, r *http.Request, id, name string, role permissions.Role) *http.Request {
	t.Helper()
	r.AddCookie(Cookie(t, m, id, name, role))
	return r
}
