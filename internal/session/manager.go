package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sassyweb/storefront/internal/permissions"
)

// Record is the identity snapshot carried in the cookie.
type Record struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Role permissions.Role `json:"role"`
}

type payload struct {
	User       *Record `json:"user,omitempty"`
	IsLoggedIn bool    `json:"isLoggedIn"`
	IssuedAt   int64   `json:"iat"`
	ExpiresAt  int64   `json:"exp"`
}

// Manager reads and writes sessions. It holds only immutable state and is
// safe for concurrent use.
type Manager struct {
	cfg     *Config
	sealer  *sealer
	revoker Revoker
	logger  *slog.Logger
	now     func() time.Time
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source used for issuing and expiring sessions.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRevoker enables the per-user revocation check.
func WithRevoker(r Revoker) ManagerOption {
	return func(m *Manager) { m.revoker = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs a Manager from a validated Config.
func NewManager(cfg *Config, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session: config required")
	}
	s, err := newSealer(cfg.secret, cfg.cookie.Name)
	if err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, sealer: s, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CookieName returns the session cookie identifier.
func (m *Manager) CookieName() string {
	return m.cfg.cookie.Name
}

// Revoker returns the configured revoker, which may be nil.
func (m *Manager) Revoker() Revoker {
	return m.revoker
}

// Get decodes the session carried by r. Missing, tampered, expired or revoked
// cookies all produce an anonymous session; Get never fails.
func (m *Manager) Get(r *http.Request) *Session {
	sess := &Session{manager: m}
	cookie, err := r.Cookie(m.cfg.cookie.Name)
	if err != nil || cookie.Value == "" {
		return sess
	}
	plaintext, err := m.sealer.open(cookie.Value)
	if err != nil {
		m.logger.Debug("discarding unreadable session cookie", slog.Any("error", err))
		return sess
	}
	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return sess
	}
	now := m.now()
	if p.ExpiresAt == 0 || !now.Before(time.Unix(0, p.ExpiresAt)) {
		return sess
	}
	if p.User == nil || p.User.ID == "" {
		return sess
	}
	issuedAt := time.Unix(0, p.IssuedAt)
	if m.revoked(r, p.User.ID, issuedAt) {
		return sess
	}
	user := *p.User
	sess.User = &user
	sess.IsLoggedIn = true
	sess.issuedAt = issuedAt
	return sess
}

// FromRequest returns the session attached by Middleware, or decodes it.
func (m *Manager) FromRequest(r *http.Request) *Session {
	if sess := FromContext(r.Context()); sess != nil {
		return sess
	}
	return m.Get(r)
}

// Middleware decodes the session once and stores the handle in the request
// context. It never writes the cookie; handlers call Save or Destroy.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.Get(r)
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess)))
	})
}

func (m *Manager) revoked(r *http.Request, userID string, issuedAt time.Time) bool {
	if m.revoker == nil {
		return false
	}
	cutoff, err := m.revoker.RevokedAt(r.Context(), userID)
	if err != nil {
		m.logger.Warn("session revocation lookup failed", slog.String("user_id", userID), slog.Any("error", err))
		return false
	}
	return !cutoff.IsZero() && !issuedAt.After(cutoff)
}

func (m *Manager) write(w http.ResponseWriter, value string, maxAge int) {
	policy := m.cfg.cookie
	http.SetCookie(w, &http.Cookie{
		Name:     policy.Name,
		Value:    value,
		Path:     policy.Path,
		MaxAge:   maxAge,
		HttpOnly: policy.HTTPOnly,
		Secure:   policy.Secure,
		SameSite: policy.SameSite,
	})
}

// Session is the per-request handle. It is not shared across requests.
type Session struct {
	User       *Record
	IsLoggedIn bool

	issuedAt time.Time
	manager  *Manager
}

// SetUser records a successful login. Call Save to persist it.
func (s *Session) SetUser(rec Record) {
	s.User = &rec
	s.IsLoggedIn = true
}

// Role returns the role of the logged-in user, or "" when anonymous.
func (s *Session) Role() permissions.Role {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.Role
}

// Authenticated reports whether the session carries a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil
}

// Save seals the current contents into the response cookie. The lifetime
// restarts from the moment of saving.
func (s *Session) Save(w http.ResponseWriter) error {
	m := s.manager
	issued := m.now()
	p := payload{
		User:       s.User,
		IsLoggedIn: s.User != nil,
		IssuedAt:   issued.UnixNano(),
		ExpiresAt:  issued.Add(m.cfg.cookie.MaxAge).UnixNano(),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	value, err := m.sealer.seal(raw)
	if err != nil {
		return err
	}
	s.IsLoggedIn = p.IsLoggedIn
	s.issuedAt = issued
	m.write(w, value, int(m.cfg.cookie.MaxAge/time.Second))
	return nil
}

// Destroy clears the session and expires the cookie. Safe to call on an
// anonymous session.
func (s *Session) Destroy(w http.ResponseWriter) {
	s.User = nil
	s.IsLoggedIn = false
	s.issuedAt = time.Time{}
	s.manager.write(w, "", -1)
}
