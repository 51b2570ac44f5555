package shared

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/sassyweb/storefront/internal/platform/httpx"
)

const (
	// CSRFCookieName holds the token issued to the browser.
	CSRFCookieName = "sassy-web-csrf"
	// CSRFFormField is the form field name carrying the CSRF token.
	CSRFFormField = "csrf_token"
	// CSRFHeader carries the token on script requests.
	CSRFHeader = "X-CSRF-Token"

	csrfKeyInfo  = "sassy-web csrf v1"
	csrfNonceLen = 18
)

var (
	ErrCSRFTokenMissing  = httpx.NewProblem(httpx.ErrForbidden, "Missing CSRF token")
	ErrCSRFTokenMismatch = httpx.NewProblem(httpx.ErrForbidden, "Invalid CSRF token")
)

// CSRFManager issues and verifies double-submit CSRF tokens. A token is a
// random nonce with its HMAC; the browser holds it in an HttpOnly cookie and
// forms echo it back in CSRFFormField.
type CSRFManager struct {
	key    []byte
	secure bool
}

// NewCSRFManager derives the signing key from secret. An empty secret uses a
// random key, so tokens only survive until restart.
func NewCSRFManager(secret string, secure bool) (*CSRFManager, error) {
	key := make([]byte, 32)
	if secret == "" {
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		return &CSRFManager{key: key, secure: secure}, nil
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(csrfKeyInfo)), key); err != nil {
		return nil, err
	}
	return &CSRFManager{key: key, secure: secure}, nil
}

// EnsureToken returns the token carried by r, issuing a fresh cookie when it
// is missing or was not signed by this manager.
func (m *CSRFManager) EnsureToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(CSRFCookieName); err == nil && m.valid(c.Value) {
		return c.Value, nil
	}
	nonce := make([]byte, csrfNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(nonce) + "." + m.sign(nonce)
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// VerifyToken compares the submitted token with the cookie token.
func (m *CSRFManager) VerifyToken(r *http.Request, token string) error {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil || c.Value == "" || token == "" {
		return ErrCSRFTokenMissing
	}
	if !m.valid(c.Value) || !hmac.Equal([]byte(c.Value), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

// Protect rejects unsafe requests whose form field or header does not carry
// the cookie token.
func (m *CSRFManager) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get(CSRFHeader)
		if token == "" {
			token = r.PostFormValue(CSRFFormField)
		}
		if err := m.VerifyToken(r, token); err != nil {
			httpx.RespondError(w, err, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CSRFManager) valid(token string) bool {
	encoded, mac, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	nonce, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(nonce) != csrfNonceLen {
		return false
	}
	return hmac.Equal([]byte(mac), []byte(m.sign(nonce)))
}

func (m *CSRFManager) sign(nonce []byte) string {
	h := hmac.New(sha256.New, m.key)
	_, _ = h.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
