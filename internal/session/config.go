// Package session issues and reads the sealed, cookie-only staff session.
// Nothing is persisted server-side: the browser cookie is the only copy.
package session

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const (
	// CookieName is shared by every handler; changing it logs everyone out.
	CookieName = "sassy-web-cookie"
	// DefaultMaxAge is the fixed lifetime of an issued session.
	DefaultMaxAge = 7 * 24 * time.Hour
	// MinSecretLength is the shortest secret accepted without a warning.
	MinSecretLength = 32

	// EnvDevelopment is the only environment allowed to run without a secret.
	EnvDevelopment = "development"
	// EnvProduction turns on the Secure cookie attribute.
	EnvProduction = "production"

	developmentSecret = "dev-secret-password-32-chars-min"
)

// ErrMissingSecret is returned when no secret is configured outside development.
var ErrMissingSecret = errors.New("session: SECRET_COOKIE_PASSWORD environment variable is required")

// Options are the raw inputs used to build a Config.
type Options struct {
	Secret      string
	Environment string
	Logger      *slog.Logger
}

// CookiePolicy describes the attributes written on every session cookie.
type CookiePolicy struct {
	Name     string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// Config is the immutable, process-wide session configuration. Build it once
// at startup and hand it to NewManager.
type Config struct {
	secret         []byte
	cookie         CookiePolicy
	fallbackSecret bool
}

// NewConfig validates the secret and fixes the cookie policy.
func NewConfig(opts Options) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	secret := opts.Secret
	fallback := false
	switch {
	case secret == "" && opts.Environment == EnvDevelopment:
		logger.Warn("using development fallback session secret; set SECRET_COOKIE_PASSWORD for production")
		secret = developmentSecret
		fallback = true
	case secret == "":
		return nil, ErrMissingSecret
	case len(secret) < MinSecretLength:
		logger.Warn("SECRET_COOKIE_PASSWORD should be at least 32 characters",
			slog.Int("length", len(secret)))
	}

	return &Config{
		secret: []byte(secret),
		cookie: CookiePolicy{
			Name:     CookieName,
			Path:     "/",
			HTTPOnly: true,
			Secure:   opts.Environment == EnvProduction,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   DefaultMaxAge,
		},
		fallbackSecret: fallback,
	}, nil
}

// Cookie returns the cookie policy.
func (c *Config) Cookie() CookiePolicy {
	return c.cookie
}

// UsingFallbackSecret reports whether the insecure development key is active.
func (c *Config) UsingFallbackSecret() bool {
	return c.fallbackSecret
}
