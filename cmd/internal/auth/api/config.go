package authapi

import (
	"net/http"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	// TrustProxy enables X-Forwarded-For / X-Real-IP for client IP
	// extraction. Leave false unless a trusted proxy terminates requests.
	TrustProxy bool

	// MaxBodyBytes caps request bodies before JSON decoding.
	MaxBodyBytes int64

	// RefreshCookieName is the cookie carrying the refresh token.
	RefreshCookieName string

	// CookiePath scopes the refresh cookie so browsers only attach it to
	// the refresh and logout endpoints.
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// RateLimitMax requests per RateLimitWindow per client IP across the
	// /auth/ group.
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// DefaultConfig returns production-safe defaults.
func DefaultConfig() Config {
	return Config{
		TrustProxy:        false,
		MaxBodyBytes:      100 << 10, // 100 KiB
		RefreshCookieName: "refresh_token",
		CookiePath:        "/auth",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteStrictMode,
		RateLimitMax:      100,
		RateLimitWindow:   10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 100 << 10
	}
	if c.RefreshCookieName == "" {
		c.RefreshCookieName = "refresh_token"
	}
	if c.CookiePath == "" {
		c.CookiePath = "/auth"
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = http.SameSiteStrictMode
	}
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = 100
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 10 * time.Minute
	}
	return c
}
