package app

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	sectoken "credo/cmd/security/token"
)

// Config contains all runtime configuration. Every field maps to a CREDO_*
// environment variable.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	HTTP HTTPConfig `envPrefix:"HTTP_"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"0"`

	// If true, /readyz returns 503 unless the database is configured and
	// reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB" envDefault:"false"`

	Token TokenConfig `envPrefix:"TOKEN_"`
	Auth  AuthConfig  `envPrefix:"AUTH_"`
	CORS  CORSConfig  `envPrefix:"CORS_"`
}

// HTTPConfig holds server timeouts and limits.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES" envDefault:"1048576"`
}

// TokenConfig holds signing secrets and lifetimes.
type TokenConfig struct {
	Issuer        string        `env:"ISSUER" envDefault:"credo"`
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	ClockSkew     time.Duration `env:"CLOCK_SKEW" envDefault:"30s"`

	// If true, CREDO_FINGERPRINT_HMAC_KEY MUST be set (>= 32 bytes) so
	// refresh fingerprints are keyed, not plain SHA-256.
	RequireFingerprintHMAC bool `env:"REQUIRE_FINGERPRINT_HMAC" envDefault:"false"`
}

// AuthConfig holds the auth endpoint surface knobs.
type AuthConfig struct {
	TrustProxy      bool          `env:"TRUST_PROXY" envDefault:"false"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"102400"`
	CookieDomain    string        `env:"COOKIE_DOMAIN"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"true"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"10m"`
}

// CORSConfig controls the CORS middleware.
type CORSConfig struct {
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowCredentials bool     `env:"ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAgeSeconds    int      `env:"MAX_AGE_SECONDS" envDefault:"600"`
}

// LoadConfig loads Config from CREDO_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CREDO_"}); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate enforces the startup security policy. Fail-fast is intentional:
// silently running with missing or reused secrets is unacceptable.
func (c Config) Validate() error {
	if c.Token.AccessSecret == "" {
		return errors.New("config: CREDO_TOKEN_ACCESS_SECRET is required")
	}
	if c.Token.RefreshSecret == "" {
		return errors.New("config: CREDO_TOKEN_REFRESH_SECRET is required")
	}
	if len(c.Token.AccessSecret) == len(c.Token.RefreshSecret) &&
		subtle.ConstantTimeCompare([]byte(c.Token.AccessSecret), []byte(c.Token.RefreshSecret)) == 1 {
		return errors.New("config: access and refresh secrets must differ")
	}

	if c.Token.RequireFingerprintHMAC {
		if _, err := sectoken.HMACKeyFromEnv(32); err != nil {
			switch {
			case errors.Is(err, sectoken.ErrHMACKeyMissing):
				return errors.New("config: CREDO_TOKEN_REQUIRE_FINGERPRINT_HMAC=true but " + sectoken.HMACEnvKey + " is missing")
			case errors.Is(err, sectoken.ErrHMACKeyTooShort):
				return errors.New("config: " + sectoken.HMACEnvKey + " is too short (min 32 bytes)")
			default:
				return err
			}
		}
	}
	return nil
}
