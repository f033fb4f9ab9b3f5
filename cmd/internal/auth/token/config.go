package token

import (
	"crypto/subtle"
	"time"
)

// Config defines runtime configuration for the token codec.
//
// AccessSecret and RefreshSecret MUST differ; the constructor enforces this
// so a deployment cannot silently collapse the two token kinds into one
// trust domain.
type Config struct {
	// Issuer is the value set in the "iss" claim of every token.
	Issuer string

	// AccessTTL is the access-token lifetime (default 15 minutes).
	AccessTTL time.Duration

	// RefreshTTL is the refresh-token lifetime (default 7 days).
	RefreshTTL time.Duration

	// ClockSkew is the allowed time skew during verification.
	ClockSkew time.Duration

	// AccessSecret and RefreshSecret are the HMAC signing keys.
	AccessSecret  []byte
	RefreshSecret []byte

	// FingerprintHMACKey, when non-empty, switches refresh fingerprinting
	// from SHA-256 to HMAC-SHA256.
	FingerprintHMACKey []byte
}

// DefaultConfig returns TTL defaults suitable for development.
// Secrets must always be provided by the caller.
func DefaultConfig() Config {
	return Config{
		Issuer:     "credo",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
	}
}

func (c Config) validate() error {
	if len(c.AccessSecret) == 0 || len(c.RefreshSecret) == 0 {
		return ErrConfig
	}
	if len(c.AccessSecret) == len(c.RefreshSecret) &&
		subtle.ConstantTimeCompare(c.AccessSecret, c.RefreshSecret) == 1 {
		return ErrConfig
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ClockSkew < 0 {
		return ErrConfig
	}
	return nil
}
