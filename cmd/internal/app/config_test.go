package app

import (
	"testing"
	"time"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("CREDO_TOKEN_ACCESS_SECRET", "access-secret-0123456789abcdefgh")
	t.Setenv("CREDO_TOKEN_REFRESH_SECRET", "refresh-secret-0123456789abcdefg")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.Token.AccessTTL != 15*time.Minute {
		t.Fatalf("AccessTTL=%v", cfg.Token.AccessTTL)
	}
	if cfg.Token.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("RefreshTTL=%v", cfg.Token.RefreshTTL)
	}
	if cfg.Auth.MaxBodyBytes != 100<<10 {
		t.Fatalf("MaxBodyBytes=%d", cfg.Auth.MaxBodyBytes)
	}
	if cfg.Auth.RateLimitMax != 100 || cfg.Auth.RateLimitWindow != 10*time.Minute {
		t.Fatalf("rate limit defaults: %d/%v", cfg.Auth.RateLimitMax, cfg.Auth.RateLimitWindow)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("CREDO_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("CREDO_TOKEN_ACCESS_TTL", "5m")
	t.Setenv("CREDO_AUTH_RATE_LIMIT_MAX", "7")
	t.Setenv("CREDO_CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.Token.AccessTTL != 5*time.Minute {
		t.Fatalf("AccessTTL=%v", cfg.Token.AccessTTL)
	}
	if cfg.Auth.RateLimitMax != 7 {
		t.Fatalf("RateLimitMax=%d", cfg.Auth.RateLimitMax)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("AllowedOrigins=%v", cfg.CORS.AllowedOrigins)
	}
}

func TestValidateRejectsBadSecrets(t *testing.T) {
	cases := []struct {
		name    string
		access  string
		refresh string
	}{
		{name: "missing access", access: "", refresh: "refresh-secret"},
		{name: "missing refresh", access: "access-secret", refresh: ""},
		{name: "equal secrets", access: "same-secret-value", refresh: "same-secret-value"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{}
			cfg.Token.AccessSecret = tc.access
			cfg.Token.RefreshSecret = tc.refresh
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateHMACPolicy(t *testing.T) {
	cfg := Config{}
	cfg.Token.AccessSecret = "access-secret-0123456789abcdefgh"
	cfg.Token.RefreshSecret = "refresh-secret-0123456789abcdefg"
	cfg.Token.RequireFingerprintHMAC = true

	t.Setenv("CREDO_FINGERPRINT_HMAC_KEY", "")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when HMAC key is missing under policy")
	}

	t.Setenv("CREDO_FINGERPRINT_HMAC_KEY", "short")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when HMAC key is too short under policy")
	}

	t.Setenv("CREDO_FINGERPRINT_HMAC_KEY", "hmac-fingerprint-key-0123456789abcdef")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
