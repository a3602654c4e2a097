package authlink_test

import (
	"errors"
	"testing"
	"time"

	al "github.com/panyam/authlink"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTHLINK_SECRET", "s3cret")
	t.Setenv("AUTHLINK_BASE_URL", "https://example.com/auth/")
	t.Setenv("AUTHLINK_SESSION_STRATEGY", "database")
	t.Setenv("AUTHLINK_STATE_MAX_AGE", "5m")
	t.Setenv("AUTHLINK_SECURE_COOKIES", "true")

	cfg, err := al.LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.Secret != "s3cret" {
		t.Errorf("Secret = %q", cfg.Secret)
	}
	if cfg.BaseURL != "https://example.com/auth" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.SessionStrategy != al.SessionStrategyDatabase {
		t.Errorf("SessionStrategy = %q", cfg.SessionStrategy)
	}
	if cfg.StateMaxAge != 5*time.Minute {
		t.Errorf("StateMaxAge = %v", cfg.StateMaxAge)
	}
	if cfg.SessionMaxAge != al.DefaultSessionMaxAge {
		t.Errorf("SessionMaxAge = %v, want default", cfg.SessionMaxAge)
	}
	if !cfg.SecureCookies || !cfg.CookieOptions().Secure {
		t.Error("expected secure cookies")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if cfg.Issuer() != "AuthLink-Issuer" {
		t.Errorf("Issuer() = %q", cfg.Issuer())
	}
}

func TestLoadConfigFromEnv_BadValue(t *testing.T) {
	t.Setenv("AUTHLINK_STATE_MAX_AGE", "soon")
	if _, err := al.LoadConfigFromEnv(); err == nil {
		t.Error("expected a parse error")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&al.Config{}).EnsureDefaults()
	if cfg.StateMaxAge != al.DefaultStateMaxAge || cfg.SessionMaxAge != al.DefaultSessionMaxAge {
		t.Errorf("max ages = %v, %v", cfg.StateMaxAge, cfg.SessionMaxAge)
	}
	if cfg.SessionStrategy != al.SessionStrategyJWT || cfg.DefaultRedirect != "/" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := al.Config{Secret: "s", BaseURL: "http://localhost/auth", SessionStrategy: al.SessionStrategySCS}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		modify func(c *al.Config)
	}{
		{"no secret", func(c *al.Config) { c.Secret = "" }},
		{"relative base url", func(c *al.Config) { c.BaseURL = "/auth" }},
		{"bad strategy", func(c *al.Config) { c.SessionStrategy = "memory" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, al.ErrConfiguration) {
				t.Errorf("Validate() error = %v, want ErrConfiguration", err)
			}
		})
	}
}
