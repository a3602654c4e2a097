package authlink

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session strategies selectable through AUTHLINK_SESSION_STRATEGY
const (
	SessionStrategyJWT      = "jwt"
	SessionStrategyDatabase = "database"
	SessionStrategySCS      = "scs"
)

// Config holds the settings of an AuthLink instance.
// Values are normally read from the environment at startup.
type Config struct {
	AppName string `env:"AUTHLINK_APP_NAME" envDefault:"AuthLink"`

	// Secret signs state cookies and JWT sessions and keys token digests
	Secret string `env:"AUTHLINK_SECRET"`

	// BaseURL is the externally visible URL the auth routes are mounted at,
	// e.g. https://example.com/auth
	BaseURL         string `env:"AUTHLINK_BASE_URL" envDefault:"http://localhost:8080/auth"`
	DefaultRedirect string `env:"AUTHLINK_DEFAULT_REDIRECT" envDefault:"/"`

	StateMaxAge     time.Duration `env:"AUTHLINK_STATE_MAX_AGE" envDefault:"15m"`
	SessionMaxAge   time.Duration `env:"AUTHLINK_SESSION_MAX_AGE" envDefault:"720h"`
	SessionStrategy string        `env:"AUTHLINK_SESSION_STRATEGY" envDefault:"jwt"`

	SecureCookies bool   `env:"AUTHLINK_SECURE_COOKIES"`
	CookieDomain  string `env:"AUTHLINK_COOKIE_DOMAIN"`

	// StoragePath is where the file store keeps its data
	StoragePath string `env:"AUTHLINK_STORAGE_PATH" envDefault:"./data"`
}

// LoadConfigFromEnv parses the environment into a Config and applies defaults
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.EnsureDefaults()
	return cfg, nil
}

func (c *Config) EnsureDefaults() *Config {
	if c.AppName == "" {
		c.AppName = "AuthLink"
	}
	if c.DefaultRedirect == "" {
		c.DefaultRedirect = "/"
	}
	if c.StateMaxAge <= 0 {
		c.StateMaxAge = DefaultStateMaxAge
	}
	if c.SessionMaxAge <= 0 {
		c.SessionMaxAge = DefaultSessionMaxAge
	}
	if c.SessionStrategy == "" {
		c.SessionStrategy = SessionStrategyJWT
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	return c
}

// Validate reports setup faults. All errors wrap ErrConfiguration.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("%w: AUTHLINK_SECRET is required", ErrConfiguration)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: invalid base url %q", ErrConfiguration, c.BaseURL)
	}
	switch c.SessionStrategy {
	case SessionStrategyJWT, SessionStrategyDatabase, SessionStrategySCS:
	default:
		return fmt.Errorf("%w: unknown session strategy %q", ErrConfiguration, c.SessionStrategy)
	}
	return nil
}

// Issuer is the issuer claim put on every token we sign
func (c *Config) Issuer() string {
	return c.AppName + "-Issuer"
}

func (c *Config) CookieOptions() CookieOptions {
	return CookieOptions{
		Path:     "/",
		Domain:   c.CookieDomain,
		Secure:   c.SecureCookies,
		HttpOnly: true,
	}
}
