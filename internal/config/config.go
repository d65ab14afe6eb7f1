// Package config loads the process configuration from the environment, with
// an optional .env file for development.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tasklist-io/tasklist/internal/session"
	"github.com/tasklist-io/tasklist/oidc"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig
	OIDC     OIDCConfig
	Session  SessionConfig
	Database DatabaseConfig

	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

// ServerConfig configures the HTTP listener and the externally visible base
// URL the OIDC redirect is derived from.
type ServerConfig struct {
	Addr    string `env:"HTTP_ADDR" env-default:":8080"`
	BaseURL string `env:"BASE_URL" env-default:"http://localhost:8080"`
}

// OIDCConfig configures the relying party registration with the provider.
type OIDCConfig struct {
	Issuer       string            `env:"OIDC_ISSUER"`
	ClientID     string            `env:"OIDC_CLIENT_ID"`
	ClientSecret oidc.ClientSecret `env:"OIDC_CLIENT_SECRET"`
	Scopes       []string          `env:"OIDC_SCOPES" env-default:"email,profile"`
	CAFile       string            `env:"OIDC_PROVIDER_CA_FILE"`
}

// SessionConfig configures the backend-issued session tokens.
type SessionConfig struct {
	Secret session.SigningSecret `env:"SESSION_SECRET"`
	TTL    time.Duration         `env:"SESSION_TTL" env-default:"720h"`
}

// DatabaseConfig configures the Postgres connection.  Leaving PG_HOST unset
// runs the service on the in-memory store instead.
type DatabaseConfig struct {
	Host     string `env:"PG_HOST"`
	Port     uint16 `env:"PG_PORT" env-default:"5432"`
	User     string `env:"PG_USER" env-default:"tasklist"`
	Password string `env:"PG_PASSWORD"`
	Name     string `env:"PG_DATABASE" env-default:"tasklist"`
}

// Enabled reports whether a Postgres host is configured.
func (d DatabaseConfig) Enabled() bool { return d.Host != "" }

// URL returns a postgres connection URL for the pool.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	return u.String()
}

// Load reads configuration from the environment.  A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	const op = "config.Load"
	// missing .env is the normal case outside development
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: unable to read environment: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// validate reports all missing required settings at once, so a fresh
// deployment isn't fixed one variable per restart.
func (c *Config) validate() error {
	var result *multierror.Error
	if c.OIDC.Issuer == "" {
		result = multierror.Append(result, fmt.Errorf("OIDC_ISSUER is required"))
	}
	if c.OIDC.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("OIDC_CLIENT_ID is required"))
	}
	if c.OIDC.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("OIDC_CLIENT_SECRET is required"))
	}
	if c.Session.Secret == "" {
		result = multierror.Append(result, fmt.Errorf("SESSION_SECRET is required"))
	}
	if _, err := url.Parse(c.Server.BaseURL); err != nil || c.Server.BaseURL == "" {
		result = multierror.Append(result, fmt.Errorf("BASE_URL is not a valid URL"))
	}
	return result.ErrorOrNil()
}

// RedirectURL is the callback the provider redirects back to.
func (c *Config) RedirectURL() string {
	return c.Server.BaseURL + "/api/auth/callback"
}

// SecureCookies reports whether session cookies should carry the Secure
// attribute, based on the external base URL's scheme.
func (c *Config) SecureCookies() bool {
	u, err := url.Parse(c.Server.BaseURL)
	return err == nil && u.Scheme == "https"
}

// ProviderCA returns the PEM bundle for a private provider CA, when
// configured.
func (c *Config) ProviderCA() (string, error) {
	const op = "Config.ProviderCA"
	if c.OIDC.CAFile == "" {
		return "", nil
	}
	pem, err := os.ReadFile(c.OIDC.CAFile)
	if err != nil {
		return "", fmt.Errorf("%s: unable to read CA file: %w", op, err)
	}
	return string(pem), nil
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "tasklist",
		Level:      hclog.LevelFromString(c.LogLevel),
		JSONFormat: true,
	})
}
