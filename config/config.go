// Package config loads the accountlink server configuration from
// ACCOUNTLINK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every environment variable name.
const Prefix = "ACCOUNTLINK_"

// Store kinds
const (
	StoreFS        = "fs"
	StoreGORM      = "gorm"
	StoreSQLite    = "sqlite"
	StorePostgres  = "postgres"
	StoreDatastore = "datastore"
)

// Config describes the accountlink server.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR"  envDefault:":8080"`
	GRPCAddr  string `env:"GRPC_ADDR"  envDefault:":9090"`
	BaseURL   string `env:"BASE_URL"   envDefault:"http://localhost:8080"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`

	DefaultAvatarURL  string `env:"DEFAULT_AVATAR_URL"  envDefault:"/img/rogo.png"`
	MinPasswordLength int    `env:"MIN_PASSWORD_LENGTH" envDefault:"1"`
	RequireEmail      bool   `env:"REQUIRE_EMAIL"`

	Store   StoreConfig   `envPrefix:"STORE_"`
	Session SessionConfig `envPrefix:"SESSION_"`

	Github ProviderConfig `envPrefix:"GITHUB_"`
	Google ProviderConfig `envPrefix:"GOOGLE_"`
	Kakao  ProviderConfig `envPrefix:"KAKAO_"`
}

// StoreConfig selects the user directory backend.
type StoreConfig struct {
	Kind string `env:"KIND" envDefault:"fs"`

	// Root directory for the fs store.
	Path string `env:"PATH" envDefault:"./data"`

	// Data source for the gorm, sqlite and postgres stores.
	DSN string `env:"DSN"`

	ProjectID string `env:"PROJECT_ID"`
	Namespace string `env:"NAMESPACE"`
}

// SessionConfig controls browser sessions and auth tokens.
type SessionConfig struct {
	Secret        string        `env:"SECRET"`
	Issuer        string        `env:"ISSUER"         envDefault:"accountlink"`
	Lifetime      time.Duration `env:"LIFETIME"       envDefault:"24h"`
	TokenTTL      time.Duration `env:"TOKEN_TTL"      envDefault:"1h"`
	CookieDomains []string      `env:"COOKIE_DOMAINS" envSeparator:","`
	SecureCookies bool          `env:"SECURE_COOKIES"`
}

// ProviderConfig holds the OAuth client registration for one provider.
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Enabled returns true if the provider has a client id.
func (p ProviderConfig) Enabled() bool { return p.ClientID != "" }

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses the given environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the selected store and enabled providers have what
// they need.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Kind {
	case StoreFS:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store path is required for the fs store"))
		}
	case StoreGORM, StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store dsn is required for the %s store", c.Store.Kind))
		}
	case StoreDatastore:
		if c.Store.ProjectID == "" {
			errs = append(errs, errors.New("project id is required for the datastore store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind: %q", c.Store.Kind))
	}

	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session secret is required"))
	}
	if c.MinPasswordLength < 1 {
		errs = append(errs, errors.New("min password length must be at least 1"))
	}
	for name, p := range c.Providers() {
		if p.Enabled() && p.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("%s client secret is required when the client id is set", name))
		}
	}
	return errors.Join(errs...)
}

// Providers returns the provider configs keyed by provider name.
func (c Config) Providers() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"github": c.Github,
		"google": c.Google,
		"kakao":  c.Kakao,
	}
}

// CallbackURL returns the configured callback for provider, or the default
// <BaseURL>/auth/<provider>/callback.
func (c Config) CallbackURL(provider string) string {
	if p, ok := c.Providers()[provider]; ok && p.CallbackURL != "" {
		return p.CallbackURL
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/auth/" + provider + "/callback"
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
