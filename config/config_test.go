package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"ACCOUNTLINK_SESSION_SECRET": "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, StoreFS, cfg.Store.Kind)
	assert.Equal(t, "./data", cfg.Store.Path)
	assert.Equal(t, 24*time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, time.Hour, cfg.Session.TokenTTL)
	assert.Equal(t, "/img/rogo.png", cfg.DefaultAvatarURL)
	assert.Equal(t, 1, cfg.MinPasswordLength)
	assert.False(t, cfg.Github.Enabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"ACCOUNTLINK_SESSION_SECRET":         "s3cret",
		"ACCOUNTLINK_SESSION_COOKIE_DOMAINS": "a.com,b.com",
		"ACCOUNTLINK_STORE_KIND":             "postgres",
		"ACCOUNTLINK_STORE_DSN":              "postgres://localhost/accounts",
		"ACCOUNTLINK_GITHUB_CLIENT_ID":       "gh-id",
		"ACCOUNTLINK_GITHUB_CLIENT_SECRET":   "gh-secret",
		"ACCOUNTLINK_KAKAO_CALLBACK_URL":     "https://example.com/kakao/cb",
		"ACCOUNTLINK_BASE_URL":               "https://example.com/",
		"ACCOUNTLINK_LOG_LEVEL":              "DEBUG",
	})
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store.Kind)
	assert.Equal(t, []string{"a.com", "b.com"}, cfg.Session.CookieDomains)
	assert.True(t, cfg.Github.Enabled())
	assert.Equal(t, "gh-secret", cfg.Github.ClientSecret)
	assert.Equal(t, "https://example.com/auth/github/callback", cfg.CallbackURL("github"))
	assert.Equal(t, "https://example.com/kakao/cb", cfg.CallbackURL("kakao"))
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing secret", map[string]string{}, "session secret is required"},
		{"unknown store", map[string]string{
			"ACCOUNTLINK_SESSION_SECRET": "x",
			"ACCOUNTLINK_STORE_KIND":     "redis",
		}, `unknown store kind: "redis"`},
		{"sqlite without dsn", map[string]string{
			"ACCOUNTLINK_SESSION_SECRET": "x",
			"ACCOUNTLINK_STORE_KIND":     "sqlite",
		}, "store dsn is required for the sqlite store"},
		{"datastore without project", map[string]string{
			"ACCOUNTLINK_SESSION_SECRET": "x",
			"ACCOUNTLINK_STORE_KIND":     "datastore",
		}, "project id is required"},
		{"provider without secret", map[string]string{
			"ACCOUNTLINK_SESSION_SECRET":   "x",
			"ACCOUNTLINK_GOOGLE_CLIENT_ID": "g",
		}, "google client secret is required"},
		{"zero password length", map[string]string{
			"ACCOUNTLINK_SESSION_SECRET":      "x",
			"ACCOUNTLINK_MIN_PASSWORD_LENGTH": "0",
		}, "min password length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFrom_BadValue(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"ACCOUNTLINK_SESSION_SECRET":   "x",
		"ACCOUNTLINK_SESSION_LIFETIME": "forever",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}
