// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a default config with every required credential filled in.
func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Catalog.AccessKey = "AKIAEXAMPLE123"
	cfg.Catalog.SecretKey = "secret-key-that-is-long-enough"
	cfg.Catalog.AssociateTag = "autonote-22"
	cfg.LLM.APIKey = "sk-test-key"
	cfg.Note.Email = "writer@example.com"
	cfg.Note.Password = "hunter22"
	return cfg
}

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "autonote", cfg.Logger.ServiceName)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 800, cfg.Browser.ViewportHeight)
	assert.Equal(t, 10*time.Second, cfg.Note.AuthTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Note.Delays.Hashtag)
	assert.Equal(t, ".p-headerUser", cfg.Note.Selectors.AuthMarker)
	assert.Equal(t, 10, cfg.Catalog.RateLimitPerSecond)
	assert.Equal(t, []string{"Home", "Kitchen", "Electronics", "Fashion"}, cfg.Catalog.Categories)
	assert.Equal(t, 4.0, cfg.Catalog.MinRating)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4", cfg.LLM.Model)
	assert.Equal(t, 1500, cfg.LLM.MaxTokens)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, []string{"シンプル", "おしゃれ", "アイテム"}, cfg.Content.DefaultHashtags)
	assert.Empty(t, cfg.Database.URL)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Valid Config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("Defaults Report Every Missing Credential", func(t *testing.T) {
		issues := NewDefaultConfig().Check()
		assert.Contains(t, issues, "catalog.access_key must be at least 10 characters")
		assert.Contains(t, issues, "catalog.secret_key must be at least 20 characters")
		assert.Contains(t, issues, "note.email must be an email address")
		assert.Contains(t, issues, "note.password must be at least 6 characters")
		assert.Contains(t, issues, "llm.api_key must be an OpenAI key starting with sk-")
	})

	t.Run("Non Positive Rate Limits", func(t *testing.T) {
		cfg := validConfig()
		cfg.Catalog.RateLimitPerSecond = 0
		cfg.LLM.RateLimitPerMinute = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "catalog.rate_limit_per_second must be a positive integer")
		assert.Contains(t, err.Error(), "llm.rate_limit_per_minute must be a positive integer")
	})

	t.Run("Gemini Key Has No Prefix Requirement", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Provider = ProviderGemini
		cfg.LLM.APIKey = "AIza-gemini"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Unknown Provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Provider = "anthropic"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `llm.provider "anthropic" is not supported`)
	})

	t.Run("GCP Project Format", func(t *testing.T) {
		cfg := validConfig()
		cfg.App.GCPProjectID = "Bad_Project"
		require.Error(t, cfg.Validate())

		cfg.App.GCPProjectID = "autonote-prod"
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
server:
  port: 9090
note:
  auth_timeout: 20s
catalog:
  categories: ["Home"]
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 20*time.Second, cfg.Note.AuthTimeout)
		assert.Equal(t, []string{"Home"}, cfg.Catalog.Categories)
		// Defaults survive.
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Legacy Environment Variables", func(t *testing.T) {
		t.Setenv("NOTE_EMAIL", "legacy@example.com")
		t.Setenv("OPENAI_API_KEY", "sk-legacy")
		t.Setenv("AMAZON_API_RATE_LIMIT", "3")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "legacy@example.com", cfg.Note.Email)
		assert.Equal(t, "sk-legacy", cfg.LLM.APIKey)
		assert.Equal(t, 3, cfg.Catalog.RateLimitPerSecond)
	})

	t.Run("Prefixed Variable Wins Over Legacy", func(t *testing.T) {
		t.Setenv("NOTE_EMAIL", "legacy@example.com")
		t.Setenv("AUTONOTE_NOTE_EMAIL", "prefixed@example.com")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "prefixed@example.com", cfg.Note.Email)
	})

	t.Run("Environment Overrides Config File", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString("database:\n  url: \"postgres://configfile/db\"\n")))

		t.Setenv("DATABASE_URL", "postgres://envvar/db")
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://envvar/db", cfg.Database.URL)
	})
}

func TestAppConfig(t *testing.T) {
	assert.True(t, AppConfig{Env: "development"}.IsDevelopment())
	assert.False(t, AppConfig{Env: "production"}.IsDevelopment())

	loc := AppConfig{Timezone: "Asia/Tokyo"}.Location()
	assert.Equal(t, "Asia/Tokyo", loc.String())
	assert.Equal(t, time.Local, AppConfig{Timezone: "Nowhere/Special"}.Location())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "****", Mask("abc"))
	assert.Equal(t, "sk-t****", Mask("sk-test-key"))
}
