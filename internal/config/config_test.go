package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7.0, cfg.Pipeline.RatingThreshold)
	assert.Equal(t, 20, cfg.Pipeline.MaxTitlesPerRun)
	assert.Equal(t, 3, cfg.Lookup.MaxAttempts)
	assert.False(t, cfg.Telegram.Enabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listing url", func(c *Config) { c.Listing.URL = "" }},
		{"empty state path", func(c *Config) { c.Storage.Path = "" }},
		{"zero attempts", func(c *Config) { c.Lookup.MaxAttempts = 0 }},
		{"zero cap", func(c *Config) { c.Pipeline.MaxTitlesPerRun = 0 }},
		{"negative threshold", func(c *Config) { c.Pipeline.RatingThreshold = -1 }},
		{"inverted delay", func(c *Config) { c.Lookup.SearchDelayMinMS = 10; c.Lookup.SearchDelayMaxMS = 5 }},
		{"bad detail pattern", func(c *Config) { c.Rating.Selectors.DetailURLPattern = "(" }},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TELEGRAM_BOT_TOKEN":  "123:abc",
		"TELEGRAM_CHAT_ID":    "42",
		"RATING_THRESHOLD":    "7,5",
		"MAX_TITLES_PER_RUN":  "5",
		"LOOKUP_MAX_ATTEMPTS": "4",
		"PROCESSED_FILE":      "/tmp/state.json",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, applyEnv(cfg, lookup))

	assert.True(t, cfg.Telegram.Enabled())
	assert.Equal(t, 7.5, cfg.Pipeline.RatingThreshold)
	assert.Equal(t, 5, cfg.Pipeline.MaxTitlesPerRun)
	assert.Equal(t, 4, cfg.Lookup.MaxAttempts)
	assert.Equal(t, "/tmp/state.json", cfg.Storage.Path)
	assert.Equal(t, "/tmp/state.json.lock", cfg.GetLockPath())
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "MAX_TITLES_PER_RUN" {
			return "many", true
		}
		return "", false
	}
	assert.Error(t, applyEnv(Default(), lookup))
}

func TestLoadConfigLayersFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
pipeline:
  rating_threshold: 8
lookup:
  max_attempts: 5
  search_delay_min_ms: 0
  search_delay_max_ms: 0
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8.0, cfg.Pipeline.RatingThreshold)
	assert.Equal(t, 5, cfg.Lookup.MaxAttempts)
	assert.Equal(t, 20, cfg.Pipeline.MaxTitlesPerRun)
	lo, hi := cfg.GetSearchDelay()
	assert.Equal(t, time.Duration(0), lo)
	assert.Equal(t, time.Duration(0), hi)
}

func TestLoadConfigOnlyNeedsSearchURLForRatingSite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
rating:
  search_url: "https://mirror.example/es/search.php?stext="
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example/es/search.php?stext=", cfg.Rating.SearchURL)

	stale := filepath.Join(t.TempDir(), "stale.yaml")
	require.NoError(t, os.WriteFile(stale, []byte("rating:\n  base_url: \"https://www.filmaffinity.com\"\n"), 0o644))
	_, err = LoadConfig(stale)
	assert.Error(t, err)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  treshold: 1\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
