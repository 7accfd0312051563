package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deckmesh/core"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: ":9090"
llm:
  provider: anthropic
  models:
    standard: claude-sonnet-4-20250514
  timeout: 30s
pipeline:
  concurrency: 8
`))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout.Std())
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)

	// Untouched sections keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.HeartbeatInterval.Std())
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFromYAMLRejectsBadDuration(t *testing.T) {
	_, err := FromYAML([]byte("llm:\n  timeout: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero heartbeat", func(c *Config) { c.Server.HeartbeatInterval = 0 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }},
		{"missing standard tier", func(c *Config) { delete(c.LLM.Models, "standard") }},
		{"unknown tier", func(c *Config) { c.LLM.Models["turbo"] = "x" }},
		{"zero attempts", func(c *Config) { c.LLM.MaxAttempts = 0 }},
		{"negative schema retries", func(c *Config) { c.LLM.SchemaRetries = -1 }},
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestModelFallsBackToStandard(t *testing.T) {
	cfg := Default()
	cfg.LLM.Models = map[string]string{"standard": "gpt-4o-mini"}

	assert.Equal(t, "gpt-4o-mini", cfg.Model(core.QualityPremium))
	assert.Equal(t, "gpt-4o-mini", cfg.Model(core.QualityStandard))
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "deckmesh.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7070\"\n"), 0o600))
	cfg, err = LoadOptional(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}
