// Package config models the deckmesh.yml service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/deckmesh/core"
)

// Config models deckmesh.yml.
type Config struct {
	Server struct {
		Addr              string   `yaml:"addr"`
		HeartbeatInterval Duration `yaml:"heartbeat_interval"`
		AllowedOrigins    []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Database struct {
		// Path is the SQLite database file; ":memory:" keeps everything
		// in-process, "" selects the non-durable in-memory store.
		Path string `yaml:"path"`
	} `yaml:"database"`
	LLM struct {
		// Provider selects the completion adapter: "openai" or "anthropic".
		Provider string `yaml:"provider"`
		// Models maps quality tiers to concrete model names. Missing tiers
		// fall back to the "standard" entry.
		Models        map[string]string `yaml:"models"`
		Timeout       Duration          `yaml:"timeout"`
		MaxAttempts   int               `yaml:"max_attempts"`
		BaseDelay     Duration          `yaml:"base_delay"`
		MaxDelay      Duration          `yaml:"max_delay"`
		SchemaRetries int               `yaml:"schema_retries"`
		Temperature   float64           `yaml:"temperature"`
		MaxTokens     int64             `yaml:"max_tokens"`
	} `yaml:"llm"`
	Pipeline struct {
		// Concurrency bounds in-flight slide tasks across all decks.
		Concurrency int `yaml:"concurrency"`
	} `yaml:"pipeline"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Duration wraps time.Duration for YAML string values like "60s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the baseline configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.HeartbeatInterval = Duration(15 * time.Second)
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Database.Path = "deckmesh.db"
	cfg.LLM.Provider = "openai"
	cfg.LLM.Models = map[string]string{
		string(core.QualityDraft):    "gpt-4o-mini",
		string(core.QualityStandard): "gpt-4o-mini",
		string(core.QualityPremium):  "gpt-4o",
	}
	cfg.LLM.Timeout = Duration(60 * time.Second)
	cfg.LLM.MaxAttempts = 3
	cfg.LLM.BaseDelay = Duration(500 * time.Millisecond)
	cfg.LLM.MaxDelay = Duration(8 * time.Second)
	cfg.LLM.SchemaRetries = 2
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxTokens = 4096
	cfg.Pipeline.Concurrency = 4
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.HeartbeatInterval.Std() <= 0 {
		return fmt.Errorf("config.server.heartbeat_interval must be positive")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("config.llm.provider must be openai, anthropic or mock, got %q", c.LLM.Provider)
	}
	if _, ok := c.LLM.Models[string(core.QualityStandard)]; !ok {
		return fmt.Errorf("config.llm.models must define the standard tier")
	}
	for tier := range c.LLM.Models {
		switch core.Quality(tier) {
		case core.QualityDraft, core.QualityStandard, core.QualityPremium:
		default:
			return fmt.Errorf("config.llm.models has unknown tier %q", tier)
		}
	}
	if c.LLM.MaxAttempts <= 0 {
		return fmt.Errorf("config.llm.max_attempts must be positive")
	}
	if c.LLM.SchemaRetries < 0 {
		return fmt.Errorf("config.llm.schema_retries must not be negative")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("config.pipeline.concurrency must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config.log.format must be json or text")
	}
	return nil
}

// Model returns the model name for a quality tier, falling back to standard.
func (c *Config) Model(q core.Quality) string {
	if m, ok := c.LLM.Models[string(q)]; ok {
		return m
	}
	return c.LLM.Models[string(core.QualityStandard)]
}

// FromYAML parses and validates config from raw YAML bytes. Values not set
// in the document keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}
