package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const envPrefix = "DOCINDEX_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (DOCINDEX_*). A double underscore
// separates nested keys: DOCINDEX_RECONCILE__SCHEDULE_TIME.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps DOCINDEX_SERVER__PORT to server.port.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
	ProviderHash:   true,
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"text": true, "json": true}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DefaultCollection == "" {
		return fmt.Errorf("default_collection is required")
	}
	if !validProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q: must be one of openai, ollama, hash", c.EmbeddingProvider)
	}
	if c.EmbeddingDimensions < 0 {
		return fmt.Errorf("embedding_dimensions must be non-negative")
	}
	if c.EmbeddingRPM < 0 {
		return fmt.Errorf("embedding_rpm must be non-negative")
	}

	seen := make(map[string]bool)
	feeds := make(map[string]string)
	for i, s := range c.Sources {
		if s.Path == "" || s.Collection == "" {
			return fmt.Errorf("sources[%d]: path and collection are required", i)
		}
		if seen[s.Path] {
			return fmt.Errorf("sources[%d]: duplicate path %s", i, s.Path)
		}
		seen[s.Path] = true
		// File ids derive from collection and relative path only.
		if other, ok := feeds[s.Collection]; ok {
			return fmt.Errorf("sources[%d]: collection %s is already fed by %s", i, s.Collection, other)
		}
		feeds[s.Collection] = s.Path
		for _, p := range append(append([]string{}, s.Include...), s.Exclude...) {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("sources[%d]: invalid glob pattern %q", i, p)
			}
		}
	}

	if c.Timeouts.Metadata <= 0 || c.Timeouts.Vector <= 0 || c.Timeouts.Embedding <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Retry.Attempts < 0 {
		return fmt.Errorf("retry.attempts must be non-negative")
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("retry.backoff must be non-negative")
	}

	if _, err := time.Parse("15:04", c.Reconcile.ScheduleTime); err != nil {
		return fmt.Errorf("invalid reconcile.schedule_time %q: must be HH:MM", c.Reconcile.ScheduleTime)
	}
	if c.Reconcile.MaxRepairsPerSecond < 0 {
		return fmt.Errorf("reconcile.max_repairs_per_second must be non-negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return ""
}
