package config

import (
	"path/filepath"
	"time"
)

// DefaultConfigFile is the config file looked up in the working directory.
const DefaultConfigFile = ".docindex.yml"

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:           ".docindex",
		DefaultCollection: "default",
		EmbeddingProvider: ProviderHash,
		OllamaURL:         "http://localhost:11434",
		Timeouts: TimeoutConfig{
			Metadata:  5 * time.Second,
			Vector:    10 * time.Second,
			Embedding: 30 * time.Second,
		},
		Retry: RetryConfig{
			Attempts: 2,
			Backoff:  200 * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			ScheduleEnabled:     true,
			ScheduleTime:        "03:00",
			MaxRepairsPerSecond: 20,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DBPath is the SQLite catalog file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "docindex.db")
}

// VectorDir is the chromem persistence directory.
func (c *Config) VectorDir() string {
	return filepath.Join(c.DataDir, "vectors")
}
