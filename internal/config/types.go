package config

import "time"

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
	ProviderHash   ProviderType = "hash"
)

// Config is the top-level docindex configuration, corresponding to .docindex.yml.
type Config struct {
	DataDir             string          `yaml:"data_dir" koanf:"data_dir"`
	DefaultCollection   string          `yaml:"default_collection" koanf:"default_collection"`
	EmbeddingProvider   ProviderType    `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel      string          `yaml:"embedding_model" koanf:"embedding_model"`
	EmbeddingDimensions int             `yaml:"embedding_dimensions" koanf:"embedding_dimensions"`
	OllamaURL           string          `yaml:"ollama_url" koanf:"ollama_url"`
	OpenAIBaseURL       string          `yaml:"openai_base_url,omitempty" koanf:"openai_base_url"`
	EmbeddingRPM        int             `yaml:"embedding_rpm" koanf:"embedding_rpm"`
	MaxFileSize         int64           `yaml:"max_file_size" koanf:"max_file_size"`
	Sources             []SourceConfig  `yaml:"sources" koanf:"sources"`
	Timeouts            TimeoutConfig   `yaml:"timeouts" koanf:"timeouts"`
	Retry               RetryConfig     `yaml:"retry" koanf:"retry"`
	Reconcile           ReconcileConfig `yaml:"reconcile" koanf:"reconcile"`
	Server              ServerConfig    `yaml:"server" koanf:"server"`
	Log                 LogConfig       `yaml:"log" koanf:"log"`
}

// SourceConfig maps a filesystem root to a collection.
type SourceConfig struct {
	Path       string   `yaml:"path" koanf:"path"`
	Collection string   `yaml:"collection" koanf:"collection"`
	Include    []string `yaml:"include,omitempty" koanf:"include"`
	Exclude    []string `yaml:"exclude,omitempty" koanf:"exclude"`
	Extensions []string `yaml:"extensions,omitempty" koanf:"extensions"`
}

// TimeoutConfig bounds each store call.
type TimeoutConfig struct {
	Metadata  time.Duration `yaml:"metadata" koanf:"metadata"`
	Vector    time.Duration `yaml:"vector" koanf:"vector"`
	Embedding time.Duration `yaml:"embedding" koanf:"embedding"`
}

// RetryConfig controls retries of transient store failures.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" koanf:"attempts"`
	Backoff  time.Duration `yaml:"backoff" koanf:"backoff"`
}

// ReconcileConfig holds reconciliation settings.
type ReconcileConfig struct {
	ScheduleEnabled     bool    `yaml:"schedule_enabled" koanf:"schedule_enabled"`
	ScheduleTime        string  `yaml:"schedule_time" koanf:"schedule_time"`
	MaxRepairsPerSecond float64 `yaml:"max_repairs_per_second" koanf:"max_repairs_per_second"`
	Watch               bool    `yaml:"watch" koanf:"watch"`
	OnStartup           bool    `yaml:"on_startup" koanf:"on_startup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
