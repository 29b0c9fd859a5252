package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/config"
	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/db"
	"github.com/ziadkadry99/docindex/internal/embeddings"
	"github.com/ziadkadry99/docindex/internal/logging"
	"github.com/ziadkadry99/docindex/internal/reconcile"
	"github.com/ziadkadry99/docindex/internal/vectordb"
	"github.com/ziadkadry99/docindex/internal/walker"
)

// app holds the stores and services shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *db.DB
	catalog *catalog.Store
	vectors *vectordb.ChromemStore
	coord   *coordinator.Coordinator
	source  *walker.Source
	jobs    *reconcile.Store
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `docindex init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Format: cfg.Log.Format})
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	return embeddings.New(embeddings.Options{
		Provider:          string(cfg.EmbeddingProvider),
		Model:             cfg.EmbeddingModel,
		Dimensions:        cfg.EmbeddingDimensions,
		OllamaURL:         cfg.OllamaURL,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		RequestsPerMinute: cfg.EmbeddingRPM,
	})
}

func createSourceFromConfig(cfg *config.Config) (*walker.Source, error) {
	if len(cfg.Sources) == 0 {
		return nil, nil
	}
	roots := make([]walker.Root, len(cfg.Sources))
	for i, s := range cfg.Sources {
		roots[i] = walker.Root{
			Path:       s.Path,
			Collection: s.Collection,
			Include:    s.Include,
			Exclude:    s.Exclude,
			Extensions: s.Extensions,
		}
	}
	return walker.NewSource(roots, cfg.MaxFileSize)
}

// openApp loads the config and opens both stores.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	source, err := createSourceFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring sources: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	vectors, err := vectordb.NewPersistentChromemStore(cfg.VectorDir(), embedder, logger)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	meta := catalog.NewStore(database, logger)
	coord := coordinator.New(meta, vectors, embedder, coordinator.Options{
		DefaultCollection: cfg.DefaultCollection,
		MetadataTimeout:   cfg.Timeouts.Metadata,
		VectorTimeout:     cfg.Timeouts.Vector,
		EmbedTimeout:      cfg.Timeouts.Embedding,
		RetryAttempts:     cfg.Retry.Attempts,
		RetryBackoff:      cfg.Retry.Backoff,
		Logger:            logger,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      database,
		catalog: meta,
		vectors: vectors,
		coord:   coord,
		source:  source,
		jobs:    reconcile.NewStore(database),
	}, nil
}

// newJob builds the reconciliation job. onProgress may be nil.
func (a *app) newJob(onProgress func(reconcile.Progress)) *reconcile.Job {
	return reconcile.NewJob(a.coord, a.catalog, a.source, a.jobs, reconcile.Options{
		RepairsPerSecond: a.cfg.Reconcile.MaxRepairsPerSecond,
		RetryBackoff:     a.cfg.Retry.Backoff,
		Logger:           a.logger,
		OnProgress:       onProgress,
	})
}

func (a *app) Close() error {
	return a.db.Close()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
