package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to docindex! Let's configure your index.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select embedding provider",
		Items: []string{
			"hash   (local, deterministic, no API key)",
			"openai (text-embedding-3-small)",
			"ollama (local model server)",
		},
	}
	providerIdx, _, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.EmbeddingProvider = []ProviderType{ProviderHash, ProviderOpenAI, ProviderOllama}[providerIdx]

	if cfg.EmbeddingProvider == ProviderOllama {
		urlPrompt := promptui.Prompt{Label: "Ollama URL", Default: cfg.OllamaURL}
		if cfg.OllamaURL, err = urlPrompt.Run(); err != nil {
			return nil, fmt.Errorf("ollama url: %w", err)
		}
	}

	dataPrompt := promptui.Prompt{Label: "Data directory", Default: cfg.DataDir}
	if cfg.DataDir, err = dataPrompt.Run(); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	sourcePrompt := promptui.Prompt{
		Label:   "Directory to index (leave blank for none)",
		Default: "",
	}
	sourcePath, err := sourcePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("source path: %w", err)
	}

	if sourcePath != "" {
		collectionPrompt := promptui.Prompt{
			Label:   "Collection name",
			Default: filepath.Base(filepath.Clean(sourcePath)),
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("collection is required")
				}
				return nil
			},
		}
		collection, err := collectionPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("collection: %w", err)
		}

		includePrompt := promptui.Prompt{
			Label:   "Include patterns (comma-separated globs, blank for .txt .md .json .csv)",
			Default: "",
		}
		includeStr, err := includePrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("include patterns: %w", err)
		}

		cfg.Sources = append(cfg.Sources, SourceConfig{
			Path:       sourcePath,
			Collection: strings.TrimSpace(collection),
			Include:    splitAndTrim(includeStr),
		})
		cfg.DefaultCollection = strings.TrimSpace(collection)
	}

	schedulePrompt := promptui.Prompt{
		Label:   "Daily reconciliation time (HH:MM)",
		Default: cfg.Reconcile.ScheduleTime,
	}
	if cfg.Reconcile.ScheduleTime, err = schedulePrompt.Run(); err != nil {
		return nil, fmt.Errorf("schedule time: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if envVar := APIKeyEnvVar(cfg.EmbeddingProvider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before starting docindex.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
