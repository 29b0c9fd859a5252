package embeddings

import (
	"fmt"
	"os"
)

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

// Options selects and configures an embedding backend.
type Options struct {
	Provider   string
	Model      string
	Dimensions int
	OllamaURL  string

	// OpenAIBaseURL points the OpenAI backend at a compatible server.
	OpenAIBaseURL string

	// RequestsPerMinute caps Embed calls; zero disables limiting.
	RequestsPerMinute int
}

// New builds the embedder described by opts. The OpenAI key is read from
// OPENAI_API_KEY.
func New(opts Options) (Embedder, error) {
	var e Embedder
	switch opts.Provider {
	case ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for openai embeddings")
		}
		model := OpenAIModel(opts.Model)
		if model == "" {
			model = ModelTextEmbedding3Small
		}
		e = NewOpenAIEmbedder(apiKey, model, opts.OpenAIBaseURL)
	case ProviderOllama:
		model := opts.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		dims := opts.Dimensions
		if dims == 0 {
			dims = 768
		}
		e = NewOllamaEmbedder(model, dims, opts.OllamaURL)
	case ProviderHash, "":
		e = NewHashEmbedder(opts.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", opts.Provider)
	}
	return NewRateLimitedEmbedder(e, opts.RequestsPerMinute), nil
}
