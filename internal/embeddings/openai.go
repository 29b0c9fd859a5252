package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const openAIBatchSize = 100

// OpenAIModel represents a supported OpenAI embedding model.
type OpenAIModel string

const (
	ModelTextEmbedding3Small OpenAIModel = "text-embedding-3-small"
	ModelTextEmbedding3Large OpenAIModel = "text-embedding-3-large"
	ModelAda002              OpenAIModel = "text-embedding-ada-002"
)

func (m OpenAIModel) dimensions() int {
	switch m {
	case ModelTextEmbedding3Large:
		return 3072
	case ModelTextEmbedding3Small, ModelAda002:
		return 1536
	default:
		return 0
	}
}

// OpenAIEmbedder generates embeddings with the OpenAI embeddings API, or
// any server that speaks it.
type OpenAIEmbedder struct {
	client *openai.Client
	model  OpenAIModel
	dims   int
}

// NewOpenAIEmbedder creates an embedder for model. An empty baseURL uses
// the public API.
func NewOpenAIEmbedder(apiKey string, model OpenAIModel, baseURL string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dims:   model.dimensions(),
	}
}

func (e *OpenAIEmbedder) Name() string {
	return "openai/" + string(e.model)
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIBatchSize {
		batch := texts[start:min(start+openAIBatchSize, len(texts))]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, e.classify(err)
		}

		// Data is documented as ordered, but carries its own index.
		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, embedError(e.Name(), fmt.Errorf("response index %d out of range", d.Index))
			}
			vecs[d.Index] = d.Embedding
		}
		if err := checkVectors(e.Name(), vecs, len(batch), e.dims); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// classify marks rate limits, server errors and transport failures as
// transient.
func (e *OpenAIEmbedder) classify(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		if retryableStatus(apiErr.HTTPStatusCode) {
			return transientError(e.Name(), err)
		}
		return embedError(e.Name(), err)
	case errors.As(err, &reqErr):
		if retryableStatus(reqErr.HTTPStatusCode) {
			return transientError(e.Name(), err)
		}
		return embedError(e.Name(), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return embedError(e.Name(), err)
	default:
		return transientError(e.Name(), err)
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
