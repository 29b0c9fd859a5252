package embeddings

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder wraps an Embedder with a token bucket limiter.
type RateLimitedEmbedder struct {
	embedder Embedder
	limiter  *rate.Limiter
}

// NewRateLimitedEmbedder wraps the given embedder so that at most rpm
// Embed calls start per minute. rpm <= 0 returns the embedder unchanged.
func NewRateLimitedEmbedder(embedder Embedder, rpm int) Embedder {
	if rpm <= 0 {
		return embedder
	}
	burst := max(rpm/60, 1)
	return &RateLimitedEmbedder{
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}
}

func (r *RateLimitedEmbedder) Name() string {
	return r.embedder.Name()
}

func (r *RateLimitedEmbedder) Dimensions() int {
	return r.embedder.Dimensions()
}

func (r *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.embedder.Embed(ctx, texts)
}
