package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc adapts e to the single-text function chromem collections
// call for query embeddings.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if err := checkVectors(e.Name(), vecs, 1, 0); err != nil {
			return nil, fmt.Errorf("query embedding: %w", err)
		}
		return vecs[0], nil
	}
}
