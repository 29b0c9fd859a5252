package embeddings

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/docindex/internal/errdefs"
)

// Embedder turns document content into vectors.
//
// Failures wrap errdefs.ErrEmbedding. Those caused by an overloaded or
// unreachable backend also wrap errdefs.ErrStoreUnavailable so callers can
// tell them apart from rejected input.
type Embedder interface {
	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the length of every vector, or 0 when the
	// backend decides it.
	Dimensions() int

	// Name identifies the backend and model.
	Name() string
}

// embedError wraps err as an embedding failure of the named backend.
func embedError(backend string, err error) error {
	return fmt.Errorf("%s: %w: %w", backend, errdefs.ErrEmbedding, err)
}

// transientError is embedError for failures worth retrying.
func transientError(backend string, err error) error {
	return embedError(backend, errdefs.Unavailable(err))
}

// checkVectors verifies a backend answered with one non-empty vector per
// text, each of the expected length when dims > 0.
func checkVectors(backend string, vecs [][]float32, want, dims int) error {
	if len(vecs) != want {
		return embedError(backend, fmt.Errorf("got %d vectors for %d texts", len(vecs), want))
	}
	for i, v := range vecs {
		switch {
		case len(v) == 0:
			return embedError(backend, fmt.Errorf("vector %d is empty", i))
		case dims > 0 && len(v) != dims:
			return embedError(backend, fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), dims))
		}
	}
	return nil
}
