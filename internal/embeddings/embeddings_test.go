package embeddings

import (
	"context"
	"math"
	"testing"
	"time"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"hello world", "hello world", "!!!"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 64 {
			t.Errorf("vector %d has %d dims, want 64", i, len(v))
		}
		if n := math.Sqrt(cosine(v, v)); math.Abs(n-1) > 1e-5 {
			t.Errorf("vector %d norm = %f, want 1", i, n)
		}
	}
	if cosine(vecs[0], vecs[1]) < 0.9999 {
		t.Error("same text should embed identically")
	}
}

func TestHashEmbedderSharedWordsAreSimilar(t *testing.T) {
	e := NewHashEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{"hello", "hello world", "zebra"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if cosine(vecs[0], vecs[1]) <= cosine(vecs[0], vecs[2]) {
		t.Errorf("expected 'hello' closer to 'hello world' than to 'zebra'")
	}
}

func TestHashEmbedderHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).Embed(ctx, []string{"x"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRateLimitedEmbedderPassThrough(t *testing.T) {
	inner := NewHashEmbedder(8)
	if NewRateLimitedEmbedder(inner, 0) != Embedder(inner) {
		t.Error("rpm 0 should return the embedder unchanged")
	}

	limited := NewRateLimitedEmbedder(inner, 60)
	if limited.Name() != "hash" || limited.Dimensions() != 8 {
		t.Errorf("unexpected name/dims: %s/%d", limited.Name(), limited.Dimensions())
	}
	if _, err := limited.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	// The bucket is empty now; a short deadline cannot be met.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := limited.Embed(ctx, []string{"b"}); err == nil {
		t.Error("expected rate limiter to reject call that cannot fit in deadline")
	}
}

func TestNew(t *testing.T) {
	e, err := New(Options{Provider: ProviderHash, Dimensions: 32})
	if err != nil {
		t.Fatalf("New(hash): %v", err)
	}
	if e.Dimensions() != 32 {
		t.Errorf("dims = %d, want 32", e.Dimensions())
	}

	o, err := New(Options{Provider: ProviderOllama})
	if err != nil {
		t.Fatalf("New(ollama): %v", err)
	}
	if o.Name() != "ollama/nomic-embed-text" {
		t.Errorf("ollama name = %q", o.Name())
	}

	if _, err := New(Options{Provider: "google"}); err == nil {
		t.Error("expected error for unsupported provider")
	}

	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New(Options{Provider: ProviderOpenAI}); err == nil {
		t.Error("expected error without OPENAI_API_KEY")
	}
}

func TestToChromemFunc(t *testing.T) {
	f := ToChromemFunc(NewHashEmbedder(16))
	v, err := f(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed func: %v", err)
	}
	if len(v) != 16 {
		t.Errorf("len = %d, want 16", len(v))
	}
}
