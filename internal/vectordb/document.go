package vectordb

// Document is one record of a vector collection. Metadata is the raw,
// string-only map held by the engine; see Record for the typed view.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Result is one similarity hit, in engine order.
type Result struct {
	ID         string
	Collection string
	Content    string
	Metadata   map[string]string
	// Distance is the cosine distance reported by the engine.
	Distance float64
	// Score is Distance mapped into [0, 1]; higher is more similar.
	Score float64
}
