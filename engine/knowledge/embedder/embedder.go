package embedder

import "context"

// Embedder is the contract the pipeline consumes. EmbedDocuments is
// order-preserving and returns one vector per input text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
