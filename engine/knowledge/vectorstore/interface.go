package vectorstore

import (
	"context"
	"time"

	"github.com/lumflare/lumflare/engine/core"
)

const defaultTopK = 5

// Document is an indexed upload. It owns its chunks: created on ingest,
// updated when the chunk count changes, deleted together with all chunks.
type Document struct {
	ID          core.ID
	OwnerID     string
	FileName    string
	FileType    string
	StoragePath string
	Metadata    map[string]any
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a bounded segment of a document's text together with its
// embedding. Index values are contiguous from zero within a document.
type Chunk struct {
	ID         core.ID
	DocumentID core.ID
	Index      int
	Text       string
	CharCount  int
	Embedding  []float32
	Metadata   map[string]any
	CreatedAt  time.Time
}

// SearchResult is a scored chunk returned by similarity search. Score is
// cosine similarity in [-1, 1]; higher is more relevant.
type SearchResult struct {
	ChunkID    core.ID
	DocumentID core.ID
	ChunkIndex int
	Text       string
	Metadata   map[string]any
	Score      float64
}

// SearchOptions controls similarity search execution. An empty OwnerID
// searches the whole corpus.
type SearchOptions struct {
	OwnerID  string
	TopK     int
	MinScore float64
}

// Store persists documents and their embedded chunks and answers similarity
// queries. Similarity search against the scan-based backends is O(n) in
// total chunk count, a documented ceiling for this design's target scale.
type Store interface {
	// AddDocument persists a new document with a zero chunk count, assigning
	// its ID and timestamps, and returns the ID.
	AddDocument(ctx context.Context, doc *Document) (core.ID, error)
	// AddChunks persists chunks paired positionally with vectors. A length
	// mismatch fails before any write. The parent document's chunk count and
	// update timestamp are refreshed after the chunks land; a crash between
	// the two phases leaves the count stale, which is acceptable because the
	// count is advisory metadata never consulted by the search path.
	AddChunks(ctx context.Context, documentID core.ID, chunks []Chunk, vectors [][]float32) error
	// SearchSimilar returns up to TopK chunks scored by cosine similarity,
	// descending, with ties broken by chunk ID ascending. Chunks without a
	// stored embedding are skipped. When OwnerID is set and the owner has no
	// documents the result is empty without a scan.
	SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error)
	// GetDocument returns nil without error when the id is unknown.
	GetDocument(ctx context.Context, id core.ID) (*Document, error)
	// ListDocuments returns the owner's documents newest first.
	ListDocuments(ctx context.Context, ownerID string) ([]Document, error)
	// DeleteDocument removes all chunks referencing the document, then the
	// document itself. Re-invocation with the same id converges.
	DeleteDocument(ctx context.Context, id core.ID) error
	Close(ctx context.Context) error
}
