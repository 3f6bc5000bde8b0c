package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lumflare/lumflare/engine/core"
	"github.com/lumflare/lumflare/engine/knowledge/embedder"
)

// memoryStore keeps documents and chunks in process memory and answers
// similarity queries by exact linear scan.
type memoryStore struct {
	mu           sync.RWMutex
	id           string
	dimension    int
	maxFilterIDs int
	documents    map[core.ID]Document
	chunks       map[core.ID]Chunk
}

func newMemoryStore(cfg *Config) *memoryStore {
	return &memoryStore{
		id:           cfg.ID,
		dimension:    cfg.Dimension,
		maxFilterIDs: cfg.OwnerFilterMaxIDs,
		documents:    make(map[core.ID]Document),
		chunks:       make(map[core.ID]Chunk),
	}
}

func (s *memoryStore) AddDocument(_ context.Context, doc *Document) (core.ID, error) {
	if doc == nil {
		return "", fmt.Errorf("vector_store %q: document is required", s.id)
	}
	if doc.OwnerID == "" {
		return "", fmt.Errorf("vector_store %q: document owner is required", s.id)
	}
	now := time.Now().UTC()
	if doc.ID.IsZero() {
		doc.ID = core.MustNewID()
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.ChunkCount = 0
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *doc
	stored.Metadata = core.CloneMap(doc.Metadata)
	s.documents[doc.ID] = stored
	return doc.ID, nil
}

func (s *memoryStore) AddChunks(_ context.Context, documentID core.ID, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf(
			"vector_store %q: chunks and vectors length mismatch (%d vs %d)",
			s.id, len(chunks), len(vectors),
		)
	}
	for i := range vectors {
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf(
				"vector_store %q: vector %d dimension mismatch (got %d want %d)",
				s.id, i, len(vectors[i]), s.dimension,
			)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("vector_store %q: document %q not found", s.id, documentID)
	}
	now := time.Now().UTC()
	for i := range chunks {
		chunk := chunks[i]
		if chunk.ID.IsZero() {
			chunk.ID = core.MustNewID()
		}
		chunk.DocumentID = documentID
		chunk.Embedding = core.CloneVector(vectors[i])
		chunk.Metadata = core.CloneMap(chunk.Metadata)
		chunk.CreatedAt = now
		s.chunks[chunk.ID] = chunk
	}
	doc.ChunkCount = s.countChunksLocked(documentID)
	doc.UpdatedAt = now
	s.documents[documentID] = doc
	return nil
}

func (s *memoryStore) SearchSimilar(_ context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf(
			"vector_store %q: query dimension mismatch (got %d want %d)",
			s.id, len(query), s.dimension,
		)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docSet map[core.ID]struct{}
	if opts.OwnerID != "" {
		docSet = s.ownerDocumentsLocked(opts.OwnerID)
		if len(docSet) == 0 {
			return nil, nil
		}
		if len(docSet) > s.maxFilterIDs {
			// Membership clause impractical for this owner: fall back to a
			// full scan filtered by the parent document's owner.
			docSet = nil
		}
	}
	candidates := make([]SearchResult, 0, topK)
	for _, chunk := range s.chunks {
		if docSet != nil {
			if _, ok := docSet[chunk.DocumentID]; !ok {
				continue
			}
		} else if opts.OwnerID != "" {
			doc, ok := s.documents[chunk.DocumentID]
			if !ok || doc.OwnerID != opts.OwnerID {
				continue
			}
		}
		// Chunks without a stored embedding are skipped, not scored as zero.
		if len(chunk.Embedding) == 0 {
			continue
		}
		score, err := embedder.CosineSimilarity(chunk.Embedding, query)
		if err != nil {
			return nil, fmt.Errorf("vector_store %q: score chunk %q: %w", s.id, chunk.ID, err)
		}
		if score < opts.MinScore {
			continue
		}
		candidates = append(candidates, SearchResult{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			Metadata:   core.CloneMap(chunk.Metadata),
			Score:      score,
		})
	}
	sortResults(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *memoryStore) GetDocument(_ context.Context, id core.ID) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, nil
	}
	doc.Metadata = core.CloneMap(doc.Metadata)
	return &doc, nil
}

func (s *memoryStore) ListDocuments(_ context.Context, ownerID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0)
	for _, doc := range s.documents {
		if doc.OwnerID != ownerID {
			continue
		}
		doc.Metadata = core.CloneMap(doc.Metadata)
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func (s *memoryStore) DeleteDocument(_ context.Context, id core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chunkID, chunk := range s.chunks {
		if chunk.DocumentID == id {
			delete(s.chunks, chunkID)
		}
	}
	delete(s.documents, id)
	return nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func (s *memoryStore) ownerDocumentsLocked(ownerID string) map[core.ID]struct{} {
	set := make(map[core.ID]struct{})
	for id, doc := range s.documents {
		if doc.OwnerID == ownerID {
			set[id] = struct{}{}
		}
	}
	return set
}

func (s *memoryStore) countChunksLocked(documentID core.ID) int {
	count := 0
	for _, chunk := range s.chunks {
		if chunk.DocumentID == documentID {
			count++
		}
	}
	return count
}

// sortResults orders by score descending; equal scores fall back to chunk ID
// ascending so results are deterministic regardless of map iteration order.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ChunkID < results[j].ChunkID
		}
		return results[i].Score > results[j].Score
	})
}
