package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/lumflare/lumflare/engine/core"
)

// fileStore persists documents and chunks to a JSON snapshot so small
// deployments survive restarts without a database. All reads and searches are
// served by the embedded in-memory store; every mutation rewrites the
// snapshot atomically.
type fileStore struct {
	*memoryStore
	fs   afero.Fs
	path string
}

func newFileStore(cfg *Config) (*fileStore, error) {
	return newFileStoreWithFs(cfg, afero.NewOsFs())
}

func newFileStoreWithFs(cfg *Config, fs afero.Fs) (*fileStore, error) {
	storePath := filepath.Clean(cfg.Path)
	dir := filepath.Dir(storePath)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("vector_store %q: ensure directory %q: %w", cfg.ID, dir, err)
	}
	store := &fileStore{
		memoryStore: newMemoryStore(cfg),
		fs:          fs,
		path:        storePath,
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *fileStore) AddDocument(ctx context.Context, doc *Document) (core.ID, error) {
	id, err := s.memoryStore.AddDocument(ctx, doc)
	if err != nil {
		return "", err
	}
	if err := s.persist(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *fileStore) AddChunks(ctx context.Context, documentID core.ID, chunks []Chunk, vectors [][]float32) error {
	if err := s.memoryStore.AddChunks(ctx, documentID, chunks, vectors); err != nil {
		return err
	}
	return s.persist()
}

func (s *fileStore) DeleteDocument(ctx context.Context, id core.ID) error {
	if err := s.memoryStore.DeleteDocument(ctx, id); err != nil {
		return err
	}
	return s.persist()
}

func (s *fileStore) load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vector_store %q: read %q: %w", s.id, s.path, err)
	}
	var payload fileStorePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("vector_store %q: decode %q: %w", s.id, s.path, err)
	}
	if payload.Dimension > 0 && payload.Dimension != s.dimension {
		return fmt.Errorf(
			"vector_store %q: stored dimension %d does not match config %d for %q",
			s.id, payload.Dimension, s.dimension, s.path,
		)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range payload.Documents {
		doc := payload.Documents[i].document()
		s.documents[doc.ID] = doc
	}
	for i := range payload.Chunks {
		chunk := payload.Chunks[i].chunk()
		s.chunks[chunk.ID] = chunk
	}
	return nil
}

func (s *fileStore) persist() error {
	s.mu.RLock()
	payload := fileStorePayload{
		Dimension: s.dimension,
		Documents: make([]fileStoreDocument, 0, len(s.documents)),
		Chunks:    make([]fileStoreChunk, 0, len(s.chunks)),
	}
	for _, doc := range s.documents {
		payload.Documents = append(payload.Documents, newFileStoreDocument(doc))
	}
	for _, chunk := range s.chunks {
		payload.Chunks = append(payload.Chunks, newFileStoreChunk(chunk))
	}
	s.mu.RUnlock()
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("vector_store %q: encode snapshot: %w", s.id, err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("vector_store %q: write snapshot: %w", s.id, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("vector_store %q: commit snapshot: %w", s.id, err)
	}
	return nil
}

type fileStorePayload struct {
	Dimension int                 `json:"dimension"`
	Documents []fileStoreDocument `json:"documents"`
	Chunks    []fileStoreChunk    `json:"chunks"`
}

type fileStoreDocument struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	FileName    string         `json:"file_name"`
	FileType    string         `json:"file_type,omitempty"`
	StoragePath string         `json:"storage_path,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ChunkCount  int            `json:"chunk_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func newFileStoreDocument(doc Document) fileStoreDocument {
	return fileStoreDocument{
		ID:          doc.ID.String(),
		OwnerID:     doc.OwnerID,
		FileName:    doc.FileName,
		FileType:    doc.FileType,
		StoragePath: doc.StoragePath,
		Metadata:    doc.Metadata,
		ChunkCount:  doc.ChunkCount,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func (d fileStoreDocument) document() Document {
	return Document{
		ID:          core.ID(d.ID),
		OwnerID:     d.OwnerID,
		FileName:    d.FileName,
		FileType:    d.FileType,
		StoragePath: d.StoragePath,
		Metadata:    d.Metadata,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type fileStoreChunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	CharCount  int            `json:"char_count"`
	Embedding  []float32      `json:"embedding"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func newFileStoreChunk(chunk Chunk) fileStoreChunk {
	return fileStoreChunk{
		ID:         chunk.ID.String(),
		DocumentID: chunk.DocumentID.String(),
		Index:      chunk.Index,
		Text:       chunk.Text,
		CharCount:  chunk.CharCount,
		Embedding:  chunk.Embedding,
		Metadata:   chunk.Metadata,
		CreatedAt:  chunk.CreatedAt,
	}
}

func (c fileStoreChunk) chunk() Chunk {
	return Chunk{
		ID:         core.ID(c.ID),
		DocumentID: core.ID(c.DocumentID),
		Index:      c.Index,
		Text:       c.Text,
		CharCount:  c.CharCount,
		Embedding:  c.Embedding,
		Metadata:   c.Metadata,
		CreatedAt:  c.CreatedAt,
	}
}
