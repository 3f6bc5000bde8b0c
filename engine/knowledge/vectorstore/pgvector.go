package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/lumflare/lumflare/engine/core"
)

// pgxPool is the subset of pgxpool.Pool the store uses. Tests satisfy it with
// a pgxmock pool.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type pgStore struct {
	pool         pgxPool
	id           string
	dimension    int
	maxFilterIDs int
	ensureIdx    bool
}

func newPGStore(ctx context.Context, cfg *Config) (*pgStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("vector_store %q: connect to postgres: %w", cfg.ID, err)
	}
	store := newPGStoreFromPool(pool, cfg)
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func newPGStoreFromPool(pool pgxPool, cfg *Config) *pgStore {
	return &pgStore{
		pool:         pool,
		id:           cfg.ID,
		dimension:    cfg.Dimension,
		maxFilterIDs: cfg.OwnerFilterMaxIDs,
		ensureIdx:    cfg.EnsureIndex,
	}
}

func (p *pgStore) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("vector_store %q: enable pgvector extension: %w", p.id, err)
	}
	createDocuments := `CREATE TABLE IF NOT EXISTS rag_documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT,
		storage_path TEXT,
		metadata JSONB,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`
	if _, err := p.pool.Exec(ctx, createDocuments); err != nil {
		return fmt.Errorf("vector_store %q: create documents table: %w", p.id, err)
	}
	createChunks := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES rag_documents(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		char_count INTEGER NOT NULL,
		embedding vector(%d),
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`, p.dimension)
	if _, err := p.pool.Exec(ctx, createChunks); err != nil {
		return fmt.Errorf("vector_store %q: create chunks table: %w", p.id, err)
	}
	if _, err := p.pool.Exec(
		ctx,
		"CREATE INDEX IF NOT EXISTS rag_chunks_document_id_idx ON rag_chunks (document_id)",
	); err != nil {
		return fmt.Errorf("vector_store %q: create document index: %w", p.id, err)
	}
	if _, err := p.pool.Exec(
		ctx,
		"CREATE INDEX IF NOT EXISTS rag_documents_owner_id_idx ON rag_documents (owner_id)",
	); err != nil {
		return fmt.Errorf("vector_store %q: create owner index: %w", p.id, err)
	}
	if p.ensureIdx {
		if _, err := p.pool.Exec(
			ctx,
			"CREATE INDEX IF NOT EXISTS rag_chunks_embedding_idx ON rag_chunks USING ivfflat (embedding vector_cosine_ops)",
		); err != nil {
			return fmt.Errorf("vector_store %q: create embedding index: %w", p.id, err)
		}
	}
	return nil
}

func (p *pgStore) AddDocument(ctx context.Context, doc *Document) (core.ID, error) {
	if doc == nil {
		return "", fmt.Errorf("vector_store %q: document is required", p.id)
	}
	if doc.OwnerID == "" {
		return "", fmt.Errorf("vector_store %q: document owner is required", p.id)
	}
	now := time.Now().UTC()
	if doc.ID.IsZero() {
		doc.ID = core.MustNewID()
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.ChunkCount = 0
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", fmt.Errorf("vector_store %q: marshal document metadata: %w", p.id, err)
	}
	const stmt = `INSERT INTO rag_documents
		(id, owner_id, file_name, file_type, storage_path, metadata, chunk_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)`
	if _, err := p.pool.Exec(
		ctx, stmt,
		doc.ID.String(), doc.OwnerID, doc.FileName, doc.FileType, doc.StoragePath, metadata, now,
	); err != nil {
		return "", fmt.Errorf("vector_store %q: insert document: %w", p.id, err)
	}
	return doc.ID, nil
}

func (p *pgStore) AddChunks(ctx context.Context, documentID core.ID, chunks []Chunk, vectors [][]float32) (err error) {
	if len(chunks) != len(vectors) {
		return fmt.Errorf(
			"vector_store %q: chunks and vectors length mismatch (%d vs %d)",
			p.id, len(chunks), len(vectors),
		)
	}
	for i := range vectors {
		if len(vectors[i]) != p.dimension {
			return fmt.Errorf(
				"vector_store %q: vector %d dimension mismatch (got %d want %d)",
				p.id, i, len(vectors[i]), p.dimension,
			)
		}
	}
	tx, txErr := p.pool.Begin(ctx)
	if txErr != nil {
		return fmt.Errorf("vector_store %q: begin tx: %w", p.id, txErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("vector_store %q: rollback failed: %w; original error: %v", p.id, rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("vector_store %q: commit: %w", p.id, commitErr)
		}
	}()
	now := time.Now().UTC()
	const insert = `INSERT INTO rag_chunks
		(id, document_id, chunk_index, content, char_count, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i := range chunks {
		chunk := chunks[i]
		if chunk.ID.IsZero() {
			chunk.ID = core.MustNewID()
		}
		metadata, marshalErr := json.Marshal(chunk.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("vector_store %q: marshal chunk metadata: %w", p.id, marshalErr)
		}
		if _, execErr := tx.Exec(
			ctx, insert,
			chunk.ID.String(), documentID.String(), chunk.Index, chunk.Text, chunk.CharCount,
			pgvector.NewVector(vectors[i]), metadata, now,
		); execErr != nil {
			return fmt.Errorf("vector_store %q: insert chunk %q: %w", p.id, chunk.ID, execErr)
		}
	}
	const update = `UPDATE rag_documents SET
		chunk_count = (SELECT COUNT(*) FROM rag_chunks WHERE document_id = $1),
		updated_at = $2
		WHERE id = $1`
	if _, execErr := tx.Exec(ctx, update, documentID.String(), now); execErr != nil {
		return fmt.Errorf("vector_store %q: update chunk count: %w", p.id, execErr)
	}
	return nil
}

func (p *pgStore) SearchSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(query) != p.dimension {
		return nil, fmt.Errorf(
			"vector_store %q: query dimension mismatch (got %d want %d)",
			p.id, len(query), p.dimension,
		)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	var docIDs []string
	if opts.OwnerID != "" {
		ids, err := p.ownerDocumentIDs(ctx, opts.OwnerID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		if len(ids) <= p.maxFilterIDs {
			docIDs = ids
		}
	}
	builder := strings.Builder{}
	builder.WriteString(
		"SELECT c.id, c.document_id, c.chunk_index, c.content, c.metadata, 1 - (c.embedding <=> $1) AS score FROM rag_chunks c",
	)
	args := []any{pgvector.NewVector(query)}
	argPos := 2
	switch {
	case docIDs != nil:
		builder.WriteString(fmt.Sprintf(" WHERE c.document_id = ANY($%d)", argPos))
		args = append(args, docIDs)
		argPos++
	case opts.OwnerID != "":
		// Too many documents for a membership clause: filter through the
		// parent table instead.
		builder.WriteString(fmt.Sprintf(
			" JOIN rag_documents d ON d.id = c.document_id WHERE d.owner_id = $%d", argPos,
		))
		args = append(args, opts.OwnerID)
		argPos++
	default:
		builder.WriteString(" WHERE 1=1")
	}
	builder.WriteString(" AND c.embedding IS NOT NULL")
	// Always applied: a floor of 0 still excludes negative-cosine chunks,
	// matching the in-memory backend.
	builder.WriteString(fmt.Sprintf(" AND 1 - (c.embedding <=> $1) >= $%d", argPos))
	args = append(args, opts.MinScore)
	argPos++
	builder.WriteString(fmt.Sprintf(" ORDER BY c.embedding <=> $1 ASC, c.id ASC LIMIT $%d", argPos))
	args = append(args, topK)
	rows, err := p.pool.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("vector_store %q: search: %w", p.id, err)
	}
	defer rows.Close()
	results := make([]SearchResult, 0, topK)
	for rows.Next() {
		var (
			id          string
			documentID  string
			chunkIndex  int
			content     string
			metadataRaw []byte
			score       float64
		)
		if err := rows.Scan(&id, &documentID, &chunkIndex, &content, &metadataRaw, &score); err != nil {
			return nil, fmt.Errorf("vector_store %q: scan result: %w", p.id, err)
		}
		meta, err := decodeMetadata(metadataRaw)
		if err != nil {
			return nil, fmt.Errorf("vector_store %q: decode chunk metadata: %w", p.id, err)
		}
		results = append(results, SearchResult{
			ChunkID:    core.ID(id),
			DocumentID: core.ID(documentID),
			ChunkIndex: chunkIndex,
			Text:       content,
			Metadata:   meta,
			Score:      score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector_store %q: search rows: %w", p.id, err)
	}
	return results, nil
}

func (p *pgStore) GetDocument(ctx context.Context, id core.ID) (*Document, error) {
	const stmt = `SELECT id, owner_id, file_name, file_type, storage_path, metadata, chunk_count, created_at, updated_at
		FROM rag_documents WHERE id = $1`
	doc, err := scanDocument(p.pool.QueryRow(ctx, stmt, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vector_store %q: get document: %w", p.id, err)
	}
	return doc, nil
}

func (p *pgStore) ListDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	const stmt = `SELECT id, owner_id, file_name, file_type, storage_path, metadata, chunk_count, created_at, updated_at
		FROM rag_documents WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := p.pool.Query(ctx, stmt, ownerID)
	if err != nil {
		return nil, fmt.Errorf("vector_store %q: list documents: %w", p.id, err)
	}
	defer rows.Close()
	docs := make([]Document, 0)
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("vector_store %q: scan document: %w", p.id, scanErr)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector_store %q: list rows: %w", p.id, err)
	}
	return docs, nil
}

func (p *pgStore) DeleteDocument(ctx context.Context, id core.ID) (err error) {
	tx, txErr := p.pool.Begin(ctx)
	if txErr != nil {
		return fmt.Errorf("vector_store %q: begin tx: %w", p.id, txErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("vector_store %q: rollback failed: %w; original error: %v", p.id, rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("vector_store %q: commit: %w", p.id, commitErr)
		}
	}()
	if _, execErr := tx.Exec(ctx, "DELETE FROM rag_chunks WHERE document_id = $1", id.String()); execErr != nil {
		return fmt.Errorf("vector_store %q: delete chunks: %w", p.id, execErr)
	}
	if _, execErr := tx.Exec(ctx, "DELETE FROM rag_documents WHERE id = $1", id.String()); execErr != nil {
		return fmt.Errorf("vector_store %q: delete document: %w", p.id, execErr)
	}
	return nil
}

func (p *pgStore) Close(context.Context) error {
	p.pool.Close()
	return nil
}

func (p *pgStore) ownerDocumentIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, "SELECT id FROM rag_documents WHERE owner_id = $1", ownerID)
	if err != nil {
		return nil, fmt.Errorf("vector_store %q: list owner documents: %w", p.id, err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("vector_store %q: scan owner document: %w", p.id, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector_store %q: owner rows: %w", p.id, err)
	}
	return ids, nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		id          string
		ownerID     string
		fileName    string
		fileType    *string
		storagePath *string
		metadataRaw []byte
		chunkCount  int
		createdAt   time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(
		&id, &ownerID, &fileName, &fileType, &storagePath, &metadataRaw, &chunkCount, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(metadataRaw)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		ID:         core.ID(id),
		OwnerID:    ownerID,
		FileName:   fileName,
		Metadata:   meta,
		ChunkCount: chunkCount,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	if fileType != nil {
		doc.FileType = *fileType
	}
	if storagePath != nil {
		doc.StoragePath = *storagePath
	}
	return doc, nil
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	meta := make(map[string]any)
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}
