// Package pipeline orchestrates the retrieval flow: chunking and embedding
// documents on the way in, and assembling grounded prompts on the way out.
// Each call is an independent unit of work; the vector store is the only
// shared state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumflare/lumflare/engine/core"
	"github.com/lumflare/lumflare/engine/knowledge"
	"github.com/lumflare/lumflare/engine/knowledge/chunk"
	"github.com/lumflare/lumflare/engine/knowledge/embedder"
	"github.com/lumflare/lumflare/engine/knowledge/genai"
	"github.com/lumflare/lumflare/engine/knowledge/platformdocs"
	"github.com/lumflare/lumflare/engine/knowledge/vectorstore"
	"github.com/lumflare/lumflare/pkg/logger"
)

// unknownFileName labels sources whose chunk metadata carries no file name.
const unknownFileName = "Unknown"

// Config wires the pipeline's collaborators. Store, Embedder, and Generator
// are required; PlatformDocs is optional and disables the platform context
// step when nil.
type Config struct {
	Store        vectorstore.Store
	Embedder     embedder.Embedder
	Generator    genai.Generator
	PlatformDocs *platformdocs.Source
	Defaults     knowledge.Defaults
}

var (
	errMissingStore     = errors.New("pipeline: vector store is required")
	errMissingEmbedder  = errors.New("pipeline: embedder is required")
	errMissingGenerator = errors.New("pipeline: generator is required")
	errMissingOwner     = errors.New("pipeline: owner is required")
	errMissingFileName  = errors.New("pipeline: file name is required")
	errMissingQuestion  = errors.New("pipeline: question is required")
	errMissingRequest   = errors.New("pipeline: request is required")
	// ErrNoChunks is returned when chunking yields nothing, usually because
	// text extraction produced no usable content.
	ErrNoChunks = errors.New("pipeline: no chunks produced from document")
)

type Pipeline struct {
	store        vectorstore.Store
	embedder     embedder.Embedder
	generator    genai.Generator
	platformDocs *platformdocs.Source
	chunker      *chunk.Chunker
	defaults     knowledge.Defaults
	tracer       trace.Tracer
}

func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Embedder == nil {
		return nil, errMissingEmbedder
	}
	if cfg.Generator == nil {
		return nil, errMissingGenerator
	}
	defaults := knowledge.Sanitize(cfg.Defaults)
	chunker, err := chunk.NewChunker(chunk.Settings{Size: defaults.ChunkSize, Overlap: defaults.ChunkOverlap})
	if err != nil {
		return nil, fmt.Errorf("pipeline: build chunker: %w", err)
	}
	return &Pipeline{
		store:        cfg.Store,
		embedder:     cfg.Embedder,
		generator:    cfg.Generator,
		platformDocs: cfg.PlatformDocs,
		chunker:      chunker,
		defaults:     defaults,
		tracer:       otel.Tracer("lumflare.knowledge.pipeline"),
	}, nil
}

// IndexInput describes one document to ingest. Text is the already-extracted
// plain text; StoragePath is an opaque location reference for the original
// upload.
type IndexInput struct {
	OwnerID     string
	Text        string
	FileName    string
	FileType    string
	StoragePath string
	Metadata    map[string]any
}

// IndexDocument chunks, embeds, and persists one document, returning the new
// document ID. The document row is written before its chunks, so a failure
// in between leaves an empty document rather than orphaned chunks.
func (p *Pipeline) IndexDocument(ctx context.Context, input *IndexInput) (core.ID, error) {
	start := time.Now()
	if input == nil {
		return "", errors.New("pipeline: index input is required")
	}
	if strings.TrimSpace(input.OwnerID) == "" {
		return "", errMissingOwner
	}
	if strings.TrimSpace(input.FileName) == "" {
		return "", errMissingFileName
	}
	meta := map[string]any{
		"file_name": input.FileName,
		"file_type": input.FileType,
	}
	for key, value := range input.Metadata {
		meta[key] = value
	}
	drafts := p.chunker.Chunk(input.Text, meta)
	if len(drafts) == 0 {
		return "", ErrNoChunks
	}
	texts := make([]string, len(drafts))
	for i := range drafts {
		texts[i] = drafts[i].Text
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("pipeline: embed chunks: %w", err)
	}
	docID, err := p.store.AddDocument(ctx, &vectorstore.Document{
		OwnerID:     input.OwnerID,
		FileName:    input.FileName,
		FileType:    input.FileType,
		StoragePath: input.StoragePath,
		Metadata:    core.CloneMap(input.Metadata),
	})
	if err != nil {
		return "", fmt.Errorf("pipeline: add document: %w", err)
	}
	chunks := make([]vectorstore.Chunk, len(drafts))
	for i := range drafts {
		chunks[i] = vectorstore.Chunk{
			Index:     drafts[i].Index,
			Text:      drafts[i].Text,
			CharCount: drafts[i].CharCount,
			Metadata:  drafts[i].Metadata,
		}
	}
	if err := p.store.AddChunks(ctx, docID, chunks, vectors); err != nil {
		return "", fmt.Errorf("pipeline: add chunks: %w", err)
	}
	knowledge.RecordIngestDuration(ctx, input.OwnerID, time.Since(start))
	knowledge.RecordIngestChunks(ctx, input.OwnerID, len(chunks))
	logger.FromContext(ctx).Info(
		"document indexed",
		"document_id", docID.String(),
		"owner_id", input.OwnerID,
		"file_name", input.FileName,
		"chunks", len(chunks),
	)
	return docID, nil
}

// Source attributes one retrieved chunk back to its parent document.
type Source struct {
	DocumentID core.ID `json:"document_id"`
	FileName   string  `json:"file_name"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// QueryInput describes one retrieval question. TopK falls back to the
// configured default when zero. ExcludePlatformDocs turns off the secondary
// platform-documentation context.
type QueryInput struct {
	Question            string
	OwnerID             string
	TopK                int
	ExcludePlatformDocs bool
}

// QueryResult carries the generated answer plus the retrieval evidence used
// to produce it. Sources and Context reflect retrieval even when generation
// failed, so attribution survives a provider outage.
type QueryResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Context string   `json:"context"`
}

// Query retrieves context for the question and asks the generator for an
// answer. Generation failures are folded into the answer text instead of
// failing the call; retrieval failures are returned as errors.
func (p *Pipeline) Query(ctx context.Context, input *QueryInput) (*QueryResult, error) {
	start := time.Now()
	if input == nil {
		return nil, errors.New("pipeline: query input is required")
	}
	if strings.TrimSpace(input.Question) == "" {
		return nil, errMissingQuestion
	}
	results, err := p.retrieve(ctx, input.Question, input.OwnerID, input.TopK)
	if err != nil {
		return nil, err
	}
	contextText, sources := assembleContext(results)
	if len(results) == 0 {
		knowledge.RecordRetrievalEmpty(ctx, "query")
	}
	platformContext := ""
	if !input.ExcludePlatformDocs && p.platformDocs != nil {
		platformContext = p.platformDocs.Context(input.Question, p.defaults.PlatformDocSections)
	}
	prompt := buildQueryPrompt(input.Question, contextText, platformContext)
	answer := p.generate(ctx, prompt, "Error generating response: ", "No text content generated.")
	knowledge.RecordQueryLatency(ctx, time.Since(start))
	return &QueryResult{Answer: answer, Sources: sources, Context: contextText}, nil
}

// MaterialInput describes one material-generation request. Params feeds the
// type-specific template fields (subject, grade_level, topic, and so on).
type MaterialInput struct {
	Request string
	Type    MaterialType
	OwnerID string
	TopK    int
	Params  map[string]string
}

// MaterialResult carries the generated material, its retrieval attribution,
// and generation metadata.
type MaterialResult struct {
	Content  string         `json:"content"`
	Sources  []Source       `json:"sources"`
	Metadata map[string]any `json:"metadata"`
}

// GenerateMaterial retrieves context for the request and renders the
// type-specific generation prompt. When retrieval finds nothing, the prompt
// carries an explicit no-context marker instead of an empty block.
func (p *Pipeline) GenerateMaterial(ctx context.Context, input *MaterialInput) (*MaterialResult, error) {
	if input == nil {
		return nil, errors.New("pipeline: material input is required")
	}
	if strings.TrimSpace(input.Request) == "" {
		return nil, errMissingRequest
	}
	results, err := p.retrieve(ctx, input.Request, input.OwnerID, input.TopK)
	if err != nil {
		return nil, err
	}
	contextText, sources := assembleContext(results)
	if len(results) == 0 {
		knowledge.RecordRetrievalEmpty(ctx, "material")
	}
	promptContext := contextText
	if promptContext == "" {
		promptContext = noContextMarker
	}
	materialType := input.Type
	if materialType == "" {
		materialType = MaterialType("material")
	}
	prompt := formatMaterialPrompt(input.Request, promptContext, materialType, input.Params)
	content := p.generate(ctx, prompt, "Error generating material: ", "No content generated.")
	return &MaterialResult{
		Content: content,
		Sources: sources,
		Metadata: map[string]any{
			"material_type": string(materialType),
			"generated_at":  time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (p *Pipeline) retrieve(ctx context.Context, text, ownerID string, topK int) ([]vectorstore.SearchResult, error) {
	if topK <= 0 {
		topK = p.defaults.RetrievalTopK
	}
	queryVector, err := p.embedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("pipeline: embed query: %w", err)
	}
	spanCtx, span := p.tracer.Start(ctx, "lumflare.knowledge.pipeline.vector_search", trace.WithAttributes(
		attribute.String("owner_id", ownerID),
		attribute.Int("top_k", topK),
	))
	defer span.End()
	results, err := p.store.SearchSimilar(spanCtx, queryVector, vectorstore.SearchOptions{
		OwnerID:  ownerID,
		TopK:     topK,
		MinScore: p.defaults.RetrievalMinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: search similar: %w", err)
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

func (p *Pipeline) embedQuery(ctx context.Context, text string) ([]float32, error) {
	spanCtx, span := p.tracer.Start(ctx, "lumflare.knowledge.pipeline.embed_query", trace.WithAttributes(
		attribute.Int("query_length", len(text)),
	))
	defer span.End()
	return p.embedder.EmbedQuery(spanCtx, text)
}

// generate folds provider failures into the returned text so callers always
// get a displayable answer alongside the already-computed sources.
func (p *Pipeline) generate(ctx context.Context, prompt, errPrefix, emptyFallback string) string {
	outcome, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		knowledge.RecordGeneration(ctx, "error")
		logger.FromContext(ctx).Error("generation failed", "error", err)
		return errPrefix + err.Error()
	}
	switch {
	case outcome.Blocked():
		knowledge.RecordGeneration(ctx, "blocked")
	case outcome.Text == "":
		knowledge.RecordGeneration(ctx, "empty")
	default:
		knowledge.RecordGeneration(ctx, "ok")
	}
	return outcome.Resolve(emptyFallback)
}

func assembleContext(results []vectorstore.SearchResult) (string, []Source) {
	parts := make([]string, 0, len(results))
	sources := make([]Source, 0, len(results))
	for _, result := range results {
		parts = append(parts, result.Text)
		sources = append(sources, Source{
			DocumentID: result.DocumentID,
			FileName:   fileNameFrom(result.Metadata),
			Score:      result.Score,
			ChunkIndex: result.ChunkIndex,
		})
	}
	return strings.Join(parts, ContextSeparator), sources
}

func fileNameFrom(metadata map[string]any) string {
	if name, ok := metadata["file_name"].(string); ok && name != "" {
		return name
	}
	return unknownFileName
}

// buildQueryPrompt applies the assembly policy: platform-only questions get
// the platform prompt, grounded questions get the Q&A prompt with platform
// context appended, and everything else falls back to a context-free prompt.
func buildQueryPrompt(question, contextText, platformContext string) string {
	switch {
	case platformContext != "" && contextText == "":
		return formatPlatformPrompt(question, platformContext)
	case contextText != "":
		prompt := formatQAPrompt(question, contextText)
		if platformContext != "" {
			prompt += "\n\nAdditional Platform Information:\n" + platformContext
		}
		return prompt
	default:
		return formatContextFreePrompt(question)
	}
}
