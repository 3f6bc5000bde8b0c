package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/errgroup"

	"github.com/lumflare/lumflare/engine/core"
	"github.com/lumflare/lumflare/pkg/logger"
)

// itemConcurrency bounds parallel per-item embedding calls within a batch.
const itemConcurrency = 4

// Adapter wraps a langchaingo embedder implementation. Batch embedding
// isolates per-item provider failures by substituting the zero-vector
// sentinel, so indexing survives transient errors on individual chunks.
type Adapter struct {
	id        string
	provider  Provider
	model     string
	dimension int
	batchSize int
	impl      embeddings.Embedder
	cacheMu   sync.Mutex
	cache     *lru.Cache[string, []float32]
}

// New constructs a provider-backed embedder adapter.
func New(ctx context.Context, cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	options := []embeddings.Option{
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(cfg.StripNewLines),
	}
	impl, err := buildProviderEmbedder(ctx, cfg, options...)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		id:        cfg.ID,
		provider:  cfg.Provider,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		impl:      impl,
	}, nil
}

// Wrap constructs an adapter around an existing langchaingo embedder.
func Wrap(cfg *Config, impl embeddings.Embedder) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if impl == nil {
		return nil, fmt.Errorf("embedder %q: implementation is required", cfg.ID)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Adapter{
		id:        cfg.ID,
		provider:  cfg.Provider,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		impl:      impl,
	}, nil
}

// Dimension returns the configured vector dimension.
func (a *Adapter) Dimension() int {
	return a.dimension
}

// BatchSize returns the configured batch size.
func (a *Adapter) BatchSize() int {
	return a.batchSize
}

// EnableCache initializes an LRU cache keyed by text hash for query
// embeddings.
func (a *Adapter) EnableCache(size int) error {
	if size <= 0 {
		return fmt.Errorf("embedder %q: cache size must be greater than zero", a.id)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return fmt.Errorf("embedder %q: init cache: %w", a.id, err)
	}
	a.cacheMu.Lock()
	a.cache = cache
	a.cacheMu.Unlock()
	return nil
}

// EmbedQuery embeds a single text, consulting the cache when enabled.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := a.lookupCache(text); ok {
		return vector, nil
	}
	vector, err := a.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, a.withContext(err)
	}
	a.storeCache(text, vector)
	return vector, nil
}

// EmbedDocuments embeds texts preserving order and length. The slice is
// processed in batches of BatchSize; when a whole batch fails, each item is
// retried individually and failing items are replaced with the zero-vector
// sentinel instead of failing the call.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		end := min(start+a.batchSize, len(texts))
		batch := texts[start:end]
		vectors, err := a.impl.EmbedDocuments(ctx, batch)
		if err == nil && len(vectors) == len(batch) {
			copy(results[start:end], vectors)
			continue
		}
		if err != nil {
			logger.FromContext(ctx).Warn(
				"batch embedding failed, retrying items individually",
				"embedder", a.id, "batch_start", start, "batch_size", len(batch), "error", err,
			)
		}
		if err := a.embedEach(ctx, texts, results, start, end); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// embedEach embeds items one by one with bounded parallelism. Item failures
// are isolated: the zero vector takes the item's slot and the error is
// logged. Only context cancellation aborts the whole call.
func (a *Adapter) embedEach(ctx context.Context, texts []string, results [][]float32, start, end int) error {
	g := errgroup.Group{}
	g.SetLimit(itemConcurrency)
	for i := start; i < end; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vector, err := a.impl.EmbedQuery(ctx, texts[i])
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return a.withContext(err)
				}
				logger.FromContext(ctx).Warn(
					"embedding item failed, substituting zero vector",
					"embedder", a.id, "index", i, "error", err,
				)
				results[i] = ZeroVector(a.dimension)
				return nil
			}
			results[i] = vector
			return nil
		})
	}
	return g.Wait()
}

func (a *Adapter) lookupCache(text string) ([]float32, bool) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cache == nil {
		return nil, false
	}
	value, ok := a.cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	return core.CloneVector(value), true
}

func (a *Adapter) storeCache(text string, vector []float32) {
	if len(vector) == 0 {
		return
	}
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cache == nil {
		return
	}
	a.cache.Add(cacheKey(text), core.CloneVector(vector))
}

func (a *Adapter) withContext(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("embedder %q: %w", a.id, err)
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func buildProviderEmbedder(
	ctx context.Context,
	cfg *Config,
	options ...embeddings.Option,
) (embeddings.Embedder, error) {
	switch cfg.Provider {
	case ProviderGoogleAI:
		return buildGoogleAIEmbedder(ctx, cfg, options...)
	case ProviderOpenAI:
		return buildOpenAIEmbedder(cfg, options...)
	default:
		return nil, fmt.Errorf("embedder %q: provider %q is not supported", cfg.ID, cfg.Provider)
	}
}

func buildGoogleAIEmbedder(
	ctx context.Context,
	cfg *Config,
	opts ...embeddings.Option,
) (embeddings.Embedder, error) {
	googleOpts := []googleai.Option{
		googleai.WithDefaultEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		googleOpts = append(googleOpts, googleai.WithAPIKey(cfg.APIKey))
	}
	client, err := googleai.New(ctx, googleOpts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to initialize googleai client: %w", cfg.ID, err)
	}
	impl, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to construct googleai embedder: %w", cfg.ID, err)
	}
	return impl, nil
}

func buildOpenAIEmbedder(cfg *Config, opts ...embeddings.Option) (embeddings.Embedder, error) {
	openaiOpts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		openaiOpts = append(openaiOpts, openai.WithToken(cfg.APIKey))
	}
	client, err := openai.New(openaiOpts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to initialize openai client: %w", cfg.ID, err)
	}
	impl, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to construct openai embedder: %w", cfg.ID, err)
	}
	return impl, nil
}
