package knowledge

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	MinChunkSize     = 64
	MaxChunkSize     = 8192
	maxRetrievalTopK = 50
	MinScoreFloor    = 0.0
	MaxScoreCeiling  = 1.0
)

// envPrefix namespaces environment overrides, e.g. LUMFLARE_CHUNK_SIZE.
const envPrefix = "LUMFLARE_"

// Defaults captures the tunables shared by the chunker, embedder, vector
// store, and pipeline. Values are sanitized before use so downstream
// components can rely on them being in range.
type Defaults struct {
	ChunkSize           int     `koanf:"chunk_size"`
	ChunkOverlap        int     `koanf:"chunk_overlap"`
	EmbedderBatchSize   int     `koanf:"embedder_batch_size"`
	RetrievalTopK       int     `koanf:"retrieval_top_k"`
	RetrievalMinScore   float64 `koanf:"retrieval_min_score"`
	PlatformDocSections int     `koanf:"platform_doc_sections"`
	OwnerFilterMaxIDs   int     `koanf:"owner_filter_max_ids"`
}

// DefaultDefaults returns the built-in defaults used when no configuration
// override is supplied.
func DefaultDefaults() Defaults {
	return Defaults{
		ChunkSize:           1000,
		ChunkOverlap:        200,
		EmbedderBatchSize:   10,
		RetrievalTopK:       5,
		RetrievalMinScore:   0.0,
		PlatformDocSections: 3,
		OwnerFilterMaxIDs:   10,
	}
}

// LoadDefaults builds Defaults from the built-in values overlaid with
// LUMFLARE_* environment variables.
func LoadDefaults() (Defaults, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultDefaults(), "koanf"), nil); err != nil {
		return Defaults{}, fmt.Errorf("knowledge: load default config: %w", err)
	}
	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key string, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return key, value
		},
	}), nil)
	if err != nil {
		return Defaults{}, fmt.Errorf("knowledge: load environment config: %w", err)
	}
	var out Defaults
	if err := k.Unmarshal("", &out); err != nil {
		return Defaults{}, fmt.Errorf("knowledge: decode config: %w", err)
	}
	return sanitizeDefaults(out), nil
}

func sanitizeDefaults(in Defaults) Defaults {
	fb := DefaultDefaults()
	out := in
	if out.ChunkSize < MinChunkSize || out.ChunkSize > MaxChunkSize {
		out.ChunkSize = fb.ChunkSize
	}
	if out.ChunkOverlap < 0 || out.ChunkOverlap >= out.ChunkSize {
		out.ChunkOverlap = validOverlap(fb.ChunkOverlap, out.ChunkSize)
	}
	if out.EmbedderBatchSize <= 0 {
		out.EmbedderBatchSize = fb.EmbedderBatchSize
	}
	if out.RetrievalTopK < 1 || out.RetrievalTopK > maxRetrievalTopK {
		out.RetrievalTopK = fb.RetrievalTopK
	}
	if out.RetrievalMinScore < MinScoreFloor || out.RetrievalMinScore > MaxScoreCeiling {
		out.RetrievalMinScore = fb.RetrievalMinScore
	}
	if out.PlatformDocSections <= 0 {
		out.PlatformDocSections = fb.PlatformDocSections
	}
	if out.OwnerFilterMaxIDs <= 0 {
		out.OwnerFilterMaxIDs = fb.OwnerFilterMaxIDs
	}
	return out
}

// Sanitize normalizes user-supplied defaults, replacing out-of-range values
// with the built-in ones.
func Sanitize(in Defaults) Defaults {
	return sanitizeDefaults(in)
}

func validOverlap(overlap, size int) int {
	if overlap < 0 {
		return 0
	}
	if overlap >= size {
		if size <= 4 {
			return 0
		}
		return size / 4
	}
	return overlap
}
