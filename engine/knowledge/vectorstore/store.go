package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider enumerates supported vector store backends.
type Provider string

const (
	ProviderMemory     Provider = "memory"
	ProviderFilesystem Provider = "filesystem"
	ProviderPGVector   Provider = "pgvector"
)

// defaultOwnerFilterMaxIDs bounds the membership clause used for owner
// scoping; owners with more documents fall back to a scan filtered by owner.
const defaultOwnerFilterMaxIDs = 10

// Config captures normalized connection details for a vector store.
type Config struct {
	ID                string
	Provider          Provider
	DSN               string
	Path              string
	Dimension         int
	OwnerFilterMaxIDs int
	EnsureIndex       bool
}

var (
	errMissingID        = errors.New("vector_store id is required")
	errMissingProvider  = errors.New("vector_store provider is required")
	errMissingDSN       = errors.New("vector_store dsn is required")
	errMissingPath      = errors.New("vector_store path is required")
	errInvalidDimension = errors.New("vector_store dimension must be greater than zero")
)

// New instantiates a vector store backed by the requested provider.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderMemory:
		return newMemoryStore(cfg), nil
	case ProviderFilesystem:
		return newFileStore(cfg)
	case ProviderPGVector:
		return newPGStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("vector_store %q: provider %q is not supported", cfg.ID, cfg.Provider)
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("vector_store config is required")
	}
	if strings.TrimSpace(cfg.ID) == "" {
		return errMissingID
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return fmt.Errorf("vector_store %q: %w", cfg.ID, errMissingProvider)
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Path = strings.TrimSpace(cfg.Path)
	switch cfg.Provider {
	case ProviderPGVector:
		if cfg.DSN == "" {
			return fmt.Errorf("vector_store %q: %w", cfg.ID, errMissingDSN)
		}
	case ProviderFilesystem:
		if cfg.Path == "" {
			return fmt.Errorf("vector_store %q: %w", cfg.ID, errMissingPath)
		}
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("vector_store %q: %w", cfg.ID, errInvalidDimension)
	}
	if cfg.OwnerFilterMaxIDs <= 0 {
		cfg.OwnerFilterMaxIDs = defaultOwnerFilterMaxIDs
	}
	return nil
}
