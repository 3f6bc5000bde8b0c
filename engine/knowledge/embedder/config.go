package embedder

import (
	"errors"
	"fmt"
	"strings"
)

// Provider enumerates supported embedding providers.
type Provider string

const (
	ProviderGoogleAI Provider = "googleai"
	ProviderOpenAI   Provider = "openai"
)

// Config captures normalized settings for an embedding provider.
type Config struct {
	ID            string
	Provider      Provider
	Model         string
	APIKey        string
	Dimension     int
	BatchSize     int
	StripNewLines bool
	Options       map[string]any
}

var (
	errMissingID        = errors.New("embedder id is required")
	errMissingProvider  = errors.New("embedder provider is required")
	errMissingModel     = errors.New("embedder model is required")
	errInvalidDimension = errors.New("embedder dimension must be greater than zero")
	errInvalidBatchSize = errors.New("embedder batch size must be greater than zero")
)

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return errMissingID
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errMissingProvider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errMissingModel)
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errInvalidDimension)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errInvalidBatchSize)
	}
	return nil
}
