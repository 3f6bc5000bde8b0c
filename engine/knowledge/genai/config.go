package genai

import (
	"errors"
	"fmt"
	"strings"
)

// Provider identifies the hosted model family used for generation.
type Provider string

const (
	ProviderGoogleAI Provider = "googleai"
	ProviderOpenAI   Provider = "openai"
)

// Config captures normalized generator settings.
type Config struct {
	ID          string
	Provider    Provider
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

var (
	errMissingID       = errors.New("generator id is required")
	errMissingProvider = errors.New("generator provider is required")
	errMissingModel    = errors.New("generator model is required")
)

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("generator config is required")
	}
	if strings.TrimSpace(cfg.ID) == "" {
		return errMissingID
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return fmt.Errorf("generator %q: %w", cfg.ID, errMissingProvider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("generator %q: %w", cfg.ID, errMissingModel)
	}
	return nil
}
