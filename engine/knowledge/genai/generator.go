// Package genai wraps hosted text-generation models behind a single-prompt
// interface. Providers are reached through langchaingo so the rest of the
// pipeline never touches vendor SDKs directly.
package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Outcome is the result of one generation call. A transport failure is
// returned as an error instead; an Outcome always reflects a completed
// provider round trip, including safety blocks and empty completions.
type Outcome struct {
	Text        string
	BlockReason string
}

// Blocked reports whether the provider refused to complete the prompt.
func (o *Outcome) Blocked() bool {
	return o.BlockReason != ""
}

// Resolve flattens the outcome into display text. Blocked outcomes surface
// the refusal reason in-band; empty completions fall back to emptyFallback.
func (o *Outcome) Resolve(emptyFallback string) string {
	if o.Blocked() {
		return fmt.Sprintf("Response blocked: %s", o.BlockReason)
	}
	if o.Text == "" {
		return emptyFallback
	}
	return o.Text
}

// Generator produces text for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Outcome, error)
}

// LangChainGenerator implements Generator on top of a langchaingo model.
type LangChainGenerator struct {
	id    string
	model llms.Model
	opts  []llms.CallOption
}

// New builds a generator for the configured provider.
func New(ctx context.Context, cfg *Config) (*LangChainGenerator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	model, err := buildModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("generator %q: %w", cfg.ID, err)
	}
	return Wrap(cfg, model), nil
}

// Wrap builds a generator around an existing model. Tests use it to inject
// stubs.
func Wrap(cfg *Config, model llms.Model) *LangChainGenerator {
	opts := make([]llms.CallOption, 0, 2)
	if cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return &LangChainGenerator{id: cfg.ID, model: model, opts: opts}
}

func buildModel(ctx context.Context, cfg *Config) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderGoogleAI:
		return googleai.New(ctx, googleai.WithAPIKey(cfg.APIKey), googleai.WithDefaultModel(cfg.Model))
	case ProviderOpenAI:
		return openai.New(openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model))
	default:
		return nil, fmt.Errorf("provider %q is not supported", cfg.Provider)
	}
}

func (g *LangChainGenerator) Generate(ctx context.Context, prompt string) (*Outcome, error) {
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	response, err := g.model.GenerateContent(ctx, messages, g.opts...)
	if err != nil {
		return nil, fmt.Errorf("generator %q: generate content: %w", g.id, err)
	}
	if response == nil || len(response.Choices) == 0 {
		return &Outcome{}, nil
	}
	// Multi-part completions come back as separate choices; concatenate
	// whatever text arrived before deciding the call produced nothing.
	var text strings.Builder
	for _, choice := range response.Choices {
		text.WriteString(choice.Content)
	}
	if text.Len() == 0 && isBlockStop(response.Choices[0].StopReason) {
		return &Outcome{BlockReason: response.Choices[0].StopReason}, nil
	}
	return &Outcome{Text: text.String()}, nil
}

// isBlockStop treats any stop reason other than a normal completion as a
// provider refusal when no content came back.
func isBlockStop(reason string) bool {
	switch strings.ToLower(reason) {
	case "", "stop", "end_turn", "max_tokens", "length":
		return false
	default:
		return true
	}
}
