package genai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubModel struct {
	response *llms.ContentResponse
	err      error
	prompts  []string
}

func (s *stubModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				s.prompts = append(s.prompts, text.Text)
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func (s *stubModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}

func testConfig() *Config {
	return &Config{ID: "test", Provider: ProviderGoogleAI, Model: "gemini-2.5-pro"}
}

func TestLangChainGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the first choice's text", func(t *testing.T) {
		stub := &stubModel{response: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: "an answer", StopReason: "stop"}},
		}}
		outcome, err := Wrap(testConfig(), stub).Generate(ctx, "a prompt")
		require.NoError(t, err)
		assert.Equal(t, "an answer", outcome.Text)
		assert.False(t, outcome.Blocked())
		require.Len(t, stub.prompts, 1)
		assert.Equal(t, "a prompt", stub.prompts[0])
	})

	t.Run("Should concatenate multi-part completions", func(t *testing.T) {
		stub := &stubModel{response: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{
				{Content: "part one "},
				{Content: "part two"},
			},
		}}
		outcome, err := Wrap(testConfig(), stub).Generate(ctx, "a prompt")
		require.NoError(t, err)
		assert.Equal(t, "part one part two", outcome.Text)
	})

	t.Run("Should surface a transport failure as an error", func(t *testing.T) {
		stub := &stubModel{err: assert.AnError}
		_, err := Wrap(testConfig(), stub).Generate(ctx, "a prompt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `generator "test"`)
	})

	t.Run("Should mark a safety stop without content as blocked", func(t *testing.T) {
		stub := &stubModel{response: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: "", StopReason: "SAFETY"}},
		}}
		outcome, err := Wrap(testConfig(), stub).Generate(ctx, "a prompt")
		require.NoError(t, err)
		assert.True(t, outcome.Blocked())
		assert.Equal(t, "Response blocked: SAFETY", outcome.Resolve("fallback"))
	})

	t.Run("Should treat an empty response as an empty outcome", func(t *testing.T) {
		stub := &stubModel{response: &llms.ContentResponse{}}
		outcome, err := Wrap(testConfig(), stub).Generate(ctx, "a prompt")
		require.NoError(t, err)
		assert.False(t, outcome.Blocked())
		assert.Equal(t, "No text content generated.", outcome.Resolve("No text content generated."))
	})

	t.Run("Should not treat a truncated completion as blocked", func(t *testing.T) {
		stub := &stubModel{response: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: "", StopReason: "max_tokens"}},
		}}
		outcome, err := Wrap(testConfig(), stub).Generate(ctx, "a prompt")
		require.NoError(t, err)
		assert.False(t, outcome.Blocked())
	})
}

func TestValidateConfig(t *testing.T) {
	t.Run("Should require an ID", func(t *testing.T) {
		err := validateConfig(&Config{Provider: ProviderOpenAI, Model: "gpt-4o"})
		require.ErrorIs(t, err, errMissingID)
	})

	t.Run("Should require a provider", func(t *testing.T) {
		err := validateConfig(&Config{ID: "gen", Model: "gpt-4o"})
		require.ErrorIs(t, err, errMissingProvider)
	})

	t.Run("Should require a model", func(t *testing.T) {
		err := validateConfig(&Config{ID: "gen", Provider: ProviderOpenAI})
		require.ErrorIs(t, err, errMissingModel)
	})

	t.Run("Should reject an unknown provider on build", func(t *testing.T) {
		_, err := New(context.Background(), &Config{ID: "gen", Provider: Provider("cohere"), Model: "x"})
		require.Error(t, err)
	})
}
