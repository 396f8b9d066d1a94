package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
)

func newTestFactory(t *testing.T, defaultProvider common.LLMProvider) *Factory {
	t.Helper()
	config := common.NewDefaultConfig()
	config.LLM.DefaultProvider = defaultProvider
	return NewFactory(config, nil, arbor.NewLogger())
}

func TestDetectProvider(t *testing.T) {
	factory := newTestFactory(t, common.LLMProviderGemini)

	tests := []struct {
		model    string
		expected common.LLMProvider
	}{
		{"", common.LLMProviderGemini},
		{"gemini-2.5-flash", common.LLMProviderGemini},
		{"gemini/gemini-2.5-flash", common.LLMProviderGemini},
		{"google/gemini-2.5-pro", common.LLMProviderGemini},
		{"claude-haiku-3-5-20241022", common.LLMProviderClaude},
		{"claude/claude-sonnet-4-20250514", common.LLMProviderClaude},
		{"anthropic/claude-opus-4", common.LLMProviderClaude},
		{"gpt-4o-mini", common.LLMProviderGemini}, // Unknown falls back to default
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, factory.DetectProvider(tt.model), "model %q", tt.model)
	}
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-20250514", NormalizeModel("claude/claude-sonnet-4-20250514"))
	assert.Equal(t, "gemini-2.5-flash", NormalizeModel("gemini/gemini-2.5-flash"))
	assert.Equal(t, "gemini-2.5-flash", NormalizeModel("gemini-2.5-flash"))
}

func TestActiveProvider_DisabledReturnsNil(t *testing.T) {
	factory := newTestFactory(t, common.LLMProviderNone)

	provider, err := factory.ActiveProvider("")
	require.NoError(t, err)
	assert.Nil(t, provider, "provider=none disables generation without error")
}

func TestActiveProvider_DefaultModels(t *testing.T) {
	factory := newTestFactory(t, common.LLMProviderGemini)

	provider, err := factory.ActiveProvider("")
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, "gemini", provider.Name())
	assert.Equal(t, "gemini-2.5-flash", provider.Model())

	provider, err = factory.ActiveProvider("claude/claude-sonnet-4-20250514")
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, "claude", provider.Name())
	assert.Equal(t, "claude-sonnet-4-20250514", provider.Model())
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.True(t, IsRateLimitError(errors.New("Error 429: too many requests")))
	assert.True(t, IsRateLimitError(errors.New("RESOURCE_EXHAUSTED: quota exceeded")))
	assert.True(t, IsRateLimitError(errors.New("rate_limit_error from api")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.001)

	assert.Zero(t, ExtractRetryDelay(errors.New("no delay here")))
	assert.Zero(t, ExtractRetryDelay(nil))
}

func TestCalculateBackoff(t *testing.T) {
	config := NewDefaultRetryConfig()

	// Provider delay takes precedence over the initial backoff
	backoff := config.CalculateBackoff(0, 30*time.Second)
	assert.Equal(t, 35*time.Second, backoff)

	// No provider delay: initial backoff, then multiplied
	assert.Equal(t, config.InitialBackoff, config.CalculateBackoff(0, 0))
	assert.Greater(t, config.CalculateBackoff(1, 0), config.CalculateBackoff(0, 0))

	// Capped at max
	assert.Equal(t, config.MaxBackoff, config.CalculateBackoff(10, 0))
}
