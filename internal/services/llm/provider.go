package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"google.golang.org/genai"
)

// Factory creates and caches LLM provider clients. Clients are built
// lazily on first completion so the service starts without API keys.
type Factory struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	kvStorage    interfaces.KeyValueStorage
	logger       arbor.ILogger

	geminiClient *genai.Client
	claudeClient anthropic.Client
	claudeReady  bool
}

// NewFactory creates a provider factory from config
func NewFactory(config *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Factory {
	return &Factory{
		geminiConfig: &config.Gemini,
		claudeConfig: &config.Claude,
		llmConfig:    &config.LLM,
		kvStorage:    kvStorage,
		logger:       logger,
	}
}

// DetectProvider determines the provider from a model string. Explicit
// prefixes ("claude/", "gemini/") and model name patterns both work;
// an empty model falls back to the configured default provider.
func (f *Factory) DetectProvider(model string) common.LLMProvider {
	if model == "" {
		return f.llmConfig.DefaultProvider
	}

	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "claude/"), strings.HasPrefix(model, "anthropic/"), strings.HasPrefix(model, "claude-"):
		return common.LLMProviderClaude
	case strings.HasPrefix(model, "gemini/"), strings.HasPrefix(model, "google/"), strings.HasPrefix(model, "gemini-"):
		return common.LLMProviderGemini
	}
	return f.llmConfig.DefaultProvider
}

// NormalizeModel strips an explicit provider prefix from a model name
func NormalizeModel(model string) string {
	for _, prefix := range []string{"claude/", "anthropic/", "gemini/", "google/"} {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// ActiveProvider returns the provider for the given model (or the
// configured default when model is empty). A nil provider with nil
// error means LLM generation is disabled.
func (f *Factory) ActiveProvider(model string) (interfaces.LLMProvider, error) {
	switch f.DetectProvider(model) {
	case common.LLMProviderClaude:
		name := NormalizeModel(model)
		if name == "" {
			name = f.claudeConfig.Model
		}
		return &claudeProvider{factory: f, model: name}, nil
	case common.LLMProviderGemini:
		name := NormalizeModel(model)
		if name == "" {
			name = f.geminiConfig.Model
		}
		return &geminiProvider{factory: f, model: name}, nil
	case common.LLMProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", f.llmConfig.DefaultProvider)
	}
}

// getGeminiClient returns the Gemini client, creating it on first use
func (f *Factory) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	if f.geminiClient != nil {
		return f.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, f.kvStorage, "gemini_api_key", f.geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	f.geminiClient = client
	return client, nil
}

// getClaudeClient returns the Claude client, creating it on first use
func (f *Factory) getClaudeClient(ctx context.Context) (anthropic.Client, error) {
	if f.claudeReady {
		return f.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, f.kvStorage, "anthropic_api_key", f.claudeConfig.APIKey)
	if err != nil {
		return anthropic.Client{}, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}

	f.claudeClient = anthropic.NewClient(option.WithAPIKey(apiKey))
	f.claudeReady = true
	return f.claudeClient, nil
}

// hasAPIKey reports whether a key could resolve without touching the provider
func (f *Factory) hasAPIKey(kvName, configFallback string) bool {
	_, err := common.ResolveAPIKey(context.Background(), f.kvStorage, kvName, configFallback)
	return err == nil
}

// Close drops cached clients; the next completion re-resolves keys
func (f *Factory) Close() error {
	f.geminiClient = nil
	f.claudeClient = anthropic.Client{}
	f.claudeReady = false
	return nil
}

// geminiProvider generates completions through the Gemini API
type geminiProvider struct {
	factory *Factory
	model   string
}

func (p *geminiProvider) Name() string  { return string(common.LLMProviderGemini) }
func (p *geminiProvider) Model() string { return p.model }

func (p *geminiProvider) IsAvailable() bool {
	return p.factory.hasAPIKey("gemini_api_key", p.factory.geminiConfig.APIKey)
}

func (p *geminiProvider) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	client, err := p.factory.getGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = p.factory.geminiConfig.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(temperature),
		ResponseMIMEType: "application/json",
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	} else if p.factory.geminiConfig.MaxTokens > 0 {
		config.MaxOutputTokens = int32(p.factory.geminiConfig.MaxTokens)
	}

	contents := genai.Text(req.UserPrompt)

	var resp *genai.GenerateContentResponse
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Models.GenerateContent(ctx, p.model, contents, config)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		p.factory.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("Gemini API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	out := &interfaces.CompletionResponse{Text: text, Model: p.model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// claudeProvider generates completions through the Anthropic API
type claudeProvider struct {
	factory *Factory
	model   string
}

func (p *claudeProvider) Name() string  { return string(common.LLMProviderClaude) }
func (p *claudeProvider) Model() string { return p.model }

func (p *claudeProvider) IsAvailable() bool {
	return p.factory.hasAPIKey("anthropic_api_key", p.factory.claudeConfig.APIKey)
}

func (p *claudeProvider) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	client, err := p.factory.getClaudeClient(ctx)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.factory.claudeConfig.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = p.factory.claudeConfig.Temperature
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(float64(temperature))
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	var resp *anthropic.Message
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Messages.New(ctx, params)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = retryConfig.CalculateBackoff(attempt, 0)
		}

		p.factory.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, fmt.Errorf("Claude API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &interfaces.CompletionResponse{
		Text:         text.String(),
		Model:        p.model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
