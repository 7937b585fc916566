package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// NewLangchainModel builds a langchaingo chat model for provider/model.
func NewLangchainModel(provider, model string, p common.ProviderConfig) (llms.Model, error) {
	switch provider {
	case ProviderOllama:
		m, err := ollama.New(
			ollama.WithModel(model),
			ollama.WithServerURL(p.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return m, nil

	case ProviderOpenAI:
		if p.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key required", common.ErrProviderUnavailable)
		}
		m, err := openai.New(
			openai.WithToken(p.OpenAIAPIKey),
			openai.WithModel(model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return m, nil

	case ProviderAnthropic:
		if p.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: Anthropic API key required", common.ErrProviderUnavailable)
		}
		m, err := anthropic.New(
			anthropic.WithToken(p.AnthropicAPIKey),
			anthropic.WithModel(model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// Model wraps a langchaingo model for JSON-mode structuring calls.
type Model struct {
	llm         llms.Model
	modelName   string
	temperature float64
	maxTokens   int
	jsonMode    bool
	logger      *slog.Logger
}

// NewModel creates the structuring model from configuration.
func NewModel(cfg common.LLMConfig, p common.ProviderConfig, logger *slog.Logger) (*Model, error) {
	m, err := NewLangchainModel(cfg.Provider, cfg.Model, p)
	if err != nil {
		return nil, err
	}
	// Anthropic has no JSON response mode; the prompt contract carries the format instead.
	return NewModelFrom(m, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Provider != ProviderAnthropic, logger), nil
}

// NewModelFrom wraps an existing langchaingo model.
func NewModelFrom(m llms.Model, name string, temperature float64, maxTokens int, jsonMode bool, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Model{llm: m, modelName: name, temperature: temperature, maxTokens: maxTokens, jsonMode: jsonMode, logger: logger}
}

// Generate sends a system and a user message and returns the first choice.
func (m *Model) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	opts := []llms.CallOption{
		llms.WithTemperature(m.temperature),
		llms.WithMaxTokens(m.maxTokens),
	}
	if m.jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		m.logger.Warn("llm.generate.failed", "model", m.modelName, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return "", WrapFatalError(fmt.Errorf("generate with system: %w", err))
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	m.logger.Debug("llm.generate.ok", "model", m.modelName, "elapsed_ms", time.Since(start).Milliseconds(),
		"content_len", len(response.Choices[0].Content))
	return response.Choices[0].Content, nil
}

// Name returns the LLM model name.
func (m *Model) Name() string {
	return m.modelName
}
