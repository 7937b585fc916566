package vision

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/llm"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/ocr"
)

// FromConfig builds the chain in the configured order. Variants that cannot be built are
// kept as unavailable entries; the local engine is always last.
func FromConfig(ctx context.Context, cfg *common.Config, engine *ocr.Extractor, collector *metrics.Collector, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	vc := cfg.Vision
	var providers []Provider

	langchain := func(name, model string, confidence float64) Provider {
		m, err := llm.NewLangchainModel(name, model, cfg.Providers)
		if err != nil {
			logger.Info("vision.provider.disabled", "provider", name, "error", err)
			return NewLLMProvider(name, nil, confidence, vc.MaxTokens)
		}
		return NewLLMProvider(name, llms.Model(m), confidence, vc.MaxTokens)
	}

	for _, name := range vc.Providers {
		switch name {
		case llm.ProviderOpenAI:
			providers = append(providers, langchain(name, vc.OpenAIModel, ConfidenceOpenAI))
		case llm.ProviderAnthropic:
			providers = append(providers, langchain(name, vc.AnthropicModel, ConfidenceAnthropic))
		case llm.ProviderOllama:
			providers = append(providers, langchain(name, vc.OllamaModel, ConfidenceOllama))
		case ProviderBedrock:
			client, err := NewBedrockClient(ctx, cfg.Providers.AWSRegion)
			if err != nil {
				logger.Info("vision.provider.disabled", "provider", name, "error", err)
				providers = append(providers, NewBedrockProvider(nil, vc.BedrockModel, vc.MaxTokens))
				continue
			}
			providers = append(providers, NewBedrockProvider(client, vc.BedrockModel, vc.MaxTokens))
		case ProviderLocal:
			// appended below
		default:
			logger.Warn("vision.provider.unknown", "provider", name)
		}
	}
	providers = append(providers, NewLocalProvider(engine))

	chain := NewChain(providers, vc.Timeout, collector, logger)
	logger.Info("vision chain ready", "providers", chain.Providers())
	return chain
}
