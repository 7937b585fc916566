package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/llm"
)

// Cloud provider confidences.
const (
	ConfidenceOpenAI    = 92
	ConfidenceAnthropic = 92
	ConfidenceBedrock   = 90
	ConfidenceOllama    = 75
)

// LLMProvider transcribes through a multimodal langchaingo model.
type LLMProvider struct {
	name       string
	model      llms.Model
	confidence float64
	maxTokens  int
}

// NewLLMProvider wraps model. A nil model yields an unavailable provider.
func NewLLMProvider(name string, model llms.Model, confidence float64, maxTokens int) *LLMProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LLMProvider{name: name, model: model, confidence: confidence, maxTokens: maxTokens}
}

func (p *LLMProvider) Name() string { return p.name }

func (p *LLMProvider) Available() bool { return p.model != nil }

func (p *LLMProvider) Transcribe(ctx context.Context, page Page) (Result, error) {
	if !cloudReady(page) {
		return Result{}, fmt.Errorf("%w: cannot send %q (%d bytes)", common.ErrProviderUnavailable, page.MIME, len(page.Data))
	}
	messages := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextPart(Prompt(page)),
			llms.BinaryPart(page.MIME, page.Data),
		},
	}}
	resp, err := p.model.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(p.maxTokens),
	)
	if err != nil {
		return Result{}, llm.WrapFatalError(err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("no response choices")
	}
	return Result{
		Text:       strings.TrimSpace(resp.Choices[0].Content),
		Confidence: p.confidence,
		Provider:   p.name,
	}, nil
}
