package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
)

// Embedder produces vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

var _ Embedder = (*LangchainEmbedder)(nil)

// LangchainEmbedder wraps langchaingo embeddings with dimension validation.
type LangchainEmbedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	logger    *slog.Logger
}

// NewEmbedder creates an embedder based on configuration. Provider "none" (or empty)
// returns ErrEmbeddingUnavailable so callers can run degraded.
func NewEmbedder(cfg common.EmbeddingConfig, p common.ProviderConfig, logger *slog.Logger) (*LangchainEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var model embeddings.Embedder
	var err error

	switch cfg.Provider {
	case "", "none":
		return nil, common.ErrEmbeddingUnavailable

	case ProviderOllama:
		client, ollamaErr := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(p.OllamaHost),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case ProviderOpenAI:
		if p.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key required", common.ErrEmbeddingUnavailable)
		}
		client, openaiErr := openai.New(
			openai.WithToken(p.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	return &LangchainEmbedder{
		model:     model,
		dimension: cfg.Dimension,
		modelName: cfg.Model,
		logger:    logger,
	}, nil
}

// Embed generates an embedding vector for text.
func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding failed", "model", e.modelName, "texts", len(texts),
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, WrapFatalError(fmt.Errorf("embed batch: %w", err))
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	if e.dimension > 0 {
		for i, v := range vectors {
			if len(v) != e.dimension {
				return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), e.dimension)
			}
		}
	}
	e.logger.Debug("embedding complete", "model", e.modelName, "texts", len(texts),
		"duration_ms", time.Since(start).Milliseconds())
	return vectors, nil
}

// Model returns the embedding model name.
func (e *LangchainEmbedder) Model() string { return e.modelName }

// Dimension returns the configured vector size.
func (e *LangchainEmbedder) Dimension() int { return e.dimension }

// CosineSimilarity returns the cosine of the angle between a and b, 0 when the vectors
// differ in length or either is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
