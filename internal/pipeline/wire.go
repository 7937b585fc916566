package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/timetable-extractor/internal/acquire"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/llm"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/ocr"
	"github.com/joseph-ayodele/timetable-extractor/internal/semantic"
	"github.com/joseph-ayodele/timetable-extractor/internal/structuring"
	"github.com/joseph-ayodele/timetable-extractor/internal/vision"
)

// Stages holds every component built from configuration.
type Stages struct {
	Engine    *ocr.Extractor
	Chain     *vision.Chain
	Selector  *acquire.Selector
	Agent     *structuring.Agent
	Semantic  *semantic.Engine
	Processor *Processor
	// Embedder is nil when embeddings are disabled or failed to build.
	Embedder llm.Embedder
}

// FromConfig wires the stages. A structuring model that cannot be built is an error;
// a missing embedder only degrades chunk ranking and semantic validation.
func FromConfig(ctx context.Context, cfg *common.Config, sink ResultSink, collector *metrics.Collector, logger *slog.Logger) (*Stages, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stages{}
	s.Engine = ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	s.Chain = vision.FromConfig(ctx, cfg, s.Engine, collector, logger)
	s.Selector = acquire.NewSelector(s.Engine, s.Chain, collector, logger)

	model, err := llm.NewModel(cfg.LLM, cfg.Providers, logger)
	if err != nil {
		return nil, fmt.Errorf("structuring model: %w", err)
	}

	emb, err := llm.NewEmbedder(cfg.Embedding, cfg.Providers, logger)
	switch {
	case err == nil:
		s.Embedder = emb
	case errors.Is(err, common.ErrEmbeddingUnavailable):
		logger.Info("embeddings disabled; semantic validation will run degraded")
	default:
		logger.Warn("embedder unavailable; semantic validation will run degraded", "error", err)
	}

	s.Agent, err = structuring.NewAgent(withTimeout(model, cfg.LLM.Timeout), s.Embedder,
		structuring.OptionsFromConfig(cfg), collector, logger)
	if err != nil {
		return nil, err
	}
	s.Semantic = semantic.NewEngine(s.Embedder, semantic.OptionsFromConfig(cfg.Semantic), collector, logger)
	s.Processor = NewProcessor(s.Selector, s.Agent, s.Semantic, sink, cfg.Semantic.Refine, logger)
	return s, nil
}

type timeoutGenerator struct {
	structuring.Generator
	timeout time.Duration
}

func withTimeout(g structuring.Generator, d time.Duration) structuring.Generator {
	if d <= 0 {
		return g
	}
	return timeoutGenerator{Generator: g, timeout: d}
}

func (t timeoutGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Generator.Generate(ctx, system, user)
}
