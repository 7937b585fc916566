// Package structuring turns raw timetable text into a normalized TimetableDocument
// through a schema-constrained language model call.
package structuring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/llm"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
)

// Generator is the chat model seen by the agent.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Options tunes chunking and sanitizing.
type Options struct {
	ChunkThreshold     int
	TopK               int
	LinesPerChunk      int
	LenientSanitize    bool
	Query              string
	DuplicateThreshold float64
}

// OptionsFromConfig maps configuration onto Options.
func OptionsFromConfig(cfg *common.Config) Options {
	return Options{
		ChunkThreshold:     cfg.Structuring.ChunkThreshold,
		TopK:               cfg.Structuring.TopK,
		LinesPerChunk:      cfg.Structuring.LinesPerChunk,
		LenientSanitize:    cfg.Structuring.LenientSanitize,
		Query:              cfg.Structuring.Query,
		DuplicateThreshold: cfg.Semantic.DuplicateThreshold,
	}
}

// Agent is the structured extraction agent. The embedder may be nil; chunk ranking is
// then skipped.
type Agent struct {
	model     Generator
	embedder  llm.Embedder
	opts      Options
	schemaMap map[string]any
	schema    *jsonschema.Schema
	system    string
	metrics   *metrics.Collector
	logger    *slog.Logger
}

func NewAgent(model Generator, embedder llm.Embedder, opts Options, collector *metrics.Collector, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkThreshold <= 0 {
		opts.ChunkThreshold = 2000
	}
	if opts.DuplicateThreshold <= 0 {
		opts.DuplicateThreshold = 0.95
	}
	schemaMap := llm.BuildTimetableJSONSchema()
	schema, err := llm.CompileSchema(schemaMap)
	if err != nil {
		return nil, err
	}
	return &Agent{
		model:     model,
		embedder:  embedder,
		opts:      opts,
		schemaMap: schemaMap,
		schema:    schema,
		system:    buildSystemPrompt(schemaMap),
		metrics:   collector,
		logger:    logger,
	}, nil
}

// Structure sends text to the model and returns the normalized document.
// ErrNoValidEntries is returned when nothing survives post-processing.
func (a *Agent) Structure(ctx context.Context, text string) (doc *entity.TimetableDocument, err error) {
	start := time.Now()
	defer func() { a.metrics.Since(metrics.OpStructure, start, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty input", common.ErrInsufficientText)
	}
	var warnings []string
	if len(text) > a.opts.ChunkThreshold {
		var note string
		text, note = a.reduce(ctx, text)
		if note != "" {
			warnings = append(warnings, note)
		}
	}

	doc, err = a.run(ctx, buildUserPrompt(text))
	if err != nil {
		return nil, err
	}
	doc.Warnings = append(warnings, doc.Warnings...)
	a.logger.Info("structuring.ok", "teacher", doc.TeacherName, "blocks", len(doc.TimeBlocks),
		"confidence", doc.Confidence, "elapsed_ms", time.Since(start).Milliseconds())
	return doc, nil
}

// Refine re-invokes the model with the validation findings. On failure the caller keeps
// the input document.
func (a *Agent) Refine(ctx context.Context, doc *entity.TimetableDocument, insights *entity.SemanticInsights) (out *entity.TimetableDocument, err error) {
	start := time.Now()
	defer func() { a.metrics.Since(metrics.OpRefine, start, err) }()

	out, err = a.run(ctx, buildRefinePrompt(doc, insights, a.opts.DuplicateThreshold))
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	out.Refined = true
	out.Method = doc.Method
	out.Warnings = append(append([]string(nil), doc.Warnings...), out.Warnings...)
	a.logger.Info("structuring.refine.ok", "blocks_before", len(doc.TimeBlocks), "blocks_after", len(out.TimeBlocks),
		"elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (a *Agent) run(ctx context.Context, userPrompt string) (*entity.TimetableDocument, error) {
	reply, err := a.model.Generate(ctx, a.system, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("structuring model call: %w", err)
	}
	raw, err := llm.ExtractJSONObject(reply)
	if err != nil {
		return nil, err
	}

	var notes []string
	if vErr := llm.ValidateJSON(a.schema, raw); vErr != nil {
		if !a.opts.LenientSanitize {
			a.logger.Error("structuring.schema_validation_failed", "error", vErr)
			return nil, fmt.Errorf("schema validation failed: %w", vErr)
		}
		cleaned, changes, sErr := sanitizeDocument(raw, a.logger)
		if sErr != nil {
			return nil, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr2 := llm.ValidateJSON(a.schema, cleaned); vErr2 != nil {
			a.logger.Error("structuring.schema_validation_failed", "error", vErr2, "content", string(cleaned))
			return nil, fmt.Errorf("schema validation failed: %w", vErr2)
		}
		raw, notes = cleaned, changes
	}

	var w wireDocument
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("unmarshal timetable: %w", err)
	}
	doc, rejected := postProcess(w)
	if len(rejected) > 0 {
		a.logger.Warn("structuring.entries_rejected", "count", len(rejected), "reasons", rejected)
	}
	if len(doc.TimeBlocks) == 0 {
		return nil, fmt.Errorf("%w: %d candidate entries", common.ErrNoValidEntries, len(w.TimeBlocks))
	}
	if len(notes) > 0 {
		doc.Warnings = append(doc.Warnings, "sanitized: "+strings.Join(notes, ", "))
	}
	doc.Warnings = append(doc.Warnings, rejected...)
	return doc, nil
}

// reduce chunks long text and keeps the most schedule-like chunks. Any ranking failure
// falls back to the full chunk list.
func (a *Agent) reduce(ctx context.Context, text string) (string, string) {
	chunks := SplitChunks(text, a.opts.LinesPerChunk)
	if a.embedder == nil {
		return strings.Join(chunks, "\n\n"), ""
	}

	start := time.Now()
	selected, err := selectChunks(ctx, a.embedder, a.opts.Query, chunks, a.opts.TopK)
	a.metrics.Since(metrics.OpEmbedding, start, err)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, llm.ErrFatalAPI) {
			level = slog.LevelError
		}
		a.logger.Log(ctx, level, "structuring.chunk_ranking_failed", "chunks", len(chunks), "error", err)
		return strings.Join(chunks, "\n\n"), "chunk ranking unavailable; sent all chunks"
	}
	a.logger.Debug("structuring.chunks", "total", len(chunks), "selected", len(selected), "chars_in", len(text))
	return strings.Join(selected, "\n\n"), ""
}
