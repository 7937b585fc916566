// Package pipeline runs the stages of one extraction job: acquisition, structuring,
// semantic validation, optional refinement, finalization and persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/acquire"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

// Acquirer obtains raw text for a file.
type Acquirer interface {
	Acquire(ctx context.Context, path string, mediaType constants.MediaType) (acquire.Result, error)
}

// Structurer converts raw text into a document and refines it from insights.
type Structurer interface {
	Structure(ctx context.Context, text string) (*entity.TimetableDocument, error)
	Refine(ctx context.Context, doc *entity.TimetableDocument, insights *entity.SemanticInsights) (*entity.TimetableDocument, error)
}

// Analyzer produces the semantic report for a document.
type Analyzer interface {
	Analyze(ctx context.Context, doc *entity.TimetableDocument) *entity.SemanticInsights
}

// ResultSink persists a finalized document for a job.
type ResultSink interface {
	SaveResult(ctx context.Context, jobID string, doc *entity.TimetableDocument) error
}

// ProgressFunc receives milestone percentages.
type ProgressFunc func(progress int)

// Outcome is everything one successful run produced.
type Outcome struct {
	Document    *entity.TimetableDocument
	Insights    *entity.SemanticInsights
	Acquisition acquire.Result
}

// Processor coordinates the stages for one job. Sink may be nil.
type Processor struct {
	acquirer   Acquirer
	structurer Structurer
	analyzer   Analyzer
	sink       ResultSink
	refine     bool
	logger     *slog.Logger
}

func NewProcessor(acquirer Acquirer, structurer Structurer, analyzer Analyzer, sink ResultSink, refine bool, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		acquirer:   acquirer,
		structurer: structurer,
		analyzer:   analyzer,
		sink:       sink,
		refine:     refine,
		logger:     logger,
	}
}

// Process runs every stage in order. Any stage error aborts the run with nothing
// persisted; the caller retries the whole job.
func (p *Processor) Process(ctx context.Context, job *entity.ExtractionJob, report ProgressFunc) (*Outcome, error) {
	if report == nil {
		report = func(int) {}
	}
	log := p.logger.With("job_id", job.ID, "attempt", common.AttemptFromContext(ctx))
	start := time.Now()
	report(constants.ProgressStarted)

	if _, err := os.Stat(job.FilePath); err != nil {
		return nil, fmt.Errorf("%w: input file: %w", common.ErrInvalidInput, err)
	}

	// 1) acquisition
	acq, err := p.acquirer.Acquire(ctx, job.FilePath, job.MediaType)
	if err != nil {
		log.Error("pipeline.acquire.failed", "error", err)
		return nil, fmt.Errorf("acquire: %w", err)
	}
	log.Info("pipeline.acquire.ok", "method", acq.Method, "confidence", acq.Confidence, "chars", len(acq.Text))
	report(constants.ProgressAcquired)

	// 2) structuring
	doc, err := p.structurer.Structure(ctx, acq.Text)
	if err != nil {
		log.Error("pipeline.structure.failed", "error", err)
		return nil, fmt.Errorf("structure: %w", err)
	}
	doc.Method = acq.Method
	doc.SourceConfidence = acq.Confidence
	doc.Warnings = append(append([]string(nil), acq.Warnings...), doc.Warnings...)
	report(constants.ProgressStructured)

	// 3) semantic validation
	insights := p.analyzer.Analyze(ctx, doc)
	if insights.Degraded {
		doc.Warnings = append(doc.Warnings, "semantic validation degraded: "+insights.DegradedReason)
	}
	report(constants.ProgressAnalyzed)

	// 4) refinement, best-effort
	if p.refine && insights.NeedsRefinement() {
		refined, err := p.structurer.Refine(ctx, doc, insights)
		if err != nil {
			log.Warn("pipeline.refine.failed", "error", err, "duplicates", len(insights.Duplicates),
				"conflicts", len(insights.Conflicts))
			doc.Warnings = append(doc.Warnings, "refinement failed; kept unrefined result")
		} else {
			refined.SourceConfidence = doc.SourceConfidence
			doc = refined
		}
	}
	report(constants.ProgressRefined)

	// 5) finalize and persist
	doc = Finalize(doc)
	if p.sink != nil {
		if err := p.sink.SaveResult(ctx, job.ID, doc); err != nil {
			log.Error("pipeline.persist.failed", "error", err)
			return nil, fmt.Errorf("persist: %w", err)
		}
	}
	report(constants.ProgressPersisted)

	log.Info("pipeline.ok", "method", doc.Method, "blocks", len(doc.TimeBlocks), "confidence", doc.Confidence,
		"refined", doc.Refined, "degraded", insights.Degraded, "elapsed_ms", time.Since(start).Milliseconds())
	return &Outcome{Document: doc, Insights: insights, Acquisition: acq}, nil
}
