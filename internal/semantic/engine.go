// Package semantic checks a structured timetable for duplicates, time conflicts and
// schedule gaps.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/llm"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
)

// Options holds the analysis thresholds.
type Options struct {
	DuplicateThreshold  float64
	Neighbors           int
	GapThresholdMinutes int
	SchoolDays          []constants.Day
	DayStart            string
	DayEnd              string
}

// DefaultOptions returns the standard heuristics: 0.95 similarity, 3 neighbors,
// 120-minute gaps over a Monday-Friday 08:00-16:00 day.
func DefaultOptions() Options {
	return Options{
		DuplicateThreshold:  0.95,
		Neighbors:           3,
		GapThresholdMinutes: 120,
		SchoolDays:          constants.SchoolDays,
		DayStart:            "08:00",
		DayEnd:              "16:00",
	}
}

// OptionsFromConfig maps configuration onto Options; unparsable days are skipped.
func OptionsFromConfig(cfg common.SemanticConfig) Options {
	opts := Options{
		DuplicateThreshold:  cfg.DuplicateThreshold,
		Neighbors:           cfg.Neighbors,
		GapThresholdMinutes: cfg.GapThresholdMinutes,
		DayStart:            cfg.DayStart,
		DayEnd:              cfg.DayEnd,
	}
	for _, s := range cfg.SchoolDays {
		if d, ok := constants.ParseDay(s); ok {
			opts.SchoolDays = append(opts.SchoolDays, d)
		}
	}
	return opts
}

// Engine runs the semantic validation pass. Each Analyze call builds its own index.
type Engine struct {
	embedder llm.Embedder
	opts     Options
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewEngine(embedder llm.Embedder, opts Options, collector *metrics.Collector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.DuplicateThreshold <= 0 {
		opts.DuplicateThreshold = def.DuplicateThreshold
	}
	if opts.Neighbors <= 0 {
		opts.Neighbors = def.Neighbors
	}
	if opts.GapThresholdMinutes <= 0 {
		opts.GapThresholdMinutes = def.GapThresholdMinutes
	}
	if opts.SchoolDays == nil {
		opts.SchoolDays = def.SchoolDays
	}
	if !constants.TimePattern.MatchString(opts.DayStart) {
		opts.DayStart = def.DayStart
	}
	if !constants.TimePattern.MatchString(opts.DayEnd) {
		opts.DayEnd = def.DayEnd
	}
	return &Engine{embedder: embedder, opts: opts, metrics: collector, logger: logger}
}

// Analyze never fails. Without embeddings it returns a degraded report that carries
// only the block count, and the caller must skip refinement.
func (e *Engine) Analyze(ctx context.Context, doc *entity.TimetableDocument) *entity.SemanticInsights {
	start := time.Now()
	blocks := doc.TimeBlocks

	vectors, err := e.embed(ctx, doc)
	if err != nil {
		e.metrics.Since(metrics.OpAnalyze, start, err)
		e.logger.Warn("semantic.degraded", "blocks", len(blocks), "reason", err)
		return Degraded(len(blocks), err)
	}

	insights := &entity.SemanticInsights{
		Duplicates: FindDuplicates(NewIndex(vectors), e.opts.Neighbors, e.opts.DuplicateThreshold),
		Conflicts:  FindConflicts(blocks),
		Gaps:       FindGaps(blocks, e.opts),
		Stats:      ComputeStats(blocks),
	}
	e.metrics.Since(metrics.OpAnalyze, start, nil)
	e.logger.Info("semantic.ok", "blocks", len(blocks), "duplicates", len(insights.Duplicates),
		"conflicts", len(insights.Conflicts), "gaps", len(insights.Gaps),
		"elapsed_ms", time.Since(start).Milliseconds())
	return insights
}

// Degraded builds the report used when embeddings are unavailable.
func Degraded(total int, cause error) *entity.SemanticInsights {
	return &entity.SemanticInsights{
		Duplicates:     []entity.DuplicatePair{},
		Conflicts:      []entity.ConflictPair{},
		Gaps:           []entity.Gap{},
		Stats:          entity.Statistics{TotalBlocks: total},
		Degraded:       true,
		DegradedReason: cause.Error(),
	}
}

func (e *Engine) embed(ctx context.Context, doc *entity.TimetableDocument) ([][]float32, error) {
	if e.embedder == nil {
		return nil, common.ErrEmbeddingUnavailable
	}
	if len(doc.TimeBlocks) == 0 {
		return [][]float32{}, nil
	}
	texts := make([]string, len(doc.TimeBlocks))
	for i, b := range doc.TimeBlocks {
		texts[i] = SemanticText(doc.TeacherName, b)
	}
	start := time.Now()
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	e.metrics.Since(metrics.OpEmbedding, start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEmbeddingUnavailable, err)
	}
	return vectors, nil
}

// SemanticText is the string embedded for one block.
func SemanticText(teacher string, b entity.TimeBlock) string {
	parts := []string{
		"Teacher: " + teacher,
		"Day: " + string(b.Day),
		"Time: " + b.StartTime + "-" + b.EndTime,
		"Subject: " + b.Subject,
	}
	if b.Classroom != "" {
		parts = append(parts, "Room: "+b.Classroom)
	}
	if class := strings.TrimSpace(b.Grade + " " + b.Section); class != "" {
		parts = append(parts, "Class: "+class)
	}
	if b.Notes != "" {
		parts = append(parts, "Notes: "+b.Notes)
	}
	return strings.Join(parts, ". ")
}

// FindDuplicates reports each pair (i, j), j > i, where j is among i's nearest neighbors
// with similarity strictly above threshold.
func FindDuplicates(index *Index, neighbors int, threshold float64) []entity.DuplicatePair {
	pairs := []entity.DuplicatePair{}
	for i := 0; i < index.Len(); i++ {
		for _, n := range index.Search(i, neighbors) {
			if n.Index > i && n.Similarity > threshold {
				pairs = append(pairs, entity.DuplicatePair{I: i, J: n.Index, Similarity: n.Similarity})
			}
		}
	}
	return pairs
}

// FindConflicts reports every same-day pair whose intervals overlap. Touching intervals
// (one ends when the other starts) do not conflict.
func FindConflicts(blocks []entity.TimeBlock) []entity.ConflictPair {
	conflicts := []entity.ConflictPair{}
	for i := 0; i < len(blocks); i++ {
		s1, err1 := blocks[i].StartMinutes()
		e1, err2 := blocks[i].EndMinutes()
		if err1 != nil || err2 != nil {
			continue
		}
		for j := i + 1; j < len(blocks); j++ {
			if blocks[i].Day != blocks[j].Day {
				continue
			}
			s2, err3 := blocks[j].StartMinutes()
			e2, err4 := blocks[j].EndMinutes()
			if err3 != nil || err4 != nil {
				continue
			}
			if s1 < e2 && e1 > s2 {
				conflicts = append(conflicts, entity.ConflictPair{
					I:      i,
					J:      j,
					Reason: fmt.Sprintf("%s overlaps %s", blocks[i], blocks[j]),
				})
			}
		}
	}
	return conflicts
}

// FindGaps reports a full-day gap for every school day without entries, and every
// interval between consecutive entries longer than the threshold.
func FindGaps(blocks []entity.TimeBlock, opts Options) []entity.Gap {
	byDay := map[constants.Day][]entity.TimeBlock{}
	for _, b := range blocks {
		byDay[b.Day] = append(byDay[b.Day], b)
	}

	gaps := []entity.Gap{}
	dayStart, _ := constants.MinutesSinceMidnight(opts.DayStart)
	dayEnd, _ := constants.MinutesSinceMidnight(opts.DayEnd)
	for _, day := range opts.SchoolDays {
		if len(byDay[day]) == 0 {
			gaps = append(gaps, entity.Gap{
				Day:             day,
				Start:           opts.DayStart,
				End:             opts.DayEnd,
				DurationMinutes: max(dayEnd-dayStart, 0),
				FullDay:         true,
				Reason:          "no entries scheduled",
			})
		}
	}

	for _, day := range constants.AllDays {
		entries := byDay[day]
		if len(entries) < 2 {
			continue
		}
		sort.SliceStable(entries, func(a, b int) bool { return entries[a].StartTime < entries[b].StartTime })
		covered, err := entries[0].EndMinutes()
		if err != nil {
			continue
		}
		for _, next := range entries[1:] {
			s, err1 := next.StartMinutes()
			e, err2 := next.EndMinutes()
			if err1 != nil || err2 != nil {
				continue
			}
			if gap := s - covered; gap > opts.GapThresholdMinutes {
				gaps = append(gaps, entity.Gap{
					Day:             day,
					Start:           constants.FormatMinutes(covered),
					End:             next.StartTime,
					DurationMinutes: gap,
					Reason:          fmt.Sprintf("%d minutes without entries", gap),
				})
			}
			covered = max(covered, e)
		}
	}
	return gaps
}

// ComputeStats aggregates counts and durations.
func ComputeStats(blocks []entity.TimeBlock) entity.Statistics {
	stats := entity.Statistics{TotalBlocks: len(blocks), PerDay: map[constants.Day]int{}}
	for _, b := range blocks {
		stats.PerDay[b.Day]++
		stats.TotalDurationMinutes += b.Duration()
	}
	if len(blocks) > 0 {
		stats.AverageDurationMinutes = float64(stats.TotalDurationMinutes) / float64(len(blocks))
	}
	return stats
}
