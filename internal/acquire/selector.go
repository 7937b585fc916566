// Package acquire picks how raw text is obtained from an uploaded timetable: the text
// layer, the vision chain, or both.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/ocr"
	"github.com/joseph-ayodele/timetable-extractor/internal/office"
	"github.com/joseph-ayodele/timetable-extractor/internal/vision"
)

// Routing thresholds.
const (
	ScannedDensity   = 50  // chars/page below which every page goes through vision
	TextOnlyDensity  = 200 // chars/page at or above which the text layer is used alone
	EmbeddedTextMin  = 50  // direct text chars at or below which embedded images stand alone
	DirectConfidence = 95
)

// Transcriber is the provider chain seen by the selector.
type Transcriber interface {
	Transcribe(ctx context.Context, page vision.Page) (vision.Result, error)
}

// Result is the acquired raw text.
type Result struct {
	Text       string
	Confidence float64
	Method     string
	Pages      int
	Density    float64
	Warnings   []string
}

// Selector routes one file to an acquisition strategy.
type Selector struct {
	engine  *ocr.Extractor
	chain   Transcriber
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewSelector(engine *ocr.Extractor, chain Transcriber, collector *metrics.Collector, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{engine: engine, chain: chain, metrics: collector, logger: logger}
}

// Acquire extracts raw text from path. An empty mediaType is inferred from the extension.
func (s *Selector) Acquire(ctx context.Context, path string, mediaType constants.MediaType) (res Result, err error) {
	if mediaType == "" {
		mediaType = constants.MapExtToFormat(filepath.Ext(path))
	}
	start := time.Now()
	defer func() {
		s.metrics.Since(metrics.OpAcquire+strings.ToLower(string(mediaType)), start, err)
	}()

	s.logger.Info("acquire.start", "path", path, "media_type", mediaType)
	switch mediaType {
	case constants.IMAGE:
		res, err = s.acquireImage(ctx, path)
	case constants.PDF:
		res, err = s.acquirePDF(ctx, path)
	case constants.DOCUMENT:
		res, err = s.acquireDocument(ctx, path)
	default:
		return Result{}, fmt.Errorf("%w: unsupported media type %q for %s", common.ErrInvalidInput, mediaType, filepath.Base(path))
	}
	if err != nil {
		s.logger.Warn("acquire.failed", "path", path, "media_type", mediaType, "error", err)
		return res, err
	}
	if n := len([]rune(strings.TrimSpace(res.Text))); n < vision.MinChars {
		return res, fmt.Errorf("%w: %d chars via %s", common.ErrInsufficientText, n, res.Method)
	}
	s.logger.Info("acquire.ok", "method", res.Method, "confidence", res.Confidence,
		"pages", res.Pages, "chars", len(res.Text), "elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (s *Selector) acquireImage(ctx context.Context, path string) (Result, error) {
	img, cleanup, warns, err := s.engine.PrepareImage(ctx, path)
	if err != nil {
		return Result{Warnings: warns}, fmt.Errorf("prepare image: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	page, err := vision.PageFromFile(img, vision.ClassImage, 1, 1)
	if err != nil {
		return Result{Warnings: warns}, err
	}
	out, err := s.chain.Transcribe(ctx, page)
	if err != nil {
		return Result{Warnings: warns}, err
	}
	return Result{
		Text:       out.Text,
		Confidence: out.Confidence,
		Method:     "vision:" + out.Provider,
		Pages:      1,
		Warnings:   warns,
	}, nil
}

func (s *Selector) acquirePDF(ctx context.Context, path string) (Result, error) {
	var warns []string
	layer, err := s.engine.PDFText(ctx, path)
	if err != nil {
		// An unreadable text layer is handled as a scanned document.
		warns = append(warns, err.Error())
		layer = ocr.TextLayer{Pages: 1}
	}
	density := layer.Density()
	direct := ocr.Normalize(layer.Text)
	s.logger.Debug("acquire.pdf.density", "path", path, "pages", layer.Pages, "density", density)

	if density >= TextOnlyDensity {
		return Result{Text: direct, Confidence: DirectConfidence, Method: "pdf-text",
			Pages: layer.Pages, Density: density, Warnings: warns}, nil
	}

	paths, cleanup, err := s.engine.RenderPages(ctx, path)
	if cleanup != nil {
		defer cleanup()
	}
	var vis visionOutput
	if err == nil {
		vis = s.transcribeAll(ctx, filePages(paths, vision.ClassPDFPage))
		warns = append(warns, vis.warnings...)
	} else {
		warns = append(warns, err.Error())
	}

	if density < ScannedDensity {
		if vis.ok == 0 {
			return Result{Pages: layer.Pages, Density: density, Warnings: warns},
				fmt.Errorf("%w: no page could be transcribed", common.ErrAllProvidersFailed)
		}
		return Result{Text: vis.text, Confidence: vis.confidence, Method: "pdf-vision:" + vis.method(),
			Pages: layer.Pages, Density: density, Warnings: warns}, nil
	}

	// hybrid
	if vis.ok == 0 {
		warns = append(warns, "vision pass failed; using text layer only")
		return Result{Text: direct, Confidence: DirectConfidence, Method: "pdf-text",
			Pages: layer.Pages, Density: density, Warnings: warns}, nil
	}
	return Result{
		Text:       joinSections(direct, vis.text),
		Confidence: (DirectConfidence + vis.confidence) / 2,
		Method:     "pdf-hybrid:" + vis.method(),
		Pages:      layer.Pages,
		Density:    density,
		Warnings:   warns,
	}, nil
}

func (s *Selector) acquireDocument(ctx context.Context, path string) (Result, error) {
	doc, err := office.Read(path)
	if err != nil {
		return Result{}, fmt.Errorf("read document: %w", err)
	}
	direct := strings.TrimSpace(doc.Text)
	prefix := doc.Format
	s.logger.Debug("acquire.document", "path", path, "format", doc.Format,
		"text_len", doc.TextLen(), "images", len(doc.Images))

	if len(doc.Images) == 0 {
		return Result{Text: direct, Confidence: DirectConfidence, Method: prefix + "-text", Pages: 1}, nil
	}

	pages := make([]vision.Page, len(doc.Images))
	for i, img := range doc.Images {
		pages[i] = vision.Page{Data: img.Data, MIME: img.MIME, Class: vision.ClassEmbedded, Index: i + 1, Total: len(doc.Images)}
	}
	vis := s.transcribeAll(ctx, pages)
	warns := vis.warnings

	if vis.ok == 0 {
		if direct == "" {
			return Result{Warnings: warns}, fmt.Errorf("%w: no embedded image could be transcribed", common.ErrAllProvidersFailed)
		}
		warns = append(warns, "embedded images could not be transcribed; using direct text only")
		return Result{Text: direct, Confidence: DirectConfidence, Method: prefix + "-text", Pages: 1, Warnings: warns}, nil
	}

	if doc.TextLen() <= EmbeddedTextMin {
		return Result{Text: vis.text, Confidence: vis.confidence, Method: prefix + "-vision:" + vis.method(),
			Pages: 1, Warnings: warns}, nil
	}
	return Result{
		Text:       joinSections(direct, vis.text),
		Confidence: (DirectConfidence + vis.confidence) / 2,
		Method:     prefix + "-hybrid:" + vis.method(),
		Pages:      1,
		Warnings:   warns,
	}, nil
}

func filePages(paths []string, class vision.InputClass) []vision.Page {
	pages := make([]vision.Page, 0, len(paths))
	for i, p := range paths {
		pages = append(pages, vision.Page{Path: p, Class: class, Index: i + 1, Total: len(paths)})
	}
	return pages
}

func joinSections(direct, visual string) string {
	return strings.TrimSpace(direct) + "\n\n" + strings.TrimSpace(visual)
}
