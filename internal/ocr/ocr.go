package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	TessdataDir         string
	HeicConverter       string // "heif-convert" | "magick" | "sips"
	EnableTSVConfidence bool

	PSM int // 6 suits a uniform block of text; grids often do better with 4
	OEM int // 1 = LSTM; leave 0 to use default

	ArtifactCacheDir string
}

// ConfigFrom maps the OCR section of the application config.
func ConfigFrom(c common.OCRConfig) Config {
	return Config{
		Pdftotext:           c.Pdftotext,
		Pdftoppm:            c.Pdftoppm,
		Tesseract:           c.Tesseract,
		TesseractLang:       c.TesseractLang,
		DPI:                 c.DPI,
		MaxPages:            c.MaxPages,
		TessdataDir:         c.TessdataDir,
		HeicConverter:       c.HeicConverter,
		EnableTSVConfidence: c.EnableTSVConfidence,
		PSM:                 c.PSM,
		ArtifactCacheDir:    c.ArtifactCacheDir,
	}
}

// ExtractionResult is the output of the local engine. Confidence is 0..100.
type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType constants.MediaType
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float64
}

// Extractor is the local, no-network OCR engine.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	return NewExtractorWithRunner(cfg, execRunner{}, logger)
}

// NewExtractorWithRunner is NewExtractor with an injected command runner.
func NewExtractorWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execRunner{}
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.ArtifactCacheDir == "" {
		cfg.ArtifactCacheDir = "./tmp"
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Config returns the effective configuration after defaulting.
func (e *Extractor) Config() Config { return e.cfg }

// Extract runs a fully local extraction picked by file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting ocr extraction", "path", path, "method", "auto", "ext", ext)
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		res, err := e.extractPDF(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	case constants.IMAGE:
		png, cleanup, warns, err := e.PrepareImage(ctx, path)
		if err != nil {
			e.logger.Error("image conversion failed", "path", path, "error", err)
			return ExtractionResult{SourceType: constants.IMAGE, Warnings: warns}, err
		}
		if cleanup != nil {
			defer cleanup()
		}
		res, err := e.RecognizeImage(ctx, png)
		res.Duration = time.Since(start)
		res.Warnings = append(res.Warnings, warns...)
		return res, err
	default:
		e.logger.Error("unsupported ocr extension", "extension", ext)
		return ExtractionResult{}, fmt.Errorf("unsupported extension: %q", ext)
	}
}

// extractPDF uses the text layer when it carries enough characters, otherwise rasterizes and OCRs.
func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	layer, err := e.PDFText(ctx, path)
	if err == nil && layer.Density() >= 50 {
		return ExtractionResult{
			Text:       Normalize(layer.Text),
			Pages:      layer.Pages,
			SourceType: constants.PDF,
			Method:     "pdf-text",
			Confidence: 95,
		}, nil
	}
	var warns []string
	if err != nil {
		warns = append(warns, err.Error())
	}

	pages, cleanup, err := e.RenderPages(ctx, path)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return ExtractionResult{SourceType: constants.PDF, Warnings: warns}, err
	}
	res, err := e.RecognizePages(ctx, pages)
	res.Warnings = append(warns, res.Warnings...)
	return res, err
}
