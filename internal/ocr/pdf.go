package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// TextLayer is the embedded text of a paginated document.
type TextLayer struct {
	Text  string
	Pages int
}

// Density returns extracted characters per page.
func (t TextLayer) Density() float64 {
	if t.Pages <= 0 {
		return 0
	}
	n := utf8.RuneCountInString(strings.TrimSpace(strings.ReplaceAll(t.Text, "\f", "")))
	return float64(n) / float64(t.Pages)
}

// PDFText reads the text layer of a PDF with pdftotext.
func (e *Extractor) PDFText(ctx context.Context, path string) (TextLayer, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, e.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return TextLayer{}, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	text := string(out)
	return TextLayer{Text: text, Pages: countPages(text)}, nil
}

// countPages counts the \f pdftotext writes after every page, including pages with
// no text layer. Text after the last \f is one more unterminated page.
func countPages(text string) int {
	pages := strings.Count(text, "\f")
	tail := text[strings.LastIndex(text, "\f")+1:]
	if pages == 0 || strings.TrimSpace(tail) != "" {
		pages++
	}
	return pages
}

// RenderPages rasterizes each page to PNG. Call cleanup to remove the images.
func (e *Extractor) RenderPages(ctx context.Context, path string) ([]string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "tt-pp-*")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return nil, cleanup, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...; zero padded for long documents)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		e.logger.Warn("page cap applied", "rendered", len(matches), "max_pages", e.cfg.MaxPages)
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, cleanup, fmt.Errorf("pdftoppm produced no images")
	}
	return matches, cleanup, nil
}

// RecognizePages OCRs rendered pages sequentially and joins them with page breaks.
func (e *Extractor) RecognizePages(ctx context.Context, pages []string) (ExtractionResult, error) {
	var b strings.Builder
	var warns []string
	var confSum float64
	var ok int
	for _, img := range pages {
		res, err := e.RecognizeImage(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(res.Text)
		warns = append(warns, res.Warnings...)
		confSum += res.Confidence
		ok++
	}
	if ok == 0 {
		return ExtractionResult{SourceType: constants.PDF, Pages: len(pages), Warnings: warns}, fmt.Errorf("ocr failed on all %d pages", len(pages))
	}
	return ExtractionResult{
		Text:       b.String(),
		Pages:      len(pages),
		SourceType: constants.PDF,
		Method:     "pdf-ocr",
		Language:   e.cfg.TesseractLang,
		Warnings:   warns,
		Confidence: confSum / float64(ok),
	}, nil
}
