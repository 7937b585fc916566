package vision

import (
	"context"
	"fmt"
	"os"

	"github.com/joseph-ayodele/timetable-extractor/internal/ocr"
)

// ProviderLocal is the chain name of the no-network tesseract fallback.
const ProviderLocal = "local"

// LocalProvider runs the local OCR engine and reports its measured confidence.
type LocalProvider struct {
	engine *ocr.Extractor
}

func NewLocalProvider(engine *ocr.Extractor) *LocalProvider {
	return &LocalProvider{engine: engine}
}

func (p *LocalProvider) Name() string { return ProviderLocal }

func (p *LocalProvider) Available() bool { return p.engine != nil }

func (p *LocalProvider) Transcribe(ctx context.Context, page Page) (Result, error) {
	path := page.Path
	if path == "" {
		tmp, err := writeTemp(page)
		if err != nil {
			return Result{}, err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	img, cleanup, _, err := p.engine.PrepareImage(ctx, path)
	if err != nil {
		return Result{}, fmt.Errorf("prepare image: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	res, err := p.engine.RecognizeImage(ctx, img)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: res.Text, Confidence: res.Confidence, Provider: ProviderLocal}, nil
}

func writeTemp(page Page) (string, error) {
	if len(page.Data) == 0 {
		return "", fmt.Errorf("page has neither data nor path")
	}
	f, err := os.CreateTemp("", "tt-page-*"+extForMIME(page.MIME))
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(page.Data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp image: %w", err)
	}
	return f.Name(), nil
}

func extForMIME(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	}
	return ".png"
}
