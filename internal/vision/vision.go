// Package vision transcribes timetable images through an ordered chain of providers,
// ending with the local OCR engine.
package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// InputClass selects the shared transcription prompt.
type InputClass string

const (
	ClassImage    InputClass = "image"
	ClassPDFPage  InputClass = "pdf_page"
	ClassEmbedded InputClass = "embedded_image"
)

// Page is one raster image to transcribe. Data may be empty when only Path is known
// (for example an image too large for cloud providers).
type Page struct {
	Data  []byte
	MIME  string
	Path  string
	Class InputClass
	Index int // 1-based within its document
	Total int
}

// Result is a transcription with the provider-specific confidence (0..100).
type Result struct {
	Text       string
	Confidence float64
	Provider   string
}

// Provider is one variant of the chain. Transcribe returns an error wrapping
// common.ErrProviderUnavailable when it cannot handle the page at all.
type Provider interface {
	Name() string
	Available() bool
	Transcribe(ctx context.Context, page Page) (Result, error)
}

const basePrompt = `Transcribe every piece of text in this school timetable exactly as it appears.
Keep the grid structure: write one line per lesson in the form
DAY START-END SUBJECT ROOM CLASS NOTES
and keep day headers, period numbers, break/lunch/assembly rows and the teacher name.
Do not summarize, translate, correct or invent anything. If a cell is empty, skip it.
Output plain text only.`

// Prompt returns the fixed transcription prompt for a page.
func Prompt(p Page) string {
	switch p.Class {
	case ClassPDFPage:
		return fmt.Sprintf("This image is page %d of %d of a timetable document.\n%s", p.Index, max(p.Total, p.Index), basePrompt)
	case ClassEmbedded:
		return "This image was embedded in a word-processing or spreadsheet document and may hold part of a timetable.\n" + basePrompt
	default:
		return "This image is a photograph or scan of a timetable.\n" + basePrompt
	}
}

// PageFromFile loads an image file as a page. Files over the cloud size cap keep only
// their Path so that only the local engine reads them.
func PageFromFile(path string, class InputClass, index, total int) (Page, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Page{}, fmt.Errorf("stat image: %w", err)
	}
	page := Page{
		Path:  path,
		MIME:  constants.ImageMIME(filepath.Ext(path)),
		Class: class,
		Index: index,
		Total: total,
	}
	if st.Size() > int64(constants.MaxVisionMBDefault)*1024*1024 {
		return page, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Page{}, fmt.Errorf("read image: %w", err)
	}
	page.Data = b
	return page, nil
}

// cloudReady reports whether a page can be sent to a cloud provider.
func cloudReady(p Page) bool {
	switch p.MIME {
	case "image/png", "image/jpeg":
		return len(p.Data) > 0
	}
	return false
}

func countChars(s string) int {
	return len([]rune(strings.TrimSpace(s)))
}
