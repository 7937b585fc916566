// Package office reads embedded-object documents (DOCX, XLSX): their direct text and
// any raster images they carry.
package office

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// Image is one embedded raster image.
type Image struct {
	Name string
	MIME string
	Data []byte
}

// Document is the direct text plus embedded images of one file.
type Document struct {
	Format string // "docx" | "xlsx"
	Text   string
	Images []Image
}

// TextLen returns the length of the trimmed direct text in characters.
func (d *Document) TextLen() int {
	return len([]rune(strings.TrimSpace(d.Text)))
}

// Read dispatches on the file extension.
func Read(path string) (*Document, error) {
	switch ext := constants.NormalizeExt(filepath.Ext(path)); ext {
	case "docx":
		return ReadDOCX(path)
	case "xlsx":
		return ReadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported document extension: %q", ext)
	}
}

func imageMIME(name string) string {
	switch constants.NormalizeExt(filepath.Ext(name)) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	case "tif", "tiff":
		return "image/tiff"
	case "emf", "wmf":
		return "" // vector formats are not sent to OCR
	}
	return ""
}
