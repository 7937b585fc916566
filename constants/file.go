package constants

import "strings"

// MediaType is the declared input class of an uploaded timetable.
type MediaType string

const (
	IMAGE    MediaType = "IMAGE"
	PDF      MediaType = "PDF"
	DOCUMENT MediaType = "DOCUMENT" // embedded-object documents: docx, xlsx
)

// MediaTypes holds the allowed values for the media_type column in extraction_jobs.
var MediaTypes = []MediaType{IMAGE, PDF, DOCUMENT}

// AllowedExtensions holds the file extensions accepted for submission.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"heic": {},
	"heif": {},
	"docx": {},
	"xlsx": {},
}

// MaxVisionMBDefault caps the size of a single image sent to a cloud provider.
const MaxVisionMBDefault = 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the media type for a normalized extension, or "" when unsupported.
func MapExtToFormat(ext string) MediaType {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "webp", "heic", "heif":
		return IMAGE
	case "docx", "xlsx":
		return DOCUMENT
	}
	return ""
}

// IsHEICExt reports whether ext needs conversion before any vision call.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif", "heics", "heifs":
		return true
	}
	return false
}

// ImageMIME returns the MIME type cloud providers accept for ext, or "" when they don't.
func ImageMIME(ext string) string {
	switch NormalizeExt(ext) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	}
	return ""
}

// ParseMediaType accepts either a media class name or a MIME type.
func ParseMediaType(s string) (MediaType, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "image" || strings.HasPrefix(v, "image/"):
		return IMAGE, true
	case v == "pdf" || v == "application/pdf":
		return PDF, true
	case v == "document" || v == "docx" || v == "xlsx":
		return DOCUMENT, true
	case strings.Contains(v, "officedocument"):
		return DOCUMENT, true
	}
	return "", false
}
