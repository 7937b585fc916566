package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// PrepareImage returns a path tesseract and cloud providers can read. PNG and JPEG pass
// through; HEIC/HEIF and other formats are converted to PNG and cached by content hash
// under ArtifactCacheDir. cleanup is nil when nothing temporary was created.
func (e *Extractor) PrepareImage(ctx context.Context, path string) (string, func(), []string, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	switch ext {
	case "png", "jpg", "jpeg":
		return path, nil, nil, nil
	}
	hashHex, err := fileSHA256(path)
	if err != nil {
		return "", nil, nil, err
	}
	out, warns, cleanup, err := convertToPNG(ctx, e, path, hashHex)
	return out, cleanup, warns, err
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// convertToPNG converts an image to PNG with the configured converter.
// If a cache dir is configured the PNG is persisted (and reused) at {cacheDir}/{hashHex}.png.
func convertToPNG(ctx context.Context, e *Extractor, in, hashHex string) (string, []string, func(), error) {
	cacheDir := e.cfg.ArtifactCacheDir
	if cacheDir != "" && hashHex != "" {
		cached := filepath.Join(cacheDir, hashHex+".png")
		if st, err := os.Stat(cached); err == nil && !st.IsDir() {
			e.logger.Debug("using cached image->png", "cache", cached)
			return cached, nil, nil, nil
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return "", nil, nil, err
		}
	}

	tmpDir, err := os.MkdirTemp("", "tt-img-*")
	if err != nil {
		return "", nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "page.png")

	converter := e.cfg.HeicConverter
	if !constants.IsHEICExt(filepath.Ext(in)) && converter == "heif-convert" {
		converter = "magick"
	}
	var errb []byte
	switch converter {
	case "heif-convert":
		_, errb, err = e.runner.Run(ctx, "heif-convert", e.logger, in, out)
	case "magick":
		_, errb, err = e.runner.Run(ctx, "magick", e.logger, in, out)
	case "sips":
		_, errb, err = e.runner.Run(ctx, "sips", e.logger, "-s", "format", "png", in, "--out", out)
	default:
		cleanup()
		return "", nil, nil, fmt.Errorf("image conversion not supported: set ocr.Config.HeicConverter to one of: heif-convert | magick | sips")
	}
	if err != nil {
		cleanup()
		return "", []string{string(errb)}, nil, fmt.Errorf("%s failed: %w", converter, err)
	}
	if _, statErr := os.Stat(out); statErr != nil {
		cleanup()
		return "", nil, nil, fmt.Errorf("image conversion produced no output: %v", statErr)
	}

	if cacheDir == "" || hashHex == "" {
		return out, nil, cleanup, nil
	}
	cached := filepath.Join(cacheDir, hashHex+".png")
	if err := os.Rename(out, cached); err != nil {
		// cross-device rename: copy instead
		if err := copyFile(out, cached); err != nil {
			cleanup()
			return "", nil, nil, err
		}
	}
	cleanup()
	e.logger.Debug("cached image->png", "cache", cached)
	return cached, nil, nil, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
