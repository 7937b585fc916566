// Package ingest discovers timetable files on disk and submits them for extraction.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/async"
)

// Submitter accepts one file for asynchronous extraction.
// Both *async.Queue and *server.Client satisfy it.
type Submitter interface {
	Submit(ctx context.Context, req async.SubmitRequest) (string, error)
}

// FileResult is the outcome for one discovered file.
type FileResult struct {
	Path         string `json:"path"`
	JobID        string `json:"job_id,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	HashHex      string `json:"sha256,omitempty"`
	Err          string `json:"error,omitempty"`
}

// Ingestor submits files, skipping content it has already submitted.
type Ingestor struct {
	submitter Submitter
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]string // sha256 -> job id
}

func NewIngestor(submitter Submitter, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{submitter: submitter, logger: logger, seen: make(map[string]string)}
}

// IngestPath hashes path and submits it unless identical bytes were seen before.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (FileResult, error) {
	out := FileResult{Path: path}
	abs, err := filepath.Abs(path)
	if err != nil {
		return out, err
	}
	out.Path = abs

	mediaType := constants.MapExtToFormat(filepath.Ext(abs))
	if mediaType == "" {
		return out, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(abs))
	}

	sum, size, err := hashFile(abs)
	if err != nil {
		return out, err
	}
	out.HashHex = sum

	i.mu.Lock()
	if id, ok := i.seen[sum]; ok {
		i.mu.Unlock()
		out.JobID = id
		out.Deduplicated = true
		i.logger.Debug("skipping already submitted file", "path", abs, "job_id", id)
		return out, nil
	}
	i.mu.Unlock()

	id, err := i.submitter.Submit(ctx, async.SubmitRequest{
		FilePath:         abs,
		MediaType:        string(mediaType),
		OriginalFilename: filepath.Base(abs),
		Size:             size,
	})
	if err != nil {
		return out, err
	}
	out.JobID = id

	i.mu.Lock()
	i.seen[sum] = id
	i.mu.Unlock()
	i.logger.Info("file submitted", "path", abs, "job_id", id, "sha256", sum[:12])
	return out, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
