package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

type DirStats struct {
	Scanned      int `json:"scanned"`
	Matched      int `json:"matched"`
	Succeeded    int `json:"succeeded"`
	Deduplicated int `json:"deduplicated"`
	Failed       int `json:"failed"`
}

// IngestDirectory walks root and submits every supported file. Per-file
// failures are recorded in the results and do not stop the walk.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !Supported(path) {
			return nil
		}
		stats.Matched++

		res, err := i.IngestPath(ctx, path)
		if err != nil {
			res.Err = err.Error()
			results = append(results, res)
			stats.Failed++
			return nil
		}
		results = append(results, res)
		stats.Succeeded++
		if res.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// Supported reports whether path has an extension the pipeline can route.
func Supported(path string) bool {
	return constants.MapExtToFormat(filepath.Ext(path)) != ""
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
