package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/timetable-extractor/internal/async"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	reqs []async.SubmitRequest
	fail map[string]bool // by base name
}

func (r *recordingSubmitter) Submit(_ context.Context, req async.SubmitRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[req.OriginalFilename] {
		return "", errors.New("queue is shutting down")
	}
	r.reqs = append(r.reqs, req)
	return fmt.Sprintf("job-%d", len(r.reqs)), nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestIngestPath(t *testing.T) {
	dir := t.TempDir()
	sub := &recordingSubmitter{}
	ing := NewIngestor(sub, nil)

	writeFile(t, filepath.Join(dir, "week.pdf"), "%PDF-1.7 week")
	writeFile(t, filepath.Join(dir, "copy.pdf"), "%PDF-1.7 week")
	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")

	res, err := ing.IngestPath(context.Background(), filepath.Join(dir, "week.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", res.JobID)
	assert.False(t, res.Deduplicated)
	assert.Len(t, res.HashHex, 64)

	require.Len(t, sub.reqs, 1)
	assert.Equal(t, "PDF", sub.reqs[0].MediaType)
	assert.Equal(t, "week.pdf", sub.reqs[0].OriginalFilename)
	assert.Equal(t, int64(len("%PDF-1.7 week")), sub.reqs[0].Size)
	assert.True(t, filepath.IsAbs(sub.reqs[0].FilePath))

	dup, err := ing.IngestPath(context.Background(), filepath.Join(dir, "copy.pdf"))
	require.NoError(t, err)
	assert.True(t, dup.Deduplicated)
	assert.Equal(t, "job-1", dup.JobID)
	assert.Equal(t, 1, sub.count())

	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "notes.txt"))
	assert.ErrorContains(t, err, "unsupported")
	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"), "png-a")
	writeFile(t, filepath.Join(root, "term", "b.docx"), "docx-b")
	writeFile(t, filepath.Join(root, "term", "b-copy.docx"), "docx-b")
	writeFile(t, filepath.Join(root, "term", "readme.md"), "# no")
	writeFile(t, filepath.Join(root, ".cache", "c.pdf"), "pdf-c")
	writeFile(t, filepath.Join(root, "rejected.jpg"), "jpg")

	tests := []struct {
		name       string
		skipHidden bool
		want       DirStats
	}{
		{"skip hidden", true, DirStats{Scanned: 5, Matched: 4, Succeeded: 3, Deduplicated: 1, Failed: 1}},
		{"include hidden", false, DirStats{Scanned: 6, Matched: 5, Succeeded: 4, Deduplicated: 1, Failed: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &recordingSubmitter{fail: map[string]bool{"rejected.jpg": true}}
			results, stats, err := NewIngestor(sub, nil).IngestDirectory(context.Background(), root, tt.skipHidden)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stats)
			assert.Len(t, results, tt.want.Matched)
			assert.Equal(t, tt.want.Succeeded-tt.want.Deduplicated, sub.count())
		})
	}
}

func TestIngestDirectoryErrors(t *testing.T) {
	ing := NewIngestor(&recordingSubmitter{}, nil)
	_, _, err := ing.IngestDirectory(context.Background(), " ", false)
	assert.Error(t, err)
	_, _, err = ing.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"), false)
	assert.Error(t, err)
}

func TestWatchEmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watch event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "existing.pdf"), next())

	writeFile(t, filepath.Join(root, "ignored.txt"), "x")
	writeFile(t, filepath.Join(root, "new.png"), "png")
	assert.Equal(t, filepath.Join(root, "new.png"), next())

	cancel()
	for range events {
	}
}

func TestIngestorRunSubmitsWatchedFiles(t *testing.T) {
	root := t.TempDir()
	sub := &recordingSubmitter{}
	ing := NewIngestor(sub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx, WatchConfig{Roots: []string{root}, Debounce: 10 * time.Millisecond}) }()

	// give the watcher time to register the root
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "week.xlsx"), "xlsx")

	require.Eventually(t, func() bool { return sub.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestWatchRequiresRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
