package acquire

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/ocr"
	"github.com/joseph-ayodele/timetable-extractor/internal/vision"
)

// popplerRunner fakes pdftotext and pdftoppm.
type popplerRunner struct {
	text   string
	err    error
	pages  int
	called []string
}

func (r *popplerRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	r.called = append(r.called, name)
	switch name {
	case "pdftotext":
		if r.err != nil {
			return nil, []byte("Syntax Error"), r.err
		}
		return []byte(r.text), nil, nil
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= r.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

// scriptedChain answers pages in order from a list of providers; "" fails the page.
type scriptedChain struct {
	providers []string
	pages     []vision.Page
}

func (c *scriptedChain) Transcribe(_ context.Context, page vision.Page) (vision.Result, error) {
	i := len(c.pages)
	c.pages = append(c.pages, page)
	name := c.providers[i%len(c.providers)]
	if name == "" {
		return vision.Result{}, common.ErrAllProvidersFailed
	}
	conf := 92.0
	if name == "local" {
		conf = 60
	}
	return vision.Result{
		Text:       fmt.Sprintf("TUESDAY 10:00-11:00 Physics page %d", page.Index),
		Confidence: conf,
		Provider:   name,
	}, nil
}

func newSelector(runner ocr.Runner, chain Transcriber) (*Selector, *metrics.Collector) {
	engine := ocr.NewExtractorWithRunner(ocr.Config{}, runner, nil)
	collector := metrics.NewCollector()
	return NewSelector(engine, chain, collector, nil), collector
}

func touch(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestAcquirePDFTextOnly(t *testing.T) {
	runner := &popplerRunner{text: strings.Repeat("MONDAY 09:00-10:00 Mathematics B12\n", 8) + "\f"}
	chain := &scriptedChain{providers: []string{"openai"}}
	s, collector := newSelector(runner, chain)

	res, err := s.Acquire(context.Background(), touch(t, "tt.pdf", []byte("%PDF")), constants.PDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf-text", res.Method)
	assert.Equal(t, float64(DirectConfidence), res.Confidence)
	assert.GreaterOrEqual(t, res.Density, float64(TextOnlyDensity))
	assert.NotContains(t, runner.called, "pdftoppm")
	assert.Empty(t, chain.pages)

	op, ok := collector.Snapshot().Get(metrics.OpAcquire + "pdf")
	require.True(t, ok)
	assert.Equal(t, int64(1), op.Count)
}

func TestAcquirePDFHybrid(t *testing.T) {
	text := strings.Repeat("x", 120) + "\f"
	runner := &popplerRunner{text: text, pages: 1}
	chain := &scriptedChain{providers: []string{"anthropic"}}
	s, _ := newSelector(runner, chain)

	res, err := s.Acquire(context.Background(), touch(t, "tt.pdf", []byte("%PDF")), constants.PDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf-hybrid:anthropic", res.Method)
	assert.InDelta(t, (95.0+92.0)/2, res.Confidence, 1e-9)
	assert.True(t, strings.HasPrefix(res.Text, strings.Repeat("x", 120)))
	assert.Contains(t, res.Text, "Physics page 1")
	require.Len(t, chain.pages, 1)
	assert.Equal(t, vision.ClassPDFPage, chain.pages[0].Class)
}

func TestAcquireThresholds(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		pages   int
		density float64
		method  string
		calls   int
	}{
		{"density 49 is scanned", strings.Repeat("x", 49) + "\f", 1, 49, "pdf-vision:openai", 1},
		{"density 50 is hybrid", strings.Repeat("x", 50) + "\f", 1, 50, "pdf-hybrid:openai", 1},
		{"density 199 is hybrid", strings.Repeat("x", 199) + "\f", 1, 199, "pdf-hybrid:openai", 1},
		{"density 200 is text only", strings.Repeat("x", 200) + "\f", 1, 200, "pdf-text", 0},
		{"trailing blank page counts", strings.Repeat("x", 300) + "\f\f", 2, 150, "pdf-hybrid:openai", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &popplerRunner{text: tt.text, pages: 1}
			chain := &scriptedChain{providers: []string{"openai"}}
			s, _ := newSelector(runner, chain)

			res, err := s.Acquire(context.Background(), touch(t, "tt.pdf", []byte("%PDF")), constants.PDF)
			require.NoError(t, err)
			assert.Equal(t, tt.method, res.Method)
			assert.Equal(t, tt.pages, res.Pages)
			assert.InDelta(t, tt.density, res.Density, 1e-9)
			assert.Len(t, chain.pages, tt.calls)
		})
	}
}

func TestAcquirePDFScannedMixedProviders(t *testing.T) {
	runner := &popplerRunner{err: errors.New("exit status 1"), pages: 3}
	chain := &scriptedChain{providers: []string{"openai", "local", "openai"}}
	s, _ := newSelector(runner, chain)

	res, err := s.Acquire(context.Background(), touch(t, "scan.pdf", []byte("%PDF")), constants.PDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf-vision:openai+local", res.Method)
	assert.InDelta(t, (92.0+60.0+92.0)/3, res.Confidence, 1e-9)
	assert.NotEmpty(t, res.Warnings)

	require.Len(t, chain.pages, 3)
	for i, p := range chain.pages {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, "image/png", p.MIME)
	}
	assert.Contains(t, res.Text, "page 3")
}

func TestAcquirePDFScannedAllFail(t *testing.T) {
	runner := &popplerRunner{text: "\f", pages: 2}
	s, _ := newSelector(runner, &scriptedChain{providers: []string{""}})

	_, err := s.Acquire(context.Background(), touch(t, "scan.pdf", []byte("%PDF")), constants.PDF)
	assert.ErrorIs(t, err, common.ErrAllProvidersFailed)
}

func TestAcquirePDFHybridVisionFailureKeepsText(t *testing.T) {
	runner := &popplerRunner{text: strings.Repeat("y", 80), pages: 1}
	s, _ := newSelector(runner, &scriptedChain{providers: []string{""}})

	res, err := s.Acquire(context.Background(), touch(t, "tt.pdf", []byte("%PDF")), constants.PDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf-text", res.Method)
	assert.Contains(t, res.Warnings, "vision pass failed; using text layer only")
}

func TestAcquireImage(t *testing.T) {
	chain := &scriptedChain{providers: []string{"bedrock"}}
	s, _ := newSelector(&popplerRunner{}, chain)

	res, err := s.Acquire(context.Background(), touch(t, "photo.jpg", []byte("jpeg")), "")
	require.NoError(t, err)
	assert.Equal(t, "vision:bedrock", res.Method)
	assert.Equal(t, 92.0, res.Confidence)
	require.Len(t, chain.pages, 1)
	assert.Equal(t, vision.ClassImage, chain.pages[0].Class)
	assert.Equal(t, "image/jpeg", chain.pages[0].MIME)
}

func writeDOCX(t *testing.T, body string, withImage bool) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "timetable.docx")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>%s</w:t></w:r></w:p></w:body></w:document>`, body)
	require.NoError(t, err)
	if withImage {
		w, err = zw.Create("word/media/image1.png")
		require.NoError(t, err)
		_, err = w.Write([]byte("png"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestAcquireDocument(t *testing.T) {
	long := "Ms Okafor weekly timetable: MONDAY 09:00-10:00 Mathematics Room B12"
	tests := []struct {
		name      string
		body      string
		withImage bool
		method    string
		calls     int
	}{
		{"text only", long, false, "docx-text", 0},
		{"vision only", "Timetable", true, "docx-vision:openai", 1},
		{"hybrid", long, true, "docx-hybrid:openai", 1},
		{"50 chars of text is vision only", strings.Repeat("a", 50), true, "docx-vision:openai", 1},
		{"51 chars of text is hybrid", strings.Repeat("a", 51), true, "docx-hybrid:openai", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &scriptedChain{providers: []string{"openai"}}
			s, _ := newSelector(&popplerRunner{}, chain)

			res, err := s.Acquire(context.Background(), writeDOCX(t, tt.body, tt.withImage), constants.DOCUMENT)
			require.NoError(t, err)
			assert.Equal(t, tt.method, res.Method)
			assert.Len(t, chain.pages, tt.calls)
			if tt.calls > 0 {
				assert.Equal(t, vision.ClassEmbedded, chain.pages[0].Class)
			}
		})
	}
}

func TestAcquireDocumentImagesFailFallsBackToText(t *testing.T) {
	s, _ := newSelector(&popplerRunner{}, &scriptedChain{providers: []string{""}})
	res, err := s.Acquire(context.Background(), writeDOCX(t, "MONDAY 09:00 Maths", true), constants.DOCUMENT)
	require.NoError(t, err)
	assert.Equal(t, "docx-text", res.Method)
	assert.NotEmpty(t, res.Warnings)
}

func TestAcquireRejects(t *testing.T) {
	s, _ := newSelector(&popplerRunner{}, &scriptedChain{providers: []string{"openai"}})

	_, err := s.Acquire(context.Background(), touch(t, "notes.txt", []byte("hi")), "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = s.Acquire(context.Background(), writeDOCX(t, "short", false), constants.DOCUMENT)
	assert.ErrorIs(t, err, common.ErrInsufficientText)
}
