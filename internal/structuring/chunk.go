package structuring

import (
	"context"
	"sort"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/llm"
)

// SplitChunks splits text on lines that open with a day-of-week header. Text before the
// first header is kept as its own chunk. With fewer than two headers the text is cut
// into groups of linesPerChunk lines instead.
func SplitChunks(text string, linesPerChunk int) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var chunks []string
	var cur []string
	headers := 0
	flush := func() {
		if c := strings.TrimSpace(strings.Join(cur, "\n")); c != "" {
			chunks = append(chunks, c)
		}
		cur = cur[:0]
	}
	for _, ln := range lines {
		if isDayHeader(ln) {
			headers++
			flush()
		}
		cur = append(cur, ln)
	}
	flush()

	if headers >= 2 {
		return chunks
	}
	return lineGroups(lines, linesPerChunk)
}

func lineGroups(lines []string, size int) []string {
	if size <= 0 {
		size = 12
	}
	var chunks []string
	for i := 0; i < len(lines); i += size {
		end := min(i+size, len(lines))
		if c := strings.TrimSpace(strings.Join(lines[i:end], "\n")); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// isDayHeader reports whether the first word of ln names a day. Two-letter
// abbreviations are ignored; they collide with ordinary words too often.
func isDayHeader(ln string) bool {
	fields := strings.FieldsFunc(strings.TrimSpace(ln), func(r rune) bool {
		return r == ' ' || r == '\t' || r == ':' || r == ',' || r == '|' || r == '-'
	})
	if len(fields) == 0 || len(fields[0]) < 3 {
		return false
	}
	_, ok := constants.ParseDay(fields[0])
	return ok
}

type scoredChunk struct {
	index int
	score float64
}

// selectChunks keeps the first chunk plus the topK-1 chunks most similar to query,
// returned in document order.
func selectChunks(ctx context.Context, embedder llm.Embedder, query string, chunks []string, topK int) ([]string, error) {
	if topK <= 0 || len(chunks) <= topK {
		return chunks, nil
	}
	vectors, err := embedder.EmbedBatch(ctx, append([]string{query}, chunks...))
	if err != nil {
		return nil, err
	}
	q := vectors[0]

	scored := make([]scoredChunk, 0, len(chunks)-1)
	for i := 1; i < len(chunks); i++ {
		scored = append(scored, scoredChunk{index: i, score: llm.CosineSimilarity(q, vectors[i+1])})
	}
	sort.SliceStable(scored, func(a, b int) bool { return scored[a].score > scored[b].score })

	keep := []int{0}
	for _, s := range scored[:topK-1] {
		keep = append(keep, s.index)
	}
	sort.Ints(keep)

	out := make([]string, len(keep))
	for i, idx := range keep {
		out[i] = chunks[idx]
	}
	return out, nil
}
