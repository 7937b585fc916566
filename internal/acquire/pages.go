package acquire

import (
	"context"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/internal/vision"
)

type visionOutput struct {
	text       string
	confidence float64
	providers  []string
	ok         int
	warnings   []string
}

// method joins the distinct providers that produced text, in first-use order.
func (v visionOutput) method() string {
	return strings.Join(v.providers, "+")
}

// transcribeAll sends pages through the chain one at a time. Pages that fail every
// provider are skipped with a warning.
func (s *Selector) transcribeAll(ctx context.Context, pages []vision.Page) visionOutput {
	var out visionOutput
	var b strings.Builder
	var confSum float64
	seen := map[string]bool{}

	for _, page := range pages {
		if ctx.Err() != nil {
			out.warnings = append(out.warnings, ctx.Err().Error())
			break
		}
		if len(page.Data) == 0 && page.Path != "" {
			loaded, err := vision.PageFromFile(page.Path, page.Class, page.Index, page.Total)
			if err != nil {
				out.warnings = append(out.warnings, fmt.Sprintf("page %d: %v", page.Index, err))
				continue
			}
			page = loaded
		}
		res, err := s.chain.Transcribe(ctx, page)
		if err != nil {
			s.logger.Warn("acquire.page.failed", "page", page.Index, "class", page.Class, "error", err)
			out.warnings = append(out.warnings, fmt.Sprintf("page %d: %v", page.Index, err))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(res.Text))
		confSum += res.Confidence
		out.ok++
		if !seen[res.Provider] {
			seen[res.Provider] = true
			out.providers = append(out.providers, res.Provider)
		}
	}
	out.text = b.String()
	if out.ok > 0 {
		out.confidence = confSum / float64(out.ok)
	}
	return out
}
