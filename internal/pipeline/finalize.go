package pipeline

import (
	"fmt"
	"sort"

	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/semantic"
	"github.com/joseph-ayodele/timetable-extractor/internal/structuring"
)

// Finalize enforces the document invariants on a copy of doc:
// exact (day, start, end, subject) duplicates collapse to the higher-confidence entry,
// and entries that still overlap are flagged ConflictAccepted with one warning per pair.
// Blocks come out sorted by day and start time.
func Finalize(doc *entity.TimetableDocument) *entity.TimetableDocument {
	out := doc.Clone()

	kept := make([]entity.TimeBlock, 0, len(out.TimeBlocks))
	seen := map[string]int{}
	collapsed := 0
	for _, b := range out.TimeBlocks {
		if i, ok := seen[b.Key()]; ok {
			if b.Confidence > kept[i].Confidence {
				kept[i] = b
			}
			collapsed++
			continue
		}
		seen[b.Key()] = len(kept)
		kept = append(kept, b)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Day != kept[j].Day {
			return kept[i].Day.Index() < kept[j].Day.Index()
		}
		return kept[i].StartTime < kept[j].StartTime
	})

	var overlaps []string
	for _, c := range semantic.FindConflicts(kept) {
		kept[c.I].ConflictAccepted = true
		kept[c.J].ConflictAccepted = true
		overlaps = append(overlaps, fmt.Sprintf("overlap accepted: %s / %s", kept[c.I], kept[c.J]))
	}

	out.TimeBlocks = kept
	out.Confidence = structuring.DocumentConfidence(kept)
	if collapsed > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("collapsed %d exact duplicate entries", collapsed))
	}
	out.Warnings = append(out.Warnings, overlaps...)
	return out
}
