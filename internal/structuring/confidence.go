package structuring

import (
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

// Completeness weights. A block with every field populated scores 100.
const (
	requiredWeight = 20 // day, start, end, subject
	optionalWeight = 5  // classroom, grade, section, notes
	maxBlockWeight = 4*requiredWeight + 4*optionalWeight
)

func blockWeight(b entity.TimeBlock) int {
	w := 0
	for _, f := range []string{string(b.Day), b.StartTime, b.EndTime, b.Subject} {
		if strings.TrimSpace(f) != "" {
			w += requiredWeight
		}
	}
	for _, f := range []string{b.Classroom, b.Grade, b.Section, b.Notes} {
		if strings.TrimSpace(f) != "" {
			w += optionalWeight
		}
	}
	return w
}

// BlockConfidence is the completeness percentage of one block.
func BlockConfidence(b entity.TimeBlock) float64 {
	return float64(blockWeight(b)) * 100 / maxBlockWeight
}

// DocumentConfidence is the percentage of weight achieved across all blocks, 0 when empty.
// It depends only on the multiset of blocks, not their order.
func DocumentConfidence(blocks []entity.TimeBlock) float64 {
	if len(blocks) == 0 {
		return 0
	}
	total := 0
	for _, b := range blocks {
		total += blockWeight(b)
	}
	return float64(total) * 100 / float64(maxBlockWeight*len(blocks))
}
