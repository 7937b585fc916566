package entity

import "github.com/joseph-ayodele/timetable-extractor/constants"

// DuplicatePair names two block indexes whose embeddings are near-identical. I < J.
type DuplicatePair struct {
	I          int     `json:"i"`
	J          int     `json:"j"`
	Similarity float64 `json:"similarity"`
}

// ConflictPair names two same-day blocks whose intervals overlap. I < J.
type ConflictPair struct {
	I      int    `json:"i"`
	J      int    `json:"j"`
	Reason string `json:"reason"`
}

// Gap is a missing day or an oversized interval between consecutive entries.
type Gap struct {
	Day             constants.Day `json:"day"`
	Start           string        `json:"start"`
	End             string        `json:"end"`
	DurationMinutes int           `json:"duration_minutes"`
	FullDay         bool          `json:"full_day"`
	Reason          string        `json:"reason"`
}

// Statistics aggregates the analyzed blocks.
type Statistics struct {
	TotalBlocks            int                   `json:"total_blocks"`
	PerDay                 map[constants.Day]int `json:"per_day,omitempty"`
	AverageDurationMinutes float64               `json:"average_duration_minutes"`
	TotalDurationMinutes   int                   `json:"total_duration_minutes"`
}

// SemanticInsights is recomputed on every analysis pass and never persisted.
// Degraded is set when embeddings were unavailable; the lists are then empty
// and only TotalBlocks is populated.
type SemanticInsights struct {
	Duplicates     []DuplicatePair `json:"duplicates"`
	Conflicts      []ConflictPair  `json:"conflicts"`
	Gaps           []Gap           `json:"gaps"`
	Stats          Statistics      `json:"stats"`
	Degraded       bool            `json:"degraded,omitempty"`
	DegradedReason string          `json:"degraded_reason,omitempty"`
}

// NeedsRefinement reports whether a refinement pass should run.
func (s *SemanticInsights) NeedsRefinement() bool {
	return s != nil && !s.Degraded && (len(s.Duplicates) > 0 || len(s.Conflicts) > 0)
}
