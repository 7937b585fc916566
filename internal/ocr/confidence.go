package ocr

import (
	"regexp"
	"strings"
)

var (
	reDayName   = regexp.MustCompile(`(?i)\b(mon|tue|wed|thu|fri|sat|sun)(day|s|sday|nesday|rsday|urday)?\b`)
	reClock     = regexp.MustCompile(`\b([01]?\d|2[0-3])[:.][0-5]\d\b`)
	reTimeRange = regexp.MustCompile(`\b\d{1,2}[:.]\d{2}\s*(?:[ap]\.?m\.?)?\s*(?:-|–|to)\s*\d{1,2}[:.]\d{2}`)
	reRoom      = regexp.MustCompile(`(?i)\b(room|rm|lab|hall)\b`)
)

func hasDayPattern(s string) bool       { return reDayName.MatchString(s) }
func hasClockPattern(s string) bool     { return reClock.MatchString(s) }
func hasTimeRangePattern(s string) bool { return reTimeRange.MatchString(s) }
func hasRoomPattern(s string) bool      { return reRoom.MatchString(s) }

// heuristicConfidence scores decoded text by the presence of timetable artifacts, 0..100.
func heuristicConfidence(txt string) float64 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	score := 20.0 // base
	if hasDayPattern(txt) {
		score += 20
	}
	if hasClockPattern(txt) {
		score += 15
	}
	if hasTimeRangePattern(txt) {
		score += 20
	}
	if hasRoomPattern(txt) {
		score += 10
	}
	if len(txt) > 120 {
		score += 10
	} // enough content
	if score > 100 {
		score = 100
	}
	return score
}
