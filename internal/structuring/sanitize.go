package structuring

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
)

var (
	documentKeys = map[string]struct{}{
		"teacher_name": {}, "time_blocks": {}, "academic_year": {}, "semester": {},
	}
	blockKeys = map[string]struct{}{
		"day": {}, "start_time": {}, "end_time": {}, "subject": {},
		"classroom": {}, "grade": {}, "section": {}, "notes": {},
	}
	documentSynonyms = [][2]string{
		{"teacher", "teacher_name"},
		{"teacherName", "teacher_name"},
		{"blocks", "time_blocks"},
		{"entries", "time_blocks"},
		{"lessons", "time_blocks"},
		{"schedule", "time_blocks"},
		{"timetable", "time_blocks"},
		{"timeBlocks", "time_blocks"},
		{"year", "academic_year"},
		{"term", "semester"},
	}
	blockSynonyms = [][2]string{
		{"days", "day"},
		{"start", "start_time"},
		{"startTime", "start_time"},
		{"from", "start_time"},
		{"end", "end_time"},
		{"endTime", "end_time"},
		{"to", "end_time"},
		{"room", "classroom"},
		{"location", "classroom"},
		{"class", "grade"},
		{"course", "subject"},
		{"lesson", "subject"},
		{"note", "notes"},
	}
)

// sanitizeDocument repairs a model reply that failed strict validation:
// renames known synonyms, coerces scalars to strings, normalizes times and day names,
// expands multi-day entries, drops entries that stay invalid and removes unknown keys.
// It returns the cleaned JSON and a note per change.
func sanitizeDocument(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var notes []string
	rename(m, documentSynonyms, &notes)

	for _, k := range []string{"teacher_name", "academic_year", "semester"} {
		if v, ok := m[k]; ok {
			m[k] = toString(v)
		}
	}
	if ay, _ := m["academic_year"].(string); ay != "" && !common.IsAcademicYear(ay) {
		m["academic_year"] = ""
		notes = append(notes, "academic_year(invalid)")
	}
	if tn, _ := m["teacher_name"].(string); tn == "" {
		m["teacher_name"] = unknownTeacher
		notes = append(notes, "teacher_name(missing)")
	}

	var blocks []any
	switch v := m["time_blocks"].(type) {
	case []any:
		blocks = v
	case nil:
	default:
		notes = append(notes, "time_blocks(type)")
	}
	cleaned := make([]any, 0, len(blocks))
	for i, item := range blocks {
		bm, ok := item.(map[string]any)
		if !ok {
			notes = append(notes, fmt.Sprintf("time_blocks[%d](type)", i))
			continue
		}
		expanded, why := sanitizeBlock(bm, &notes)
		if why != "" {
			notes = append(notes, fmt.Sprintf("time_blocks[%d](%s)", i, why))
			continue
		}
		cleaned = append(cleaned, expanded...)
	}
	m["time_blocks"] = cleaned

	for k := range maps.Clone(m) {
		if _, ok := documentKeys[k]; !ok {
			delete(m, k)
			notes = append(notes, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, notes, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(notes) > 0 {
		logger.Warn("structuring.sanitize", "changes", notes)
	}
	return out, notes, nil
}

// sanitizeBlock returns one block per day, or a reason when the block must be dropped.
func sanitizeBlock(bm map[string]any, notes *[]string) ([]any, string) {
	rename(bm, blockSynonyms, notes)

	for k, v := range maps.Clone(bm) {
		if _, ok := blockKeys[k]; !ok {
			if k == "time" {
				splitTimeRange(bm, toString(v))
			}
			delete(bm, k)
			continue
		}
		if v == nil {
			delete(bm, k)
			continue
		}
		bm[k] = toString(v)
	}

	start, ok := constants.NormalizeTime(toString(bm["start_time"]))
	if !ok {
		return nil, "start_time"
	}
	end, ok := constants.NormalizeTime(toString(bm["end_time"]))
	if !ok {
		return nil, "end_time"
	}
	bm["start_time"], bm["end_time"] = start, end

	subject := strings.TrimSpace(toString(bm["subject"]))
	if subject == "" {
		return nil, "subject"
	}
	bm["subject"] = subject

	days, ok := constants.ExpandDays(toString(bm["day"]))
	if !ok {
		return nil, "day"
	}
	out := make([]any, 0, len(days))
	for _, d := range days {
		cp := maps.Clone(bm)
		cp["day"] = string(d)
		out = append(out, cp)
	}
	if len(days) > 1 {
		*notes = append(*notes, fmt.Sprintf("day(expanded %d)", len(days)))
	}
	return out, ""
}

// splitTimeRange fills start_time/end_time from a combined "09:00-10:00" value.
func splitTimeRange(bm map[string]any, v string) {
	for _, sep := range []string{"-", "–", "—", " to "} {
		if a, b, ok := strings.Cut(v, sep); ok {
			if _, has := bm["start_time"]; !has {
				bm["start_time"] = strings.TrimSpace(a)
			}
			if _, has := bm["end_time"]; !has {
				bm["end_time"] = strings.TrimSpace(b)
			}
			return
		}
	}
}

func rename(m map[string]any, pairs [][2]string, notes *[]string) {
	for _, p := range pairs {
		from, to := p[0], p[1]
		v, ok := m[from]
		if !ok {
			continue
		}
		if _, exists := m[to]; !exists {
			m[to] = v
		}
		delete(m, from)
		*notes = append(*notes, from+"->"+to)
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := toString(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
