package structuring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

func buildSystemPrompt(schema map[string]any) string {
	parts := []string{
		"You are a school timetable parser. Return ONLY JSON that matches the provided JSON Schema.",
		"Times: 24-hour HH:MM. Convert 12-hour values (2:30 PM -> 14:30, 12:30 AM -> 00:30, 12:15 PM -> 12:15).",
		"Days: full uppercase English names (MONDAY ... SUNDAY). A lesson listed for a range or list of days " +
			"(Mon-Wed, Tue & Thu) becomes one entry per day.",
		"Subjects: expand common abbreviations (Maths -> Mathematics, PE -> Physical Education, ICT -> Information Technology).",
		"Breaks, lunch, assembly and registration periods are entries too; use the label as the subject (Break, Lunch, Assembly).",
		"classroom, grade, section and notes are optional: use an empty string when the text does not show them. Never invent values.",
		"teacher_name: the teacher the timetable belongs to; use \"Unknown\" when it is not shown.",
		"academic_year: YYYY-YYYY or YYYY/YY, or an empty string. semester: free text or an empty string.",
		"Never output null.",
		"JSON Schema:\n" + mustJSON(schema),
	}
	return strings.Join(parts, "\n")
}

func buildUserPrompt(text string) string {
	return "Timetable text:\n" + strings.TrimSpace(text) + "\n\nReturn ONLY JSON that matches the provided schema."
}

func buildRefinePrompt(doc *entity.TimetableDocument, insights *entity.SemanticInsights, threshold float64) string {
	var b strings.Builder
	b.WriteString("Current timetable JSON:\n")
	b.WriteString(mustJSON(wireFromDocument(doc)))
	b.WriteString("\n\nValidation findings (entry indexes are 0-based positions in time_blocks):\n")

	for _, d := range insights.Duplicates {
		fmt.Fprintf(&b, "- duplicate: entries %d and %d (similarity %.3f)\n", d.I, d.J, d.Similarity)
	}
	for _, c := range insights.Conflicts {
		fmt.Fprintf(&b, "- conflict: entries %d and %d: %s (confidence %.0f vs %.0f)\n",
			c.I, c.J, c.Reason, blockConfidence(doc, c.I), blockConfidence(doc, c.J))
	}
	for _, g := range insights.Gaps {
		fmt.Fprintf(&b, "- gap: %s %s-%s: %s\n", g.Day, g.Start, g.End, g.Reason)
	}

	fmt.Fprintf(&b, "\nRules:\n"+
		"- Merge only duplicate pairs listed above with similarity above %.2f; keep one entry per pair.\n"+
		"- Resolve each conflict by keeping the entry with the higher confidence; if equal keep the earlier one.\n"+
		"- Gaps are informational; do not fill them.\n"+
		"- Never invent data. Leave every other entry unchanged.\n"+
		"\nReturn the corrected timetable as JSON that matches the provided schema.", threshold)
	return b.String()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func blockConfidence(doc *entity.TimetableDocument, i int) float64 {
	if i < 0 || i >= len(doc.TimeBlocks) {
		return 0
	}
	return doc.TimeBlocks[i].Confidence
}
