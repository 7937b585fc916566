package structuring

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

const unknownTeacher = "Unknown"

// postProcess converts the wire document, rejecting blocks with a malformed time or day,
// an empty subject, or an end not after the start. Rejections become warnings.
func postProcess(w wireDocument) (*entity.TimetableDocument, []string) {
	doc := &entity.TimetableDocument{
		TeacherName:  strings.TrimSpace(w.TeacherName),
		AcademicYear: strings.TrimSpace(w.AcademicYear),
		Semester:     strings.TrimSpace(w.Semester),
		TimeBlocks:   make([]entity.TimeBlock, 0, len(w.TimeBlocks)),
	}
	if doc.TeacherName == "" {
		doc.TeacherName = unknownTeacher
	}
	if doc.AcademicYear != "" && !common.IsAcademicYear(doc.AcademicYear) {
		doc.AcademicYear = ""
	}

	var rejected []string
	for i, wb := range w.TimeBlocks {
		b := wb.toEntity()
		b.Day = constants.Day(strings.ToUpper(strings.TrimSpace(string(b.Day))))
		b.StartTime = strings.TrimSpace(b.StartTime)
		b.EndTime = strings.TrimSpace(b.EndTime)
		b.Subject = constants.CanonicalizeSubject(b.Subject)
		b.Classroom = strings.TrimSpace(b.Classroom)
		b.Grade = strings.TrimSpace(b.Grade)
		b.Section = strings.TrimSpace(b.Section)
		b.Notes = strings.TrimSpace(b.Notes)

		if reason := rejectReason(b); reason != "" {
			rejected = append(rejected, fmt.Sprintf("entry %d rejected: %s", i, reason))
			continue
		}
		b.Confidence = BlockConfidence(b)
		doc.TimeBlocks = append(doc.TimeBlocks, b)
	}
	doc.Confidence = DocumentConfidence(doc.TimeBlocks)
	return doc, rejected
}

func rejectReason(b entity.TimeBlock) string {
	if !b.Day.Valid() {
		return fmt.Sprintf("invalid day %q", b.Day)
	}
	if !constants.TimePattern.MatchString(b.StartTime) {
		return fmt.Sprintf("invalid start time %q", b.StartTime)
	}
	if !constants.TimePattern.MatchString(b.EndTime) {
		return fmt.Sprintf("invalid end time %q", b.EndTime)
	}
	if b.Subject == "" {
		return "empty subject"
	}
	if b.Duration() <= 0 {
		return fmt.Sprintf("end %s not after start %s", b.EndTime, b.StartTime)
	}
	return ""
}
