package structuring

import (
	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

// wireDocument is the model-facing shape; every field is a string.
type wireDocument struct {
	TeacherName  string      `json:"teacher_name"`
	TimeBlocks   []wireBlock `json:"time_blocks"`
	AcademicYear string      `json:"academic_year,omitempty"`
	Semester     string      `json:"semester,omitempty"`
}

type wireBlock struct {
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Subject   string `json:"subject"`
	Classroom string `json:"classroom,omitempty"`
	Grade     string `json:"grade,omitempty"`
	Section   string `json:"section,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func wireFromDocument(doc *entity.TimetableDocument) wireDocument {
	w := wireDocument{
		TeacherName:  doc.TeacherName,
		AcademicYear: doc.AcademicYear,
		Semester:     doc.Semester,
		TimeBlocks:   make([]wireBlock, len(doc.TimeBlocks)),
	}
	for i, b := range doc.TimeBlocks {
		w.TimeBlocks[i] = wireBlock{
			Day:       string(b.Day),
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
			Subject:   b.Subject,
			Classroom: b.Classroom,
			Grade:     b.Grade,
			Section:   b.Section,
			Notes:     b.Notes,
		}
	}
	return w
}

func (b wireBlock) toEntity() entity.TimeBlock {
	return entity.TimeBlock{
		Day:       constants.Day(b.Day),
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Subject:   b.Subject,
		Classroom: b.Classroom,
		Grade:     b.Grade,
		Section:   b.Section,
		Notes:     b.Notes,
	}
}
