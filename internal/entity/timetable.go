package entity

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// TimeBlock is one scheduled entry of a timetable.
type TimeBlock struct {
	Day              constants.Day `json:"day"`
	StartTime        string        `json:"start_time"`
	EndTime          string        `json:"end_time"`
	Subject          string        `json:"subject"`
	Classroom        string        `json:"classroom"`
	Grade            string        `json:"grade"`
	Section          string        `json:"section"`
	Notes            string        `json:"notes"`
	Confidence       float64       `json:"confidence"`
	ConflictAccepted bool          `json:"conflict_accepted,omitempty"`
}

// Key identifies a block for exact-duplicate collapsing.
func (b TimeBlock) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", b.Day, b.StartTime, b.EndTime, strings.ToLower(b.Subject))
}

// StartMinutes returns the start as minutes since midnight.
func (b TimeBlock) StartMinutes() (int, error) {
	return constants.MinutesSinceMidnight(b.StartTime)
}

// EndMinutes returns the end as minutes since midnight.
func (b TimeBlock) EndMinutes() (int, error) {
	return constants.MinutesSinceMidnight(b.EndTime)
}

// Duration returns end minus start in minutes, 0 when either time is malformed.
func (b TimeBlock) Duration() int {
	s, err1 := b.StartMinutes()
	e, err2 := b.EndMinutes()
	if err1 != nil || err2 != nil || e <= s {
		return 0
	}
	return e - s
}

// String renders a compact human-readable label used in logs and reasons.
func (b TimeBlock) String() string {
	s := fmt.Sprintf("%s %s-%s %s", b.Day, b.StartTime, b.EndTime, b.Subject)
	if b.Classroom != "" {
		s += " (" + b.Classroom + ")"
	}
	return s
}

// TimetableDocument is the structured result of one extraction job.
type TimetableDocument struct {
	TeacherName      string      `json:"teacher_name"`
	TimeBlocks       []TimeBlock `json:"time_blocks"`
	AcademicYear     string      `json:"academic_year"`
	Semester         string      `json:"semester"`
	Confidence       float64     `json:"confidence"`
	SourceConfidence float64     `json:"source_confidence,omitempty"` // acquisition confidence
	Method           string      `json:"method,omitempty"`
	Refined          bool        `json:"refined,omitempty"`
	Warnings         []string    `json:"warnings,omitempty"`
}

// Clone deep-copies the document.
func (d *TimetableDocument) Clone() *TimetableDocument {
	if d == nil {
		return nil
	}
	cp := *d
	cp.TimeBlocks = append([]TimeBlock(nil), d.TimeBlocks...)
	cp.Warnings = append([]string(nil), d.Warnings...)
	return &cp
}
