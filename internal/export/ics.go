package export

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

const productID = "-//timetable-extractor//EN"

// ICSOptions anchors the weekly events. WeekOf may be any day of the first week;
// it defaults to the current week. Weeks <= 0 repeats without end.
type ICSOptions struct {
	JobID    string
	WeekOf   time.Time
	Location *time.Location
	Weeks    int
}

// ICS renders one weekly recurring event per entry.
func ICS(doc *entity.TimetableDocument, opts ICSOptions) (string, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	anchor := opts.WeekOf
	if anchor.IsZero() {
		anchor = time.Now()
	}
	monday := weekStart(anchor.In(loc))

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if doc.TeacherName != "" {
		cal.SetXWRCalName(doc.TeacherName + " timetable")
	}

	rule := "FREQ=WEEKLY"
	if opts.Weeks > 0 {
		rule += fmt.Sprintf(";COUNT=%d", opts.Weeks)
	}
	stamp := time.Now().UTC()
	for i, b := range doc.TimeBlocks {
		start, end, err := blockTimes(monday, b)
		if err != nil {
			return "", fmt.Errorf("entry %d: %w", i, err)
		}
		uid := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s|%d|%s", opts.JobID, i, b.Key()))).String()

		ev := cal.AddEvent(uid + "@timetable-extractor")
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary(b.Subject)
		if b.Classroom != "" {
			ev.SetLocation(b.Classroom)
		}
		if desc := describe(doc, b); desc != "" {
			ev.SetDescription(desc)
		}
		ev.AddProperty(ics.ComponentPropertyRrule, rule)
	}
	return cal.Serialize(), nil
}

func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

func blockTimes(monday time.Time, b entity.TimeBlock) (time.Time, time.Time, error) {
	if !b.Day.Valid() {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid day %q", b.Day)
	}
	s, err := constants.MinutesSinceMidnight(b.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := constants.MinutesSinceMidnight(b.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day := monday.AddDate(0, 0, b.Day.Index())
	return day.Add(time.Duration(s) * time.Minute), day.Add(time.Duration(e) * time.Minute), nil
}

func describe(doc *entity.TimetableDocument, b entity.TimeBlock) string {
	var parts []string
	if doc.TeacherName != "" {
		parts = append(parts, "Teacher: "+doc.TeacherName)
	}
	if b.Grade != "" || b.Section != "" {
		parts = append(parts, "Class: "+strings.TrimSpace(b.Grade+" "+b.Section))
	}
	if b.Notes != "" {
		parts = append(parts, b.Notes)
	}
	return strings.Join(parts, "\n")
}
