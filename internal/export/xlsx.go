// Package export renders finalized timetables as spreadsheets and calendars.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

const (
	SheetEntries = "Entries"
	SheetWeek    = "Week"
)

var entryHeaders = []string{
	"Day", "Start", "End", "Subject", "Classroom", "Grade", "Section", "Notes", "Confidence", "Conflict",
}

// XLSX returns a workbook with one row per entry and a weekly grid keyed by start time.
func XLSX(doc *entity.TimetableDocument) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetEntries); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetWeek); err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return nil, err
	}

	if err := writeEntries(f, doc, header); err != nil {
		return nil, err
	}
	if err := writeWeek(f, doc, header, wrap); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntries(f *excelize.File, doc *entity.TimetableDocument, header int) error {
	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(SheetEntries, cell, v)
	}
	for i, h := range entryHeaders {
		if err := set(i+1, 1, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(entryHeaders), 1)
	if err := f.SetCellStyle(SheetEntries, "A1", last, header); err != nil {
		return err
	}

	for r, b := range doc.TimeBlocks {
		conflict := ""
		if b.ConflictAccepted {
			conflict = "yes"
		}
		values := []any{
			string(b.Day), b.StartTime, b.EndTime, b.Subject, b.Classroom, b.Grade, b.Section, b.Notes,
			b.Confidence, conflict,
		}
		for c, v := range values {
			if v == "" {
				continue
			}
			if err := set(c+1, r+2, v); err != nil {
				return err
			}
		}
	}

	_ = f.SetColWidth(SheetEntries, "A", "A", 12)
	_ = f.SetColWidth(SheetEntries, "B", "C", 8)
	_ = f.SetColWidth(SheetEntries, "D", "D", 24)
	_ = f.SetColWidth(SheetEntries, "E", "G", 12)
	_ = f.SetColWidth(SheetEntries, "H", "H", 40)
	return nil
}

// writeWeek lays entries out with days as columns and distinct start times as rows.
// Overlapping entries share a cell, one per line.
func writeWeek(f *excelize.File, doc *entity.TimetableDocument, header, wrap int) error {
	days := weekDays(doc.TimeBlocks)
	starts := map[string]struct{}{}
	cells := map[string][]string{}
	for _, b := range doc.TimeBlocks {
		starts[b.StartTime] = struct{}{}
		key := string(b.Day) + "|" + b.StartTime
		cells[key] = append(cells[key], gridLabel(b))
	}
	rows := make([]string, 0, len(starts))
	for s := range starts {
		rows = append(rows, s)
	}
	sort.Strings(rows)

	title := doc.TeacherName
	if doc.AcademicYear != "" {
		title += " " + doc.AcademicYear
	}
	if err := f.SetCellValue(SheetWeek, "A1", strings.TrimSpace(title)); err != nil {
		return err
	}
	for c, d := range days {
		cell, _ := excelize.CoordinatesToCellName(c+2, 1)
		if err := f.SetCellValue(SheetWeek, cell, d.Title()); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(days)+1, 1)
	if err := f.SetCellStyle(SheetWeek, "A1", last, header); err != nil {
		return err
	}

	for r, start := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetCellValue(SheetWeek, cell, start); err != nil {
			return err
		}
		for c, d := range days {
			labels := cells[string(d)+"|"+start]
			if len(labels) == 0 {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+2, r+2)
			if err := f.SetCellValue(SheetWeek, cell, strings.Join(labels, "\n")); err != nil {
				return err
			}
		}
	}
	if len(rows) > 0 {
		bottom, _ := excelize.CoordinatesToCellName(len(days)+1, len(rows)+1)
		if err := f.SetCellStyle(SheetWeek, "B2", bottom, wrap); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetWeek, "A", "A", 10)
	lastCol, _ := excelize.ColumnNumberToName(len(days) + 1)
	_ = f.SetColWidth(SheetWeek, "B", lastCol, 22)
	return nil
}

// weekDays is Monday to Friday plus any weekend day that has entries.
func weekDays(blocks []entity.TimeBlock) []constants.Day {
	used := map[constants.Day]bool{}
	for _, b := range blocks {
		used[b.Day] = true
	}
	out := append([]constants.Day(nil), constants.SchoolDays...)
	for _, d := range []constants.Day{constants.Saturday, constants.Sunday} {
		if used[d] {
			out = append(out, d)
		}
	}
	return out
}

func gridLabel(b entity.TimeBlock) string {
	s := fmt.Sprintf("%s (%s-%s)", b.Subject, b.StartTime, b.EndTime)
	if b.Classroom != "" {
		s += " " + b.Classroom
	}
	return s
}
