package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/export"
)

var (
	exportJobID  string
	exportFormat string
	exportOutput string
	exportWeekOf string
	exportWeeks  int
)

var exportCmd = &cobra.Command{
	Use:   "export [DOC.json]",
	Short: "Render a timetable as an XLSX workbook or an iCalendar file",
	Long: `Render a timetable document, read from a JSON file or fetched from the daemon
by job id, as xlsx or ics.

Examples:
  timetable extract week.pdf > week.json && timetable export week.json -f xlsx -o week.xlsx
  timetable export --job 3f1c... -f ics --week-of 2026-09-07 --weeks 14 -o term.ics`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportJobID, "job", "", "fetch the result of a completed job from the daemon")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "output format: xlsx or ics")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportWeekOf, "week-of", "", "ics: any date in the first week, YYYY-MM-DD (default: this week)")
	exportCmd.Flags().IntVar(&exportWeeks, "weeks", 0, "ics: number of weekly repeats, 0 repeats forever")
}

func runExport(cmd *cobra.Command, args []string) error {
	if (len(args) == 1) == (exportJobID != "") {
		return fmt.Errorf("pass either a document file or --job")
	}

	var (
		doc *entity.TimetableDocument
		err error
	)
	if exportJobID != "" {
		doc, err = fetchResult(cmd.Context(), exportJobID)
	} else {
		doc, err = readDocument(args[0])
	}
	if err != nil {
		return err
	}

	data, err := render(doc, exportFormat, exportJobID)
	if err != nil {
		return err
	}
	if exportOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOutput, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d entries to %s\n", len(doc.TimeBlocks), exportOutput)
	return nil
}

func render(doc *entity.TimetableDocument, format, jobID string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "xlsx":
		return export.XLSX(doc)
	case "ics":
		opts := export.ICSOptions{JobID: jobID, WeekOf: time.Now(), Weeks: exportWeeks}
		if exportWeekOf != "" {
			t, err := time.Parse(time.DateOnly, exportWeekOf)
			if err != nil {
				return nil, fmt.Errorf("invalid --week-of: %w", err)
			}
			opts.WeekOf = t
		}
		s, err := export.ICS(doc, opts)
		return []byte(s), err
	}
	return nil, fmt.Errorf("unsupported format %q (want xlsx or ics)", format)
}

// readDocument accepts either a bare document or the {"document": ...} form printed by extract --insights.
func readDocument(path string) (*entity.TimetableDocument, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Document *entity.TimetableDocument `json:"document"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Document != nil {
		return wrapped.Document, nil
	}
	doc := new(entity.TimetableDocument)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func fetchResult(ctx context.Context, id string) (*entity.TimetableDocument, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client, closeConn, err := dial()
	if err != nil {
		return nil, err
	}
	defer closeConn()
	view, err := client.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.State != constants.JobStatusCompleted || view.Result == nil {
		return nil, fmt.Errorf("job %s is %s, no result to export", id, view.State)
	}
	return view.Result, nil
}
