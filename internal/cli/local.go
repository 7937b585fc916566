package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/pipeline"
)

var (
	mediaTypeFlag string
	showInsights  bool
	showText      bool
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Run the full pipeline on a file and print the timetable as JSON",
	Long: `Run acquisition, structuring, semantic validation and refinement in-process.
Nothing is persisted.

Examples:
  timetable extract week.pdf
  timetable extract photo.heic --insights
  timetable extract schedule.xlsx --type DOCUMENT`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var acquireCmd = &cobra.Command{
	Use:   "acquire FILE",
	Short: "Run only text acquisition and print the method, confidence and text",
	Args:  cobra.ExactArgs(1),
	RunE:  runAcquire,
}

func init() {
	for _, c := range []*cobra.Command{extractCmd, acquireCmd} {
		c.Flags().StringVarP(&mediaTypeFlag, "type", "t", "", "media type: IMAGE, PDF, DOCUMENT or a MIME type (default: from extension)")
	}
	extractCmd.Flags().BoolVar(&showInsights, "insights", false, "include the semantic report")
	acquireCmd.Flags().BoolVar(&showText, "text", true, "print the acquired text")
}

func resolveMediaType(path, flag string) (constants.MediaType, error) {
	if flag == "" {
		if mt := constants.MapExtToFormat(filepath.Ext(path)); mt != "" {
			return mt, nil
		}
		return "", fmt.Errorf("cannot infer media type of %s; pass --type", filepath.Base(path))
	}
	mt, ok := constants.ParseMediaType(flag)
	if !ok {
		return "", fmt.Errorf("unknown media type %q", flag)
	}
	return mt, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]
	mt, err := resolveMediaType(path, mediaTypeFlag)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector()
	stages, err := pipeline.FromConfig(ctx, cfg, nil, collector, logger)
	if err != nil {
		return err
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}

	job := &entity.ExtractionJob{ID: uuid.NewString(), FilePath: path, MediaType: mt, Size: st.Size(),
		OriginalFilename: filepath.Base(path)}
	out, err := stages.Processor.Process(ctx, job, func(p int) { logger.Debug("progress", "percent", p) })
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if showInsights {
		return printJSON(cmd.OutOrStdout(), map[string]any{"document": out.Document, "insights": out.Insights})
	}
	return printJSON(cmd.OutOrStdout(), out.Document)
}

func runAcquire(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]
	mt, err := resolveMediaType(path, mediaTypeFlag)
	if err != nil {
		return err
	}
	stages, err := pipeline.FromConfig(ctx, cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	res, err := stages.Selector.Acquire(ctx, path, mt)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "method:     %s\nconfidence: %.1f\npages:      %d\ndensity:    %.1f\n",
		res.Method, res.Confidence, res.Pages, res.Density)
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning:    %s\n", warn)
	}
	if showText {
		fmt.Fprintf(w, "\n%s\n", res.Text)
	}
	return nil
}
