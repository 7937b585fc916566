package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/timetable-extractor/internal/ingest"
)

var (
	ingestWatch      bool
	ingestSkipHidden bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest DIR",
	Short: "Submit every supported file under a directory to the daemon",
	Long: `Walk DIR recursively and submit each image, PDF, DOCX and XLSX file.
Files with identical content are submitted once. With --watch the command keeps
running and submits new files as they appear.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching for new files")
	ingestCmd.Flags().BoolVar(&ingestSkipHidden, "skip-hidden", true, "skip dot files and directories")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, closeConn, err := dial()
	if err != nil {
		return err
	}
	defer closeConn()
	ing := ingest.NewIngestor(client, logger)

	if ingestWatch {
		return ing.Run(ctx, ingest.WatchConfig{
			Roots:       args,
			InitialScan: true,
			SkipHidden:  ingestSkipHidden,
			Debounce:    cfg.Ingest.Debounce,
		})
	}

	results, stats, err := ing.IngestDirectory(ctx, args[0], ingestSkipHidden)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range results {
		switch {
		case r.Err != "":
			fmt.Fprintf(out, "FAIL  %s: %s\n", r.Path, r.Err)
		case r.Deduplicated:
			fmt.Fprintf(out, "DUP   %s -> %s\n", r.Path, r.JobID)
		default:
			fmt.Fprintf(out, "OK    %s -> %s\n", r.Path, r.JobID)
		}
	}
	fmt.Fprintf(out, "\nscanned %d, matched %d, submitted %d, duplicates %d, failed %d\n",
		stats.Scanned, stats.Matched, stats.Succeeded-stats.Deduplicated, stats.Deduplicated, stats.Failed)
	return nil
}
