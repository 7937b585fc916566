package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/timetable-extractor/internal/async"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

var (
	submitWait   bool
	pollInterval time.Duration
	statusAll    bool
	statusState  string
	statusLimit  int
)

var submitCmd = &cobra.Command{
	Use:   "submit FILE",
	Short: "Submit a file to the daemon and print the job id",
	Long: `Submit a file for asynchronous extraction. The path must be readable by the
daemon. With --wait the command polls until the job finishes and prints the result.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status [JOB_ID]",
	Short: "Show one job, or list recent jobs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth and per-operation timings",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	submitCmd.Flags().StringVarP(&mediaTypeFlag, "type", "t", "", "media type (default: from extension)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "wait for the job to finish")
	submitCmd.Flags().DurationVar(&pollInterval, "poll", time.Second, "poll interval with --wait")

	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "list jobs instead of showing one")
	statusCmd.Flags().StringVar(&statusState, "state", "", "filter by state: PENDING, PROCESSING, COMPLETED, FAILED")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "maximum jobs to list")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	req := async.SubmitRequest{FilePath: path, MediaType: mediaTypeFlag, OriginalFilename: filepath.Base(path)}
	if st, err := os.Stat(path); err == nil {
		req.Size = st.Size()
	}

	client, closeConn, err := dial()
	if err != nil {
		return err
	}
	defer closeConn()

	id, err := client.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if !submitWait {
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "submitted %s\n", id)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	last := -1
	for range ticker.C {
		view, err := client.Status(ctx, id)
		if err != nil {
			return err
		}
		if view.Progress != last {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %3d%% (attempt %d)\n", view.State, view.Progress, view.AttemptsMade)
			last = view.Progress
		}
		if view.State.IsTerminal() {
			if view.Error != "" {
				return fmt.Errorf("job %s failed: %s", id, view.Error)
			}
			return printJSON(cmd.OutOrStdout(), view.Result)
		}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if len(args) == 0 && !statusAll {
		return fmt.Errorf("pass a job id or --all")
	}
	client, closeConn, err := dial()
	if err != nil {
		return err
	}
	defer closeConn()

	if len(args) == 1 {
		view, err := client.Status(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), view)
	}
	jobs, err := client.List(ctx, statusState, statusLimit)
	if err != nil {
		return err
	}
	printJobs(cmd, jobs)
	return nil
}

func printJobs(cmd *cobra.Command, jobs []entity.JobStatusView) {
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tPROGRESS\tATTEMPTS\tERROR")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d%%\t%d\t%s\n", j.ID, j.State, j.Progress, j.AttemptsMade, j.Error)
	}
	w.Flush()
}

func runStats(cmd *cobra.Command, _ []string) error {
	client, closeConn, err := dial()
	if err != nil {
		return err
	}
	defer closeConn()

	st, err := client.Stats(context.Background())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "queue depth: %d\nuptime:      %s\n\n", st.QueueDepth,
		(time.Duration(st.Metrics.UptimeSeconds) * time.Second).String())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tCOUNT\tERRORS\tAVG MS\tP95 MS\tMAX MS")
	for _, op := range st.Metrics.Operations {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%d\t%d\n", op.Name, op.Count, op.Errors, op.AvgTimeMs, op.P95TimeMs, op.MaxTimeMs)
	}
	return w.Flush()
}
