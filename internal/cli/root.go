// Package cli provides the command-line interface for timetable-extractor.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/server"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	addr    string

	cfg      *common.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "timetable",
	Short: "Extract structured timetables from scans, PDFs and office documents",
	Long: `timetable turns a timetable image, PDF, DOCX or XLSX file into validated
day/time/subject entries.

Local commands (extract, acquire, export) run the pipeline in-process.
Remote commands (submit, status, stats) talk to a running timetabled daemon.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = common.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		level := common.ParseLevel(cfg.Log.Level)
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = common.SetupLogger(cfg.Log.File, level)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = closeLog()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "daemon address (default: GRPC_ADDR)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
}

// dial connects to the daemon; ":8080" style addresses mean localhost.
func dial() (*server.Client, func() error, error) {
	target := addr
	if target == "" {
		target = cfg.Server.GRPCAddr
	}
	if strings.HasPrefix(target, ":") {
		target = "localhost" + target
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", target, err)
	}
	return server.NewClient(conn), conn.Close, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
