package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracecap/internal/capture"
	"github.com/roach88/tracecap/internal/check"
	"github.com/roach88/tracecap/internal/config"
	"github.com/roach88/tracecap/internal/report"
	"github.com/roach88/tracecap/internal/session"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	ConfigPath string
	Task       string
	Duration   time.Duration
	OutputDir  string
}

// RecordResult is the record command's output payload.
type RecordResult struct {
	SessionID    string          `json:"session_id"`
	ArtifactPath string          `json:"artifact_path"`
	FrameCount   int             `json:"frame_count"`
	Duration     string          `json:"duration"`
	Findings     []check.Finding `json:"findings"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an input capture session",
		Long: `Record an input capture session.

Samples the aggregate input state once per frame interval, builds the
per-frame annotation artifact, and runs the consistency checker when
the session ends. Stop with Ctrl-C or let --duration elapse.

Examples:
  tracecap record --task "open settings"
  tracecap record --config capture.yaml --duration 30s
  tracecap record --duration 10s --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (optional)")
	cmd.Flags().StringVar(&opts.Task, "task", "", "task label recorded in the artifact")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop automatically after this long (0 = run until interrupted)")
	cmd.Flags().StringVar(&opts.OutputDir, "output", "", "override the configured output directory")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}

	store, err := report.Open(cfg.Database())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open findings database", err)
	}
	defer store.Close()

	pipeline := capture.NewTickerPipeline(cfg.TargetFPS, opts.Duration)
	engine := session.Wire(session.Options{
		Config:   cfg,
		Pipeline: pipeline,
		Store:    store,
	})
	defer engine.Close()

	// Ctrl-C ends the session cleanly instead of killing the process.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		<-interrupts
		_ = engine.Stop()
	}()

	formatter.VerboseLog("recording at %.0f fps into %s", cfg.TargetFPS, cfg.OutputDir)

	result, err := engine.Run(opts.Task)
	if err != nil {
		return WrapExitError(ExitCommandError, "recording failed", err)
	}

	payload := RecordResult{
		SessionID:    result.SessionID.String(),
		ArtifactPath: result.ArtifactPath,
		FrameCount:   result.Stats.FrameCount,
		Duration:     result.Stats.Elapsed.String(),
		Findings:     result.Findings,
	}

	if opts.Format == "json" {
		if err := formatter.Success(payload); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "session %s: %d frames in %s\n",
			payload.SessionID, payload.FrameCount, payload.Duration)
		fmt.Fprintf(formatter.Writer, "artifact: %s\n", payload.ArtifactPath)
		printFindings(formatter, result.Findings)
	}

	if len(check.Errors(result.Findings)) > 0 {
		return NewExitError(ExitFailure, "consistency check reported errors")
	}
	return nil
}

func printFindings(formatter *OutputFormatter, findings []check.Finding) {
	if len(findings) == 0 {
		fmt.Fprintln(formatter.Writer, "consistency check: clean")
		return
	}
	fmt.Fprintf(formatter.Writer, "consistency check: %d finding(s)\n", len(findings))
	for _, f := range findings {
		fmt.Fprintf(formatter.Writer, "  %s\n", f.String())
	}
}
