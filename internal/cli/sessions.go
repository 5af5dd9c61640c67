package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tracecap/internal/check"
	"github.com/roach88/tracecap/internal/report"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	Database string
	Findings bool
}

// SessionSummary is one session row in sessions output.
type SessionSummary struct {
	ID         string          `json:"id"`
	StartedAt  string          `json:"started_at"`
	Duration   string          `json:"duration"`
	Task       string          `json:"task"`
	FrameCount int             `json:"frame_count"`
	Findings   []check.Finding `json:"findings,omitempty"`
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions from the findings database",
		Long: `List recorded sessions from the findings database, newest first.

Examples:
  tracecap sessions --db captures/findings.db
  tracecap sessions --db captures/findings.db --findings --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Findings, "findings", false, "include each session's findings")

	return cmd
}

func runSessions(opts *SessionsOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	store, err := report.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()

	ctx := context.Background()
	records, err := store.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	summaries := make([]SessionSummary, 0, len(records))
	for _, rec := range records {
		summary := SessionSummary{
			ID:         rec.ID.String(),
			StartedAt:  rec.StartedAt.Format("2006-01-02 15:04:05"),
			Duration:   rec.Duration.String(),
			Task:       rec.Task,
			FrameCount: rec.FrameCount,
		}
		if opts.Findings {
			findings, err := store.Findings(ctx, rec.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read findings", err)
			}
			summary.Findings = findings
		}
		summaries = append(summaries, summary)
	}

	if opts.Format == "json" {
		return formatter.Success(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "no sessions recorded")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "%s  %s  %8s  %5d frames  %s\n",
			s.ID, s.StartedAt, s.Duration, s.FrameCount, s.Task)
		for _, f := range s.Findings {
			fmt.Fprintf(formatter.Writer, "    %s\n", f.String())
		}
	}
	return nil
}
