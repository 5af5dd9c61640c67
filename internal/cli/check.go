package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/tracecap/internal/annotate"
	"github.com/roach88/tracecap/internal/check"
	"github.com/roach88/tracecap/internal/input"
	"github.com/roach88/tracecap/internal/report"
)

func hotkeySet(names []string) input.KeySet {
	keys := make([]input.Keycode, len(names))
	for i, n := range names {
		keys[i] = input.Keycode(n)
	}
	return input.NewKeySet(keys...)
}

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	VideoFrames   int
	VideoFPS      float64
	VideoDuration time.Duration
	Database      string
	Hotkeys       []string
	Suppress      int
}

// CheckResult is the check command's output payload.
type CheckResult struct {
	SessionID  string          `json:"session_id"`
	FrameCount int             `json:"frame_count"`
	Findings   []check.Finding `json:"findings"`
	ErrorCount int             `json:"error_count"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <annotation.json>",
		Short: "Re-run the consistency checker over a saved artifact",
		Long: `Re-run the consistency checker over a saved artifact.

The artifact carries the session facts the checker needs (frame rate,
encoder frame count, wall duration). Pass the independently measured
video file facts with the --video-* flags; without them the encoder's
own numbers are used and only the input-replay checks are meaningful.

Examples:
  tracecap check captures/0190.../annotation.json
  tracecap check annotation.json --video-frames 118 --video-fps 19.6 --video-duration 6s
  tracecap check annotation.json --db findings.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.VideoFrames, "video-frames", 0, "decoded frame count of the video file")
	cmd.Flags().Float64Var(&opts.VideoFPS, "video-fps", 0, "measured average fps of the video file")
	cmd.Flags().DurationVar(&opts.VideoDuration, "video-duration", 0, "container duration of the video file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "persist findings to this SQLite database")
	cmd.Flags().StringSliceVar(&opts.Hotkeys, "hotkey", nil, "keycode to exclude from the key replay (repeatable)")
	cmd.Flags().IntVar(&opts.Suppress, "suppress-window", 5, "frames after a model-control toggle with suppressed system-space checks")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command, artifactPath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	artifact, err := annotate.Load(artifactPath)
	if err != nil {
		if opts.Format == "json" {
			_ = formatter.Error("artifact_unreadable", "failed to load artifact", err.Error())
		}
		return WrapExitError(ExitCommandError, "failed to load artifact", err)
	}
	frames, err := annotate.FramesFromArtifact(artifact)
	if err != nil {
		if opts.Format == "json" {
			_ = formatter.Error("artifact_malformed", "failed to reconstruct frames", err.Error())
		}
		return WrapExitError(ExitCommandError, "failed to reconstruct frames", err)
	}

	meta := artifact.Metadata
	cfg := check.DefaultConfig(meta.TargetFPS, hotkeySet(opts.Hotkeys))
	cfg.SuppressWindow = opts.Suppress

	wall := time.Duration(meta.WallDurationNs)
	video := check.VideoStats{
		FrameCount: opts.VideoFrames,
		FPS:        opts.VideoFPS,
		Duration:   opts.VideoDuration,
	}
	// Fall back to the encoder's own facts for anything not measured
	// independently.
	if video.FrameCount == 0 {
		video.FrameCount = meta.EncoderFrames
	}
	if video.Duration == 0 {
		video.Duration = wall
	}
	if video.FPS == 0 && video.Duration > 0 {
		video.FPS = float64(video.FrameCount) / video.Duration.Seconds()
	}

	findings := check.Run(cfg, check.Input{
		Frames:        frames,
		Video:         video,
		EncoderFrames: meta.EncoderFrames,
		WallDuration:  wall,
		StartTime:     time.Unix(0, meta.StartTimeUnixNs),
	})

	if opts.Database != "" {
		if err := persistFindings(opts.Database, meta, wall, findings); err != nil {
			return WrapExitError(ExitCommandError, "failed to persist findings", err)
		}
	}

	errCount := len(check.Errors(findings))
	payload := CheckResult{
		SessionID:  meta.SessionID,
		FrameCount: len(frames),
		Findings:   findings,
		ErrorCount: errCount,
	}

	if opts.Format == "json" {
		if err := formatter.Success(payload); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "session %s: %d frames\n", payload.SessionID, payload.FrameCount)
		printFindings(formatter, findings)
	}

	if errCount > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d consistency error(s)", errCount))
	}
	return nil
}

func persistFindings(dbPath string, meta annotate.Metadata, wall time.Duration, findings []check.Finding) error {
	sessionID, err := uuid.Parse(meta.SessionID)
	if err != nil {
		return fmt.Errorf("artifact session id: %w", err)
	}
	store, err := report.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	rec := report.SessionRecord{
		ID:         sessionID,
		StartedAt:  time.Unix(0, meta.StartTimeUnixNs),
		Duration:   wall,
		Env:        meta.Env,
		User:       meta.User,
		Task:       meta.Task,
		TargetFPS:  meta.TargetFPS,
		FrameCount: meta.EncoderFrames,
		AppVersion: meta.AppVersion,
	}
	if err := store.WriteSession(ctx, rec); err != nil {
		return err
	}
	return store.WriteFindings(ctx, sessionID, findings)
}
