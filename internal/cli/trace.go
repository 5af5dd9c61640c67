package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/tracecap/internal/annotate"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Type      string // optional - filter to one event type
	Simulated string // "", "only", "none"
}

// TraceEvent is a single timeline event in trace output.
type TraceEvent struct {
	Frame     int     `json:"frame"`
	TimeNs    uint64  `json:"time_ns"`
	Simulated bool    `json:"simulated"`
	Type      string  `json:"type"`
	Key       string  `json:"key,omitempty"`
	Button    string  `json:"button,omitempty"`
	Pressed   bool    `json:"pressed,omitempty"`
	Axis      string  `json:"axis,omitempty"`
	Value     float32 `json:"value,omitempty"`
	Vec       string  `json:"vec,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	SessionID string       `json:"session_id"`
	Events    []TraceEvent `json:"events"`
	Stats     TraceStats   `json:"stats"`
}

// TraceStats summarizes the trace.
type TraceStats struct {
	TotalEvents     int `json:"total_events"`
	SimulatedEvents int `json:"simulated_events"`
	Frames          int `json:"frames"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <annotation.json>",
		Short: "Dump the raw input timeline of a saved artifact",
		Long: `Dump the raw input timeline of a saved artifact.

Prints every device event from every frame in time order with its
start-relative timestamp, frame index, and provenance (simulated
events came from the model, the rest from the human).

Examples:
  tracecap trace captures/0190.../annotation.json
  tracecap trace annotation.json --type key
  tracecap trace annotation.json --simulated only --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "filter to one event type (key, mouse_button, mouse_move, ...)")
	cmd.Flags().StringVar(&opts.Simulated, "simulated", "", "filter by provenance: 'only' or 'none'")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command, artifactPath string) error {
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

	result := TraceResult{SessionID: artifact.Metadata.SessionID}
	result.Stats.Frames = len(artifact.Frames)
	for i, frame := range artifact.Frames {
		for _, ev := range frame.InputEvents {
			if opts.Type != "" && ev.Type != opts.Type {
				continue
			}
			if opts.Simulated == "only" && !ev.Simulated {
				continue
			}
			if opts.Simulated == "none" && ev.Simulated {
				continue
			}
			te := TraceEvent{
				Frame:     i,
				TimeNs:    ev.TimeNs,
				Simulated: ev.Simulated,
				Type:      ev.Type,
				Key:       ev.Key,
				Button:    ev.Button,
				Pressed:   ev.Pressed,
				Axis:      ev.Axis,
				Value:     ev.Value,
			}
			if ev.Vec != nil {
				te.Vec = ev.Vec.String()
			}
			result.Events = append(result.Events, te)
			result.Stats.TotalEvents++
			if ev.Simulated {
				result.Stats.SimulatedEvents++
			}
		}
	}

	// Frame order already implies time order within a frame's slice,
	// but the cross-frame boundary workaround can leave the first
	// event slightly out of place. Sort to be safe.
	sort.SliceStable(result.Events, func(a, b int) bool {
		return result.Events[a].TimeNs < result.Events[b].TimeNs
	})

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "session %s: %d events over %d frames (%d simulated)\n",
		result.SessionID, result.Stats.TotalEvents, result.Stats.Frames, result.Stats.SimulatedEvents)
	for _, ev := range result.Events {
		fmt.Fprintf(formatter.Writer, "  %12dns f%-4d %s%s\n", ev.TimeNs, ev.Frame, provenanceMark(ev.Simulated), describeEvent(ev))
	}
	return nil
}

func provenanceMark(simulated bool) string {
	if simulated {
		return "[sim] "
	}
	return ""
}

func describeEvent(ev TraceEvent) string {
	switch {
	case ev.Key != "":
		return fmt.Sprintf("%s %s pressed=%v", ev.Type, ev.Key, ev.Pressed)
	case ev.Button != "":
		return fmt.Sprintf("%s %s pressed=%v", ev.Type, ev.Button, ev.Pressed)
	case ev.Axis != "":
		return fmt.Sprintf("%s %s value=%.3f", ev.Type, ev.Axis, ev.Value)
	case ev.Vec != "":
		return fmt.Sprintf("%s %s", ev.Type, ev.Vec)
	default:
		return ev.Type
	}
}
