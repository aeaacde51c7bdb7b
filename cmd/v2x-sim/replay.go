package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"v2x-sim/internal/sink"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayTUI       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay an event journal",
	Long:  "replay feeds message and negotiation events from a JSONL journal back into GreptimeDB, STDOUT or the TUI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		writers, cleanup, err := newWriters(writerOptions{
			PrintOnly: replayPrintOnly,
			TUI:       replayTUI,
			ShowCAM:   true,
			Settings:  []sink.Setting{{Name: "Replay", Value: replayInput}},
		})
		if err != nil {
			return err
		}
		defer cleanup()
		return sink.ReplayLogFile(replayInput, writers, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to event journal")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print events to STDOUT instead of writing to DB")
	replayCmd.Flags().BoolVar(&replayTUI, "tui", false, "Show the interactive terminal monitor")
	replayCmd.MarkFlagRequired("input")
}
