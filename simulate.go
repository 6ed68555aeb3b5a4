package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/clip"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/config"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/playback"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
	"github.com/spf13/cobra"
)

var (
	simThreshold float64
	simConfirm   int
	simTick      time.Duration
	simJSON      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <file>",
	Short: "Replay an audio file through the debouncer and print the switch decisions",
	Long: "Decodes a WAV, MP3 or OGG Vorbis file into one peak per tick and feeds it\n" +
		"through the playback debouncer on a virtual clock. No switch is called.",
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Float64Var(&simThreshold, "threshold", config.DefaultThreshold, "Linear peak counted as playing (0..1)")
	simulateCmd.Flags().IntVar(&simConfirm, "confirm", config.DefaultSilenceDelaySeconds, "Consecutive silent ticks before switching off")
	simulateCmd.Flags().DurationVar(&simTick, "tick", time.Second, "Sampling tick")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print the result as JSON")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simThreshold <= 0 || simThreshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %g", simThreshold)
	}
	if simConfirm < 0 {
		return fmt.Errorf("confirm must not be negative, got %d", simConfirm)
	}

	env, err := clip.Load(args[0], simTick)
	if err != nil {
		return util.WrapError("load clip", err)
	}

	res, err := clip.Simulate(cmd.Context(), env, simThreshold, simConfirm)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if simJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printSimulation(out, env, &res)
}

// printSimulation writes a transition table followed by a summary.
func printSimulation(out io.Writer, env *clip.Envelope, res *clip.Result) error {
	fmt.Fprintf(out, "%s, %d Hz, %d channels, %s in %d ticks of %s\n\n",
		env.Format, env.SampleRate, env.Channels, env.Duration.Round(time.Millisecond), res.Ticks, env.Tick)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tPEAK\tFROM\tTO\tACTION")
	for _, tr := range res.Transitions {
		action := "-"
		if tr.Action != playback.ActionNone {
			action = tr.Action.String()
		}
		fmt.Fprintf(tw, "%s\t%.4f\t%s\t%s\t%s\n", formatOffset(tr.Offset), tr.Peak, tr.From, tr.To, action)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nswitched on %d times, off %d times, speakers on for %s, final state %s\n",
		res.SwitchOns, res.SwitchOffs, util.FormatDuration(res.OnTime), res.FinalState)
	return nil
}

// formatOffset renders d as mm:ss.mmm.
func formatOffset(d time.Duration) string {
	d = d.Round(time.Millisecond)
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d.%03d", m, s, d/time.Millisecond)
}
