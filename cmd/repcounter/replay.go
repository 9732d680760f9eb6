package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/repcounter/internal/detector"
	"github.com/ayusman/repcounter/internal/rep"
)

type replayOptions struct {
	asJSON     bool
	eventsOnly bool
	arm        string
	down       float64
	up         float64
}

func newReplayCmd(c *cli) *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Count a recorded pose sequence",
		Long: `Feed a JSON-lines pose recording through the counter and print what happens.

Each line is one sample: {"timestamp": "...", "keypoints": [{"name": "right_elbow", "x": 0.5, "y": 0.5, "score": 0.9}, ...]}
Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counter, err := c.cfg.Counter.Rep()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("arm") {
				if counter.Arm, err = rep.ArmBySide(opts.arm); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("down") {
				counter.DownThreshold = opts.down
			}
			if cmd.Flags().Changed("up") {
				counter.UpThreshold = opts.up
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			samples, err := detector.DecodeSamples(in)
			if err != nil {
				return err
			}
			return replay(cmd.OutOrStdout(), samples, counter, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print every update as a JSON line")
	cmd.Flags().BoolVar(&opts.eventsOnly, "events", false, "print phase events only")
	cmd.Flags().StringVar(&opts.arm, "arm", "right", "tracked arm: left or right")
	cmd.Flags().Float64Var(&opts.down, "down", rep.DefaultDownThreshold, "down threshold in degrees")
	cmd.Flags().Float64Var(&opts.up, "up", rep.DefaultUpThreshold, "up threshold in degrees")

	return cmd
}

func replay(w io.Writer, samples []detector.PoseSample, cfg rep.Config, opts replayOptions) error {
	session, err := rep.NewSession(cfg)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for i, sample := range samples {
		u := session.Process(sample)
		if opts.eventsOnly && u.Event == nil {
			continue
		}
		if opts.asJSON {
			if err := enc.Encode(u); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(w, formatUpdate(i+1, u))
	}

	snap := session.Snapshot()
	if !opts.asJSON {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("reps: %d", snap.RepCount))+
			dimStyle.Render(fmt.Sprintf("  (%d samples, %d skipped)", snap.Samples, snap.Skipped)))
	}
	return nil
}

func formatUpdate(n int, u rep.Update) string {
	s := u.Snapshot
	line := fmt.Sprintf("%4d  %-7s reps=%-3d", n, s.Phase, s.RepCount)
	if s.HasAngle {
		line += fmt.Sprintf(" angle=%6.1f progress=%5.1f%%", s.Angle, s.ProgressPercent)
	}
	if u.Skip != rep.SkipNone {
		line += dimStyle.Render(" skipped: " + string(u.Skip))
	}
	if u.Event != nil {
		line += "  " + eventStyle(u.Event.Kind).Render(string(u.Event.Kind))
	}
	return line
}
