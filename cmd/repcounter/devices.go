package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/repcounter/internal/capture"
)

func newDevicesCmd(_ *cli) *cobra.Command {
	var max int

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List cameras that deliver frames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			devices := capture.Probe(max)
			if len(devices) == 0 {
				fmt.Fprintln(out, "no cameras found")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintf(out, "camera %d  %dx%d\n", d.ID, d.Width, d.Height)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&max, "max", 4, "number of device ids to try")

	return cmd
}
