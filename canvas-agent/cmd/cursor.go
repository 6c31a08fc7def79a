package main

import (
	"time"

	"github.com/spf13/cobra"
)

func cursorCmd(g *globalFlags) *cobra.Command {
	var (
		x, y, step float64
		count      int
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Join a room and move a cursor across the canvas",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := g.join(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Cursor(ctx, x, y, step, count, interval)
		},
	}

	cmd.Flags().Float64Var(&x, "x", 0, "start x")
	cmd.Flags().Float64Var(&y, "y", 0, "start y")
	cmd.Flags().Float64Var(&step, "step", 20, "x distance between samples")
	cmd.Flags().IntVar(&count, "count", 10, "number of samples")
	cmd.Flags().DurationVar(&interval, "interval", 50*time.Millisecond, "delay between samples")

	return cmd
}
