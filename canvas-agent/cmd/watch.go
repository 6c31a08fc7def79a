package main

import (
	"time"

	"github.com/spf13/cobra"
)

func watchCmd(g *globalFlags) *cobra.Command {
	var render time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a room and log what happens in it",
		Long: `Join a room and log presence, cursors, focus and item positions
until interrupted. Reconnects with the default schedule when the
connection drops.

Examples:
  canvas-agent watch --room board-1
  canvas-agent watch --room board-1 --render 250ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := g.join(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Watch(ctx, render)
		},
	}

	cmd.Flags().DurationVar(&render, "render", 0, "print item positions at this interval when they change")

	return cmd
}
