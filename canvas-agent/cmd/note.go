package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func noteCmd(g *globalFlags) *cobra.Command {
	var id, title, body string

	cmd := &cobra.Command{
		Use:   "note",
		Short: "Create or edit a note on a board",
		Long: `Edit a note the way an interactive client does: claim focus,
type, leave edit mode, release focus. Creates the note if it does
not exist.

Examples:
  canvas-agent note --room board-1 --id n1 --title "Standup"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return errors.New("--id is required")
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := g.join(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			item, err := a.EditNote(ctx, id, title, body)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s saved at %s\n", item.Type, item.ID, item.UpdatedAt.Format("15:04:05.000"))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "item id")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&body, "body", "", "new body")

	return cmd
}
