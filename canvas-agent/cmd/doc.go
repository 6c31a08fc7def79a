package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-canvas-live/pkg/collab"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

func docCmd(g *globalFlags) *cobra.Command {
	var content string

	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Overwrite the content of a document room",
		Long: `Load a document room and save new content. Use "-" to read the
content from stdin. A concurrent write by someone else is reported
as a conflict and nothing is written.

Examples:
  canvas-agent doc --room doc-1 --content "hello"
  cat notes.md | canvas-agent doc --room doc-1 --content -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if content == "-" {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
				content = string(raw)
			}

			g.kind = string(protocol.RoomKindDocument)
			ctx, stop := signalContext()
			defer stop()

			a, err := g.join(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.SaveDocument(ctx, content)
			if errors.Is(err, collab.ErrConflict) {
				return fmt.Errorf("document changed while it was being written, run again to overwrite the new version")
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s saved at %s\n", doc.RoomID, doc.LastModified.Format("15:04:05.000"))
			return nil
		},
	}

	cmd.Flags().StringVar(&content, "content", "", "new content, - for stdin")

	return cmd
}
