package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-canvas-live/canvas-agent/internal/agent"
	pkgconfig "github.com/weiawesome/wes-canvas-live/pkg/config"
	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// globalFlags are shared by every command that joins a room.
type globalFlags struct {
	url        string
	contentURL string
	token      string
	room       string
	kind       string
	logLevel   string
	joinWait   time.Duration
}

func main() {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "canvas-agent",
		Short: "Join a canvas room from the terminal",
		Long: `canvas-agent is a headless participant of a collaborative canvas.

It joins a room through realtime-service, mirrors presence and signals,
and reads and writes content through content-service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			pkglog.Init(pkglog.Config{
				Level:       g.logLevel,
				Pretty:      true,
				ServiceName: "canvas-agent",
			})
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.url, "url", pkgconfig.GetEnv("CANVAS_URL", "ws://localhost:8090/ws"), "realtime-service websocket URL")
	rootCmd.PersistentFlags().StringVar(&g.contentURL, "content-url", pkgconfig.GetEnv("CANVAS_CONTENT_URL", "http://localhost:8091"), "content-service base URL")
	rootCmd.PersistentFlags().StringVar(&g.token, "token", os.Getenv("CANVAS_TOKEN"), "room credential (see the token command)")
	rootCmd.PersistentFlags().StringVarP(&g.room, "room", "r", os.Getenv("CANVAS_ROOM"), "room id")
	rootCmd.PersistentFlags().StringVar(&g.kind, "kind", pkgconfig.GetEnv("CANVAS_ROOM_KIND", string(protocol.RoomKindBoard)), "room kind: board or document")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", pkgconfig.GetEnv("LOG_LEVEL", "info"), "log level")
	rootCmd.PersistentFlags().DurationVar(&g.joinWait, "join-timeout", 10*time.Second, "how long to wait for the room to answer the join")

	rootCmd.AddCommand(
		tokenCmd(),
		watchCmd(g),
		cursorCmd(g),
		noteCmd(g),
		docCmd(g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// join opens an agent and waits until the room answered.
func (g *globalFlags) join(ctx context.Context) (*agent.Agent, error) {
	kind := protocol.RoomKind(g.kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown room kind %q", g.kind)
	}

	a, err := agent.Open(ctx, agent.Options{
		URL:        g.url,
		ContentURL: g.contentURL,
		Token:      g.token,
		RoomID:     g.room,
		RoomKind:   kind,
	})
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.joinWait)
	defer cancel()
	if err := a.WaitJoined(waitCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
