package service

import (
	"context"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/hub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/kafka"
)

// RealtimeService routes frames between room participants.
type RealtimeService interface {
	// HandleJoin authenticates the client and adds it to a room.
	HandleJoin(ctx context.Context, c *hub.Client, msg protocol.JoinRoom) error

	// HandleLeave removes the client from a room.
	HandleLeave(ctx context.Context, c *hub.Client, roomID string) error

	// HandleSignal relays an ephemeral signal to the rest of the room.
	HandleSignal(ctx context.Context, c *hub.Client, env *protocol.Envelope) error

	// HandleStructural relays a live structural event to the rest of the room.
	HandleStructural(ctx context.Context, c *hub.Client, env *protocol.Envelope) error

	// HandlePing refreshes the client's roster entry and answers with Pong.
	HandlePing(ctx context.Context, c *hub.Client) error

	// HandleKeepAlive refreshes the client's roster entry.
	HandleKeepAlive(ctx context.Context, c *hub.Client)

	// HandleDisconnect handles a client disconnecting.
	HandleDisconnect(ctx context.Context, c *hub.Client) error

	// GetPresence returns the roster of a room.
	GetPresence(ctx context.Context, roomID string) ([]protocol.Participant, error)

	// HandleContentEvent fans a persisted change out to the room.
	HandleContentEvent(ctx context.Context, event *kafka.ContentEvent) error
}

// Observer receives service-level counters. Implemented by the metrics package.
type Observer interface {
	JoinObserved(result string)
	FrameRelayed(category string)
	ContentEventObserved(eventType string)
}

type nopObserver struct{}

func (nopObserver) JoinObserved(string)         {}
func (nopObserver) FrameRelayed(string)         {}
func (nopObserver) ContentEventObserved(string) {}

// Join results reported to the Observer.
const (
	JoinOK           = "ok"
	JoinUnauthorized = "unauthorized"
	JoinRejected     = "rejected"
	JoinFailed       = "error"
)
