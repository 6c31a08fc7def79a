package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// Event is the unit carried between realtime instances. Payload is an
// already encoded websocket frame that every instance delivers verbatim.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Origin    string          `json:"origin,omitempty"`
	Exclude   string          `json:"exclude,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewFrameEvent wraps frame for fan-out to roomID. exclude names the
// sending client, which is only meaningful on the origin instance.
func NewFrameEvent(roomID, origin, exclude string, frame []byte) *Event {
	return &Event{
		ID:        protocol.NewEventID(),
		Type:      EventRoomFrame,
		RoomID:    roomID,
		Origin:    origin,
		Exclude:   exclude,
		Payload:   frame,
		Timestamp: time.Now().UTC(),
	}
}

// SkipFor reports the client to leave out when instanceID delivers e.
func (e *Event) SkipFor(instanceID string) string {
	if e.Origin != "" && e.Origin == instanceID {
		return e.Exclude
	}
	return ""
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber channels are closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
	Unsubscribe(ctx context.Context, channel string) error
}

// PubSub is implemented by the memory, redis and kafka drivers.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
