package kafka

import (
	"context"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// ContentEvent is published by content-service after a persisted write.
type ContentEvent struct {
	Type      string            `json:"type"` // item_created | item_updated | item_deleted | document_saved
	RoomID    string            `json:"room_id"`
	ItemType  protocol.ItemType `json:"item_type,omitempty"`
	ItemID    string            `json:"item_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Item      *protocol.Item    `json:"item,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Event types
const (
	EventItemCreated   = "item_created"
	EventItemUpdated   = "item_updated"
	EventItemDeleted   = "item_deleted"
	EventDocumentSaved = "document_saved"
)

// ContentEventHandler handles incoming content events.
type ContentEventHandler interface {
	HandleContentEvent(ctx context.Context, event *ContentEvent) error
}

// ContentEventConsumer defines the interface for consuming content events.
type ContentEventConsumer interface {
	Start(ctx context.Context) error
	Close() error
}
