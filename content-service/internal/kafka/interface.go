package kafka

import (
	"context"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// ContentEvent is published after every persisted write. realtime-service
// turns it into a structural frame for the room.
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

// ContentEventProducer defines the interface for producing content events.
type ContentEventProducer interface {
	ProduceItemSaved(ctx context.Context, item *protocol.Item, userID string, created bool) error
	ProduceItemDeleted(ctx context.Context, item *protocol.Item, userID string) error
	ProduceDocumentSaved(ctx context.Context, doc *protocol.Document, userID string) error
	Close() error
}

// NewItemSavedEvent builds the event for an upserted item.
func NewItemSavedEvent(item *protocol.Item, userID string, created bool) *ContentEvent {
	eventType := EventItemUpdated
	if created {
		eventType = EventItemCreated
	}
	return &ContentEvent{
		Type:      eventType,
		RoomID:    item.BoardID,
		ItemType:  item.Type,
		ItemID:    item.ID,
		UserID:    userID,
		Item:      item,
		Timestamp: item.UpdatedAt,
	}
}

// NewItemDeletedEvent builds the event for a removed item. The item
// itself is not carried.
func NewItemDeletedEvent(item *protocol.Item, userID string) *ContentEvent {
	return &ContentEvent{
		Type:      EventItemDeleted,
		RoomID:    item.BoardID,
		ItemType:  item.Type,
		ItemID:    item.ID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

// NewDocumentSavedEvent builds the payload-less hint for a document write.
func NewDocumentSavedEvent(doc *protocol.Document, userID string) *ContentEvent {
	return &ContentEvent{
		Type:      EventDocumentSaved,
		RoomID:    doc.RoomID,
		ItemType:  protocol.ItemDocument,
		ItemID:    doc.RoomID,
		UserID:    userID,
		Timestamp: doc.LastModified,
	}
}
