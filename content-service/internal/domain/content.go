package domain

import (
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// SaveDocumentRequest represents the request body for writing a document.
// LastModified is the timestamp the writer last loaded or saved.
type SaveDocumentRequest struct {
	Content      string    `json:"content"`
	LastModified time.Time `json:"last_modified"`
}

// SaveItemRequest represents the request body for writing an item.
// Path parameters win over the id and board_id in the body.
type SaveItemRequest struct {
	ID      string            `json:"id"`
	BoardID string            `json:"board_id"`
	Type    protocol.ItemType `json:"type" binding:"required"`
	protocol.ItemFields
}

// ToItem builds the item addressed by boardID and itemID.
func (r *SaveItemRequest) ToItem(boardID, itemID string) protocol.Item {
	return protocol.Item{
		ID:         itemID,
		BoardID:    boardID,
		Type:       r.Type,
		ItemFields: r.ItemFields,
	}
}
