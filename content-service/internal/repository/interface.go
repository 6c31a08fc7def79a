package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentConflict = errors.New("document was modified by another writer")
	ErrItemNotFound     = errors.New("item not found")
)

// DocumentWrite is a guarded document write.
type DocumentWrite struct {
	RoomID  string
	Content string
	UserID  string
	// Known is the last-modified timestamp the writer holds.
	Known time.Time
	// Tolerance is how far the stored timestamp may be ahead of Known.
	Tolerance time.Duration
	// Now becomes the new last-modified timestamp.
	Now time.Time
}

// DocumentRepository defines the interface for document persistence.
type DocumentRepository interface {
	Get(ctx context.Context, roomID string) (*protocol.Document, error)
	// Save applies w unless the stored document moved on. On conflict it
	// returns the stored document together with ErrDocumentConflict.
	Save(ctx context.Context, w DocumentWrite) (*protocol.Document, error)
}

// ItemRepository defines the interface for board item persistence.
type ItemRepository interface {
	List(ctx context.Context, boardID string) ([]protocol.Item, error)
	Get(ctx context.Context, boardID, itemID string) (*protocol.Item, error)
	// Save overwrites the item. created reports whether it did not exist.
	Save(ctx context.Context, item *protocol.Item, userID string) (created bool, err error)
	// Delete removes the item and returns what was stored.
	Delete(ctx context.Context, boardID, itemID string) (*protocol.Item, error)
}
