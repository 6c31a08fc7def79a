package service

import (
	"context"

	"github.com/weiawesome/wes-canvas-live/content-service/internal/domain"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/kafka"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// ContentService defines the interface for board and document content.
type ContentService interface {
	GetDocument(ctx context.Context, roomID string) (*protocol.Document, error)
	// SaveDocument returns the stored document with ErrDocumentConflict
	// when the writer's baseline is stale.
	SaveDocument(ctx context.Context, userID, roomID string, req *domain.SaveDocumentRequest) (*protocol.Document, error)
	ListItems(ctx context.Context, boardID string) ([]protocol.Item, error)
	SaveItem(ctx context.Context, userID string, item protocol.Item) (*protocol.Item, error)
	DeleteItem(ctx context.Context, userID, boardID, itemID string) error
}

// Observer receives service outcomes. metrics.Metrics implements it.
type Observer interface {
	DocumentWritten(result string)
	ItemWritten(op string)
	CacheLookup(hit bool)
	EventPublished(err error)
}

// Document write results.
const (
	DocumentSaved    = "saved"
	DocumentConflict = "conflict"
)

// Item write operations.
const (
	ItemCreate = "create"
	ItemUpdate = "update"
	ItemDelete = "delete"
)

type nopObserver struct{}

func (nopObserver) DocumentWritten(string) {}
func (nopObserver) ItemWritten(string)     {}
func (nopObserver) CacheLookup(bool)       {}
func (nopObserver) EventPublished(error)   {}

var _ kafka.ContentEventProducer = nopProducer{}

// nopProducer is used when Kafka is disabled.
type nopProducer struct{}

func (nopProducer) ProduceItemSaved(context.Context, *protocol.Item, string, bool) error { return nil }
func (nopProducer) ProduceItemDeleted(context.Context, *protocol.Item, string) error     { return nil }
func (nopProducer) ProduceDocumentSaved(context.Context, *protocol.Document, string) error {
	return nil
}
func (nopProducer) Close() error { return nil }
