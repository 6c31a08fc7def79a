package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// ContentCacheResult is what a cache entry holds: a document snapshot or
// a board listing.
type ContentCacheResult struct {
	Document *protocol.Document `json:"document,omitempty"`
	Items    []protocol.Item    `json:"items,omitempty"`
}

type ContentCache interface {
	Get(ctx context.Context, key string) (*ContentCacheResult, error)
	Set(ctx context.Context, key string, result *ContentCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildDocumentKey(roomID string) string
	BuildBoardKey(boardID string) string
	Close() error
}
