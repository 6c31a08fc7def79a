package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-canvas-live/content-service/internal/cache"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/domain"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/kafka"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/repository"
	"github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

var (
	ErrDocumentConflict = errors.New("document was modified by another writer")
	ErrItemNotFound     = errors.New("item not found")
	ErrInvalidItem      = errors.New("invalid item")
)

// Config holds the service tunables.
type Config struct {
	CacheTTL          time.Duration
	ConflictTolerance time.Duration
}

// Option configures the content service.
type Option func(*contentServiceImpl)

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *contentServiceImpl) { s.observer = o }
}

// WithProducer publishes a content event after every write.
func WithProducer(p kafka.ContentEventProducer) Option {
	return func(s *contentServiceImpl) { s.producer = p }
}

// WithClock replaces the source of last-modified timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *contentServiceImpl) { s.now = now }
}

// contentServiceImpl implements ContentService interface.
type contentServiceImpl struct {
	documents repository.DocumentRepository
	items     repository.ItemRepository
	cache     cache.ContentCache
	producer  kafka.ContentEventProducer
	observer  Observer
	sf        singleflight.Group
	cfg       Config
	now       func() time.Time
}

// NewContentService creates a new content service.
func NewContentService(
	documents repository.DocumentRepository,
	items repository.ItemRepository,
	contentCache cache.ContentCache,
	cfg Config,
	opts ...Option,
) ContentService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ConflictTolerance <= 0 {
		cfg.ConflictTolerance = time.Second
	}

	s := &contentServiceImpl{
		documents: documents,
		items:     items,
		cache:     contentCache,
		producer:  nopProducer{},
		observer:  nopObserver{},
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetDocument returns the document snapshot. A room nobody wrote yet
// yields an empty document with a zero timestamp.
func (s *contentServiceImpl) GetDocument(ctx context.Context, roomID string) (*protocol.Document, error) {
	cacheKey := s.cache.BuildDocumentKey(roomID)

	// Use singleflight to prevent duplicate requests for the same key
	result, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		return s.fetchWithCache(ctx, cacheKey, func() (*cache.ContentCacheResult, error) {
			doc, err := s.documents.Get(ctx, roomID)
			if errors.Is(err, repository.ErrDocumentNotFound) {
				doc, err = &protocol.Document{RoomID: roomID}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to get document from repository: %w", err)
			}
			return &cache.ContentCacheResult{Document: doc}, nil
		})
	})
	if err != nil {
		return nil, err
	}

	cached, ok := result.(*cache.ContentCacheResult)
	if !ok || cached.Document == nil {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	doc := *cached.Document
	return &doc, nil
}

// SaveDocument stores content if the writer's baseline is fresh enough.
func (s *contentServiceImpl) SaveDocument(ctx context.Context, userID, roomID string, req *domain.SaveDocumentRequest) (*protocol.Document, error) {
	l := log.Ctx(ctx)

	doc, err := s.documents.Save(ctx, repository.DocumentWrite{
		RoomID:    roomID,
		Content:   req.Content,
		UserID:    userID,
		Known:     req.LastModified,
		Tolerance: s.cfg.ConflictTolerance,
		Now:       s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDocumentConflict) {
			s.observer.DocumentWritten(DocumentConflict)
			// The locked row is authoritative; refresh the cache so the
			// writer's reload sees it.
			s.storeDocument(ctx, doc)
			return doc, ErrDocumentConflict
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	s.observer.DocumentWritten(DocumentSaved)
	s.storeDocument(ctx, doc)

	err = s.producer.ProduceDocumentSaved(ctx, doc, userID)
	s.observer.EventPublished(err)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to publish document_saved event")
	}

	return doc, nil
}

// ListItems returns every item of a board.
func (s *contentServiceImpl) ListItems(ctx context.Context, boardID string) ([]protocol.Item, error) {
	cacheKey := s.cache.BuildBoardKey(boardID)

	result, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		return s.fetchWithCache(ctx, cacheKey, func() (*cache.ContentCacheResult, error) {
			items, err := s.items.List(ctx, boardID)
			if err != nil {
				return nil, fmt.Errorf("failed to list items from repository: %w", err)
			}
			return &cache.ContentCacheResult{Items: items}, nil
		})
	})
	if err != nil {
		return nil, err
	}

	cached, ok := result.(*cache.ContentCacheResult)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	items := make([]protocol.Item, len(cached.Items))
	copy(items, cached.Items)
	return items, nil
}

// SaveItem overwrites an item, last writer wins.
func (s *contentServiceImpl) SaveItem(ctx context.Context, userID string, item protocol.Item) (*protocol.Item, error) {
	l := log.Ctx(ctx)

	if err := validateItem(&item); err != nil {
		return nil, err
	}

	created, err := s.items.Save(ctx, &item, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to save item: %w", err)
	}

	op := ItemUpdate
	if created {
		op = ItemCreate
	}
	s.observer.ItemWritten(op)
	s.invalidateBoard(ctx, item.BoardID)

	err = s.producer.ProduceItemSaved(ctx, &item, userID, created)
	s.observer.EventPublished(err)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldItemID, item.ID).Msg("failed to publish item event")
	}

	return &item, nil
}

// DeleteItem removes an item.
func (s *contentServiceImpl) DeleteItem(ctx context.Context, userID, boardID, itemID string) error {
	l := log.Ctx(ctx)

	deleted, err := s.items.Delete(ctx, boardID, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return ErrItemNotFound
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}

	s.observer.ItemWritten(ItemDelete)
	s.invalidateBoard(ctx, boardID)

	err = s.producer.ProduceItemDeleted(ctx, deleted, userID)
	s.observer.EventPublished(err)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldItemID, itemID).Msg("failed to publish item_deleted event")
	}

	return nil
}

func (s *contentServiceImpl) fetchWithCache(
	ctx context.Context,
	cacheKey string,
	load func() (*cache.ContentCacheResult, error),
) (*cache.ContentCacheResult, error) {
	// Try to get from cache
	cached, err := s.cache.Get(ctx, cacheKey)
	if err == nil {
		s.observer.CacheLookup(true)
		return cached, nil
	}
	s.observer.CacheLookup(false)

	if !errors.Is(err, cache.ErrCacheMiss) {
		// Log error but continue to fetch from DB
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	result, err := load()
	if err != nil {
		return nil, err
	}

	// Store in cache (async to avoid blocking response)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, cacheKey, result, s.cfg.CacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return result, nil
}

// storeDocument writes doc through to the cache.
func (s *contentServiceImpl) storeDocument(ctx context.Context, doc *protocol.Document) {
	key := s.cache.BuildDocumentKey(doc.RoomID)
	if err := s.cache.Set(ctx, key, &cache.ContentCacheResult{Document: doc}, s.cfg.CacheTTL); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, doc.RoomID).Msg("cache set error")
	}
}

func (s *contentServiceImpl) invalidateBoard(ctx context.Context, boardID string) {
	if err := s.cache.Delete(ctx, s.cache.BuildBoardKey(boardID)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, boardID).Msg("cache delete error")
	}
}

func validateItem(item *protocol.Item) error {
	if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.BoardID) == "" {
		return fmt.Errorf("%w: id and board_id are required", ErrInvalidItem)
	}
	it, ok := protocol.ParseItemType(string(item.Type))
	if !ok || it == protocol.ItemDocument {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidItem, item.Type)
	}
	item.Type = it
	return nil
}
