package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-canvas-live/content-service/internal/domain"
	"github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// GormItemRepository implements ItemRepository using GORM.
type GormItemRepository struct {
	db *gorm.DB
}

// NewGormItemRepository creates a new GORM-based item repository.
func NewGormItemRepository(db *gorm.DB) *GormItemRepository {
	return &GormItemRepository{db: db}
}

// List retrieves every item of a board in creation order.
func (r *GormItemRepository) List(ctx context.Context, boardID string) ([]protocol.Item, error) {
	l := log.Ctx(ctx)

	var models []domain.ItemModel
	if err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, boardID).Msg("failed to list items from db")
		return nil, err
	}

	items := make([]protocol.Item, len(models))
	for i, model := range models {
		items[i] = *model.ToDomain()
	}
	return items, nil
}

// Get retrieves a single item.
func (r *GormItemRepository) Get(ctx context.Context, boardID, itemID string) (*protocol.Item, error) {
	l := log.Ctx(ctx)

	var model domain.ItemModel
	result := r.db.WithContext(ctx).First(&model, "board_id = ? AND id = ?", boardID, itemID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldItemID, itemID).Msg("failed to get item")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Save overwrites the item, last writer wins. item.UpdatedAt is set to
// the stored timestamp.
func (r *GormItemRepository) Save(ctx context.Context, item *protocol.Item, userID string) (bool, error) {
	l := log.Ctx(ctx)

	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.ItemModel
		result := tx.Select("id", "created_at").First(&existing, "board_id = ? AND id = ?", item.BoardID, item.ID)
		if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}

		item.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		model := domain.ItemToModel(item, userID)

		if result.Error != nil {
			created = true
			return tx.Create(model).Error
		}
		model.CreatedAt = existing.CreatedAt
		return tx.Save(model).Error
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldItemID, item.ID).Msg("failed to save item")
		return false, err
	}

	l.Debug().Str(log.FieldItemID, item.ID).Bool("created", created).Msg("item saved in db")
	return created, nil
}

// Delete removes an item.
func (r *GormItemRepository) Delete(ctx context.Context, boardID, itemID string) (*protocol.Item, error) {
	l := log.Ctx(ctx)

	var deleted *protocol.Item
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model domain.ItemModel
		result := tx.First(&model, "board_id = ? AND id = ?", boardID, itemID)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return result.Error
		}
		if err := tx.Delete(&domain.ItemModel{}, "board_id = ? AND id = ?", boardID, itemID).Error; err != nil {
			return err
		}
		deleted = model.ToDomain()
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrItemNotFound) {
			l.Error().Err(err).Str(log.FieldItemID, itemID).Msg("failed to delete item")
		}
		return nil, err
	}

	l.Debug().Str(log.FieldItemID, itemID).Msg("item deleted from db")
	return deleted, nil
}
