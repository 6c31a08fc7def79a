package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-canvas-live/content-service/internal/domain"
	"github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// GormDocumentRepository implements DocumentRepository using GORM.
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GORM-based document repository.
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// Get retrieves a document by room ID.
func (r *GormDocumentRepository) Get(ctx context.Context, roomID string) (*protocol.Document, error) {
	l := log.Ctx(ctx)

	var model domain.DocumentModel
	result := r.db.WithContext(ctx).First(&model, "room_id = ?", roomID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to get document")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Save runs the conflict check and the write in one transaction holding
// the document row lock.
func (r *GormDocumentRepository) Save(ctx context.Context, w DocumentWrite) (*protocol.Document, error) {
	l := log.Ctx(ctx)

	var saved *protocol.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model domain.DocumentModel
		result := lockForUpdate(tx).First(&model, "room_id = ?", w.RoomID)

		switch {
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			created, err := createFirst(tx, w)
			if errors.Is(err, ErrDocumentConflict) {
				saved = created.ToDomain()
				return err
			}
			if err != nil {
				return err
			}
			model = *created

		case result.Error != nil:
			return result.Error

		default:
			if model.LastModified.Sub(w.Known) > w.Tolerance {
				saved = model.ToDomain()
				return ErrDocumentConflict
			}
			model.Content = w.Content
			model.UpdatedBy = w.UserID
			model.LastModified = w.Now.UTC()
			if err := tx.Save(&model).Error; err != nil {
				return err
			}
		}

		saved = model.ToDomain()
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrDocumentConflict) {
			l.Debug().Str(log.FieldRoomID, w.RoomID).
				Time("known", w.Known).Time("stored", saved.LastModified).
				Msg("document write rejected")
			return saved, ErrDocumentConflict
		}
		l.Error().Err(err).Str(log.FieldRoomID, w.RoomID).Msg("failed to save document")
		return nil, err
	}

	l.Debug().Str(log.FieldRoomID, w.RoomID).Msg("document saved in db")
	return saved, nil
}

// createFirst inserts the first version of a document. When a concurrent
// writer created it first, the stored row comes back with
// ErrDocumentConflict.
func createFirst(tx *gorm.DB, w DocumentWrite) (*domain.DocumentModel, error) {
	model := domain.DocumentModel{
		RoomID:       w.RoomID,
		Content:      w.Content,
		UpdatedBy:    w.UserID,
		LastModified: w.Now.UTC(),
	}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return &model, nil
	}

	var stored domain.DocumentModel
	if err := tx.First(&stored, "room_id = ?", w.RoomID).Error; err != nil {
		return nil, err
	}
	return &stored, ErrDocumentConflict
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect has it.
// sqlite serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
