package domain

import (
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// DocumentModel is the GORM model for documents table.
type DocumentModel struct {
	RoomID       string    `gorm:"type:varchar(64);primaryKey"`
	Content      string    `gorm:"type:text"`
	UpdatedBy    string    `gorm:"type:varchar(64)"`
	LastModified time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for DocumentModel.
func (DocumentModel) TableName() string {
	return "documents"
}

// ToDomain converts DocumentModel to a protocol Document.
func (m *DocumentModel) ToDomain() *protocol.Document {
	return &protocol.Document{
		RoomID:       m.RoomID,
		Content:      m.Content,
		LastModified: m.LastModified.UTC(),
	}
}

// ItemModel is the GORM model for items table.
type ItemModel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	BoardID   string    `gorm:"type:varchar(64);primaryKey"`
	Type      string    `gorm:"type:varchar(20);not null"`
	Title     string    `gorm:"type:varchar(500)"`
	Body      string    `gorm:"type:text"`
	X         float64
	Y         float64
	Width     float64
	Height    float64
	Rotation  float64
	Color     string    `gorm:"type:varchar(32)"`
	UpdatedBy string    `gorm:"type:varchar(64)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

// TableName specifies the table name for ItemModel.
func (ItemModel) TableName() string {
	return "items"
}

// ToDomain converts ItemModel to a protocol Item.
func (m *ItemModel) ToDomain() *protocol.Item {
	return &protocol.Item{
		ID:      m.ID,
		BoardID: m.BoardID,
		Type:    protocol.ItemType(m.Type),
		ItemFields: protocol.ItemFields{
			Title:    m.Title,
			Body:     m.Body,
			X:        m.X,
			Y:        m.Y,
			Width:    m.Width,
			Height:   m.Height,
			Rotation: m.Rotation,
			Color:    m.Color,
		},
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

// ItemToModel converts a protocol Item to ItemModel.
func ItemToModel(item *protocol.Item, userID string) *ItemModel {
	return &ItemModel{
		ID:        item.ID,
		BoardID:   item.BoardID,
		Type:      string(item.Type),
		Title:     item.Title,
		Body:      item.Body,
		X:         item.X,
		Y:         item.Y,
		Width:     item.Width,
		Height:    item.Height,
		Rotation:  item.Rotation,
		Color:     item.Color,
		UpdatedBy: userID,
		UpdatedAt: item.UpdatedAt,
	}
}
