package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LedgerEvent is an append-only point movement. Never updated or deleted.
type LedgerEvent struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string            `gorm:"type:varchar(64);not null;index:idx_gamification_events_user_created,priority:1" json:"user_id"`
	Type      string            `gorm:"type:varchar(64);not null;index" json:"type"`
	Points    int64             `gorm:"not null" json:"points"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index:idx_gamification_events_user_created,priority:2" json:"created_at"`
}

func (LedgerEvent) TableName() string { return "gamification_events" }

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
