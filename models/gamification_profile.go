package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GamificationProfile is the denormalized per-user summary of the ledger
type GamificationProfile struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID string `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"` // links to profile service

	Points int64 `json:"points" gorm:"not null;default:0"`
	Level  int   `json:"level" gorm:"not null;default:1"`

	// Login tracking
	StreakDays  int        `json:"streak_days" gorm:"not null;default:0"`
	TotalLogins int64      `json:"total_logins" gorm:"not null;default:0"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	Timestamps
}

func (p *GamificationProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// All returns every model owned by the engine, in migration order.
func All() []any {
	return []any{
		&Badge{},
		&Perk{},
		&GamificationProfile{},
		&LedgerEvent{},
		&UserBadge{},
		&UserPerk{},
	}
}
