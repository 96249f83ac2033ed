package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Badge: catalog entry, awarded at most once per user
type Badge struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Key          string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"key"` // e.g., "FIRST_POST", "STREAK_7"
	Name         string    `gorm:"not null" json:"name"`
	Description  string    `json:"description"`
	Icon         string    `gorm:"type:text" json:"icon"` // emoji or R2 URL
	PointsReward int64     `gorm:"not null;default:0" json:"points_reward"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (b *Badge) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// UserBadge: awarded instance, unique per (user, badge)
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_badge,priority:1" json:"user_id"`
	BadgeID   string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_user_badge,priority:2;index" json:"badge_id"`
	AwardedAt time.Time `gorm:"not null" json:"awarded_at"`
	Badge     Badge     `gorm:"foreignKey:BadgeID" json:"badge"`
}

func (ub *UserBadge) BeforeCreate(tx *gorm.DB) error {
	if ub.ID == "" {
		ub.ID = uuid.NewString()
	}
	return nil
}

// DefaultBadges is the seed catalog inserted by the bootstrap.
var DefaultBadges = []Badge{
	{Key: "FIRST_POST", Name: "Erster Beitrag", Description: "Du hast deinen ersten Beitrag geteilt", Icon: "📝", PointsReward: 50, Active: true},
	{Key: "STREAK_3", Name: "3-Tage-Serie", Description: "An 3 Tagen in Folge eingeloggt", Icon: "🔥", PointsReward: 100, Active: true},
	{Key: "STREAK_7", Name: "7-Tage-Serie", Description: "An 7 Tagen in Folge eingeloggt", Icon: "⚡", PointsReward: 250, Active: true},
	{Key: "FIRST_FORUM_POST", Name: "Erster Forenbeitrag", Description: "Dein erster Beitrag im Forum", Icon: "💬", PointsReward: 30, Active: true},
	{Key: "FIRST_BLOG_POST", Name: "Erster Blogartikel", Description: "Dein erster Artikel im Blog", Icon: "✍️", PointsReward: 30, Active: true},
	{Key: "VIP_BADGE", Name: "VIP", Description: "VIP-Status freigeschaltet", Icon: "👑", PointsReward: 0, Active: true},
}
