package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Perk: catalog entry unlocked by crossing a point threshold
type Perk struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Key          string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"key"`
	Name         string    `gorm:"not null" json:"name"`
	Description  string    `json:"description"`
	ThresholdPts int64     `gorm:"not null;index" json:"threshold_pts"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (p *Perk) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// UserPerk: unlocked instance; ClaimedAt moves from nil to set exactly once
type UserPerk struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_perk,priority:1" json:"user_id"`
	PerkID     string     `gorm:"type:varchar(36);not null;uniqueIndex:ux_user_perk,priority:2;index" json:"perk_id"`
	UnlockedAt *time.Time `json:"unlocked_at"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	Perk       Perk       `gorm:"foreignKey:PerkID" json:"perk"`
}

func (up *UserPerk) BeforeCreate(tx *gorm.DB) error {
	if up.ID == "" {
		up.ID = uuid.NewString()
	}
	return nil
}

// DefaultPerks is the seed catalog inserted by the bootstrap.
var DefaultPerks = []Perk{
	{Key: "BRONZE", Name: "Bronze", Description: "Bronze-Status", ThresholdPts: 500, Active: true},
	{Key: "SILBER", Name: "Silber", Description: "Silber-Status", ThresholdPts: 2000, Active: true},
	{Key: "GOLD", Name: "Gold", Description: "Gold-Status", ThresholdPts: 5000, Active: true},
	{Key: "PROFILE_BOOST_7D", Name: "Profil-Boost (7 Tage)", Description: "Dein Profil wird 7 Tage lang hervorgehoben", ThresholdPts: 800, Active: true},
	{Key: "CHAT_THEME_PACK", Name: "Chat-Theme-Paket", Description: "Exklusive Chat-Designs", ThresholdPts: 900, Active: true},
	{Key: "NAME_CHANGE_TOKEN", Name: "Namensänderung", Description: "Einmalige Änderung deines Anzeigenamens", ThresholdPts: 1200, Active: true},
	{Key: "AD_FREE_30D", Name: "Werbefrei (30 Tage)", Description: "30 Tage ohne Werbung", ThresholdPts: 1500, Active: true},
	{Key: "VIP_BADGE_30D", Name: "VIP-Abzeichen (30 Tage)", Description: "VIP-Abzeichen für 30 Tage", ThresholdPts: 2500, Active: true},
	{Key: "STORY_SPOTLIGHT_7D", Name: "Story-Spotlight (7 Tage)", Description: "Deine Stories werden 7 Tage lang hervorgehoben", ThresholdPts: 3000, Active: true},
	{Key: "MARKETING_HOME_TILE_7D", Name: "Startseiten-Kachel (7 Tage)", Description: "Eine Kachel auf der Startseite für 7 Tage", ThresholdPts: 3500, Active: true},
	{Key: "MONTH_MEMBERSHIP_1M", Name: "Mitgliedschaft (1 Monat)", Description: "Ein Monat Premium-Mitgliedschaft", ThresholdPts: 10000, Active: true},
}

// PerkDurationDays lists perks whose effect is time-boxed after the claim.
// Perks missing here stay active for good once claimed.
var PerkDurationDays = map[string]int{
	"PROFILE_BOOST_7D":       7,
	"AD_FREE_30D":            30,
	"VIP_BADGE_30D":          30,
	"STORY_SPOTLIGHT_7D":     7,
	"MARKETING_HOME_TILE_7D": 7,
	"MONTH_MEMBERSHIP_1M":    30,
}
