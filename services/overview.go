package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"gamification-engine/models"

	"gorm.io/gorm"
)

// FeedEvent is one entry of the activity feed: a ledger event or a synthetic
// BADGE_AWARDED / PERK_CLAIMED entry.
type FeedEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Points    int64          `json:"points"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PerkStatus is a catalog perk as seen by one user.
type PerkStatus struct {
	models.Perk
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ActiveUntil *time.Time `json:"active_until,omitempty"`
	ActiveNow   bool       `json:"active_now"`
}

type Progress struct {
	CurrentLevel      int     `json:"current_level"`
	NextLevel         int     `json:"next_level"`
	ToNextLevelPoints int64   `json:"to_next_level_points"`
	LevelProgressPct  float64 `json:"level_progress_pct"`
}

type Overview struct {
	Profile  models.GamificationProfile `json:"profile"`
	Events   []FeedEvent                `json:"events"`
	Badges   []models.UserBadge         `json:"badges"`
	Perks    []models.UserPerk          `json:"perks"`
	PerksAll []PerkStatus               `json:"perks_all"`
	Progress Progress                   `json:"progress"`
}

// ComputeProgress derives the level bar from a point total. Exact multiples
// of 1000 report zero points to go.
func ComputeProgress(points int64, level int) Progress {
	into := points % PointsPerLevel
	if into < 0 {
		into = 0
	}
	toNext := PointsPerLevel - into
	if toNext == PointsPerLevel {
		toNext = 0
	}
	return Progress{
		CurrentLevel:      level,
		NextLevel:         level + 1,
		ToNextLevelPoints: toNext,
		LevelProgressPct:  float64(into) / PointsPerLevel * 100,
	}
}

// GetOverview is read-only: a user without a profile gets zero values and no
// row is created. Store failures come back as *OverviewError.
func (e *Engine) GetOverview(ctx context.Context, userID string) (*Overview, error) {
	db := e.DB.WithContext(ctx)
	ov := &Overview{
		Profile:  models.GamificationProfile{UserID: userID, Level: 1},
		Events:   []FeedEvent{},
		Badges:   []models.UserBadge{},
		Perks:    []models.UserPerk{},
		PerksAll: []PerkStatus{},
	}
	fail := func(op string, err error) (*Overview, error) {
		return nil, &OverviewError{UserID: userID, Op: op, Err: err}
	}

	err := db.Where("user_id = ?", userID).First(&ov.Profile).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fail("load profile", err)
	}

	var ledger []models.LedgerEvent
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Limit(e.feedSize).Find(&ledger).Error; err != nil {
		return fail("load events", err)
	}
	if err := db.Preload("Badge").Where("user_id = ?", userID).Order("awarded_at DESC").Find(&ov.Badges).Error; err != nil {
		return fail("load badges", err)
	}
	if err := db.Preload("Perk").Where("user_id = ?", userID).Order("unlocked_at DESC").Find(&ov.Perks).Error; err != nil {
		return fail("load perks", err)
	}
	catalog, err := e.Catalog.ActivePerks(ctx)
	if err != nil {
		return fail("load perk catalog", err)
	}

	ov.Events = mergeFeed(ledger, ov.Badges, ov.Perks)
	ov.PerksAll = e.perkStatuses(catalog, ov.Perks)
	ov.Progress = ComputeProgress(ov.Profile.Points, ov.Profile.Level)
	return ov, nil
}

// mergeFeed adds one entry per awarded badge and per claimed perk to the
// recent ledger events. Only the ledger part is limited to feedSize.
func mergeFeed(ledger []models.LedgerEvent, badges []models.UserBadge, perks []models.UserPerk) []FeedEvent {
	feed := make([]FeedEvent, 0, len(ledger)+len(badges)+len(perks))
	for _, ev := range ledger {
		feed = append(feed, FeedEvent{
			ID:        ev.ID,
			Type:      ev.Type,
			Points:    ev.Points,
			Metadata:  ev.Metadata,
			CreatedAt: ev.CreatedAt,
		})
	}
	for _, ub := range badges {
		feed = append(feed, FeedEvent{
			ID:        "badge-" + ub.ID,
			Type:      EventBadgeAwarded,
			Points:    ub.Badge.PointsReward,
			Metadata:  map[string]any{"key": ub.Badge.Key, "name": ub.Badge.Name, "icon": ub.Badge.Icon},
			CreatedAt: ub.AwardedAt,
		})
	}
	for _, up := range perks {
		if up.ClaimedAt == nil {
			continue
		}
		feed = append(feed, FeedEvent{
			ID:        "perk-claimed-" + up.ID,
			Type:      EventPerkClaimed,
			Metadata:  map[string]any{"key": up.Perk.Key, "name": up.Perk.Name},
			CreatedAt: *up.ClaimedAt,
		})
	}

	slices.SortStableFunc(feed, func(a, b FeedEvent) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return feed
}

func (e *Engine) perkStatuses(catalog []models.Perk, held []models.UserPerk) []PerkStatus {
	byPerk := make(map[string]models.UserPerk, len(held))
	for _, up := range held {
		byPerk[up.PerkID] = up
	}
	now := e.now()
	out := make([]PerkStatus, 0, len(catalog))
	for _, p := range catalog {
		st := PerkStatus{Perk: p}
		if up, ok := byPerk[p.ID]; ok {
			st.Unlocked = up.UnlockedAt != nil
			st.UnlockedAt = up.UnlockedAt
			st.ClaimedAt = up.ClaimedAt
			st.ActiveUntil = PerkActiveUntil(p.Key, up.ClaimedAt)
			st.ActiveNow = PerkActive(p.Key, up.ClaimedAt, now)
		}
		out = append(out, st)
	}
	return out
}
