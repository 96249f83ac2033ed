package services

import (
	"context"
	"errors"
	"fmt"

	"gamification-engine/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeRule maps an event (and the streak at that moment) to the badge keys it qualifies for.
type BadgeRule func(eventType string, streakDays int) []string

// DefaultBadgeRules; streak rules run on every event, not only logins.
var DefaultBadgeRules = []BadgeRule{
	func(eventType string, _ int) []string {
		if eventType == EventFeedPost {
			return []string{"FIRST_POST"}
		}
		return nil
	},
	func(eventType string, _ int) []string {
		switch eventType {
		case EventForumPost, EventForumReply, EventForumThread:
			return []string{"FIRST_FORUM_POST"}
		}
		return nil
	},
	func(eventType string, _ int) []string {
		if eventType == EventBlogPost {
			return []string{"FIRST_BLOG_POST"}
		}
		return nil
	},
	func(_ string, streakDays int) []string {
		var keys []string
		if streakDays >= 3 {
			keys = append(keys, "STREAK_3")
		}
		if streakDays >= 7 {
			keys = append(keys, "STREAK_7")
		}
		return keys
	},
}

type BadgeService struct {
	DB      *gorm.DB
	Catalog CatalogReader
	Rules   []BadgeRule

	engine *Engine
}

// EligibleKeys evaluates the rules; duplicates are dropped, order is kept.
func (s *BadgeService) EligibleKeys(eventType string, streakDays int) []string {
	seen := map[string]bool{}
	var keys []string
	for _, rule := range s.Rules {
		for _, k := range rule(eventType, streakDays) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// AwardForEvent awards every qualifying badge the user does not hold yet and
// returns the keys actually awarded.
func (s *BadgeService) AwardForEvent(ctx context.Context, userID, eventType string, streakDays int) ([]string, error) {
	keys := s.EligibleKeys(eventType, streakDays)
	if len(keys) == 0 {
		return nil, nil
	}

	var held []string
	err := s.DB.WithContext(ctx).Model(&models.UserBadge{}).
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("user_badges.user_id = ? AND badges.key IN ?", userID, keys).
		Pluck("badges.key", &held).Error
	if err != nil {
		return nil, fmt.Errorf("load held badges: %w", err)
	}
	heldSet := make(map[string]bool, len(held))
	for _, k := range held {
		heldSet[k] = true
	}

	var awarded []string
	for _, key := range keys {
		if heldSet[key] {
			continue
		}
		badge, err := s.Catalog.Badge(ctx, key)
		if errors.Is(err, ErrCatalogMissing) {
			continue
		}
		if err != nil {
			return awarded, err
		}
		if !badge.Active {
			continue
		}
		ok, err := s.Award(ctx, userID, badge)
		if err != nil {
			return awarded, err
		}
		if ok {
			awarded = append(awarded, key)
		}
	}
	return awarded, nil
}

// Award inserts the UserBadge row and credits the badge reward in one
// transaction. It reports false when the user already holds the badge.
func (s *BadgeService) Award(ctx context.Context, userID string, badge *models.Badge) (bool, error) {
	var inserted bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ub := models.UserBadge{
			UserID:    userID,
			BadgeID:   badge.ID,
			AwardedAt: s.engine.now(),
		}
		res := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
			DoNothing: true,
		}).Create(&ub)
		if res.Error != nil {
			return fmt.Errorf("insert user badge: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if badge.PointsReward != 0 {
			if err := creditPoints(tx, userID, badge.PointsReward); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if inserted {
		s.engine.metrics.BadgesAwarded.WithLabelValues(badge.Key).Inc()
		s.engine.logger.Info("badge awarded",
			zap.String("user_id", userID),
			zap.String("badge", badge.Key),
			zap.Int64("reward", badge.PointsReward),
		)
	}
	return inserted, nil
}
