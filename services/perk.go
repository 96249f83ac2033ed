package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamification-engine/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PerkService struct {
	DB      *gorm.DB
	Catalog CatalogReader

	engine  *Engine
	effects map[string]PerkEffect
}

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	UserPerk    models.UserPerk `json:"user_perk"`
	ActiveUntil *time.Time      `json:"active_until,omitempty"`
}

// PerkActiveUntil returns when a claimed, time-boxed perk stops being active.
// Nil means unclaimed or permanent.
func PerkActiveUntil(perkKey string, claimedAt *time.Time) *time.Time {
	if claimedAt == nil {
		return nil
	}
	days, ok := models.PerkDurationDays[perkKey]
	if !ok {
		return nil
	}
	until := claimedAt.AddDate(0, 0, days)
	return &until
}

// PerkActive reports whether a claimed perk is in effect at now.
func PerkActive(perkKey string, claimedAt *time.Time, now time.Time) bool {
	if claimedAt == nil {
		return false
	}
	until := PerkActiveUntil(perkKey, claimedAt)
	return until == nil || now.Before(*until)
}

// UnlockEligible creates a UserPerk for every active perk whose threshold the
// user's current points reach. Returns the newly unlocked keys.
func (s *PerkService) UnlockEligible(ctx context.Context, userID string) ([]string, error) {
	db := s.DB.WithContext(ctx)

	var prof models.GamificationProfile
	err := db.Where("user_id = ?", userID).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	perks, err := s.Catalog.ActivePerks(ctx)
	if err != nil {
		return nil, err
	}

	var heldIDs []string
	if err := db.Model(&models.UserPerk{}).Where("user_id = ?", userID).Pluck("perk_id", &heldIDs).Error; err != nil {
		return nil, fmt.Errorf("load held perks: %w", err)
	}
	held := make(map[string]bool, len(heldIDs))
	for _, id := range heldIDs {
		held[id] = true
	}

	var unlocked []string
	for _, p := range perks {
		if held[p.ID] || prof.Points < p.ThresholdPts {
			continue
		}
		now := s.engine.now()
		up := models.UserPerk{UserID: userID, PerkID: p.ID, UnlockedAt: &now}
		res := db.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "perk_id"}},
			DoNothing: true,
		}).Create(&up)
		if res.Error != nil {
			return unlocked, fmt.Errorf("unlock perk %s: %w", p.Key, res.Error)
		}
		if res.RowsAffected == 1 {
			unlocked = append(unlocked, p.Key)
			s.engine.metrics.PerksUnlocked.WithLabelValues(p.Key).Inc()
			s.engine.logger.Info("perk unlocked",
				zap.String("user_id", userID),
				zap.String("perk", p.Key),
				zap.Int64("points", prof.Points),
			)
		}
	}
	return unlocked, nil
}

// Claim moves claimedAt from unset to now exactly once. Concurrent claims of
// the same perk see one success and ErrAlreadyClaimed for the rest.
func (s *PerkService) Claim(ctx context.Context, userID, perkID string) (*ClaimResult, error) {
	db := s.DB.WithContext(ctx)
	now := s.engine.now()

	res := db.Model(&models.UserPerk{}).
		Where("user_id = ? AND perk_id = ? AND unlocked_at IS NOT NULL AND claimed_at IS NULL", userID, perkID).
		Update("claimed_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("claim perk: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		var up models.UserPerk
		err := db.Where("user_id = ? AND perk_id = ?", userID, perkID).First(&up).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotUnlocked
		}
		if err != nil {
			return nil, fmt.Errorf("load user perk: %w", err)
		}
		if up.ClaimedAt != nil {
			return nil, ErrAlreadyClaimed
		}
		return nil, ErrNotUnlocked
	}

	var up models.UserPerk
	if err := db.Preload("Perk").Where("user_id = ? AND perk_id = ?", userID, perkID).First(&up).Error; err != nil {
		return nil, fmt.Errorf("reload user perk: %w", err)
	}

	s.engine.metrics.PerksClaimed.WithLabelValues(up.Perk.Key).Inc()
	s.engine.logger.Info("perk claimed", zap.String("user_id", userID), zap.String("perk", up.Perk.Key))
	s.runEffect(ctx, userID, &up)

	return &ClaimResult{
		UserPerk:    up,
		ActiveUntil: PerkActiveUntil(up.Perk.Key, up.ClaimedAt),
	}, nil
}

// runEffect never fails the claim; the claim is already committed.
func (s *PerkService) runEffect(ctx context.Context, userID string, up *models.UserPerk) {
	effect, ok := s.effects[up.Perk.Key]
	if !ok || up.ClaimedAt == nil {
		return
	}
	if err := effect.Apply(ctx, userID, &up.Perk, *up.ClaimedAt); err != nil {
		s.engine.metrics.WriteFailures.WithLabelValues("perk_effect").Inc()
		s.engine.logger.Warn("perk effect failed",
			zap.String("user_id", userID),
			zap.String("perk", up.Perk.Key),
			zap.Error(err),
		)
	}
}

// ClaimPerk claims an unlocked perk for the user. It fails with ErrNotUnlocked
// or ErrAlreadyClaimed; other errors come from the store.
func (e *Engine) ClaimPerk(ctx context.Context, userID, perkID string) (*ClaimResult, error) {
	if userID == "" || perkID == "" {
		return nil, ErrNotUnlocked
	}
	return e.Perks.Claim(ctx, userID, perkID)
}
