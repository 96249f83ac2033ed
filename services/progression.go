package services

import (
	"context"
	"errors"
	"fmt"

	"gamification-engine/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecordEvent appends a ledger event, moves the profile by points, then runs
// the badge and perk scans. points is recorded as given, zero included. It
// never returns an error; see Outcome.Err.
func (e *Engine) RecordEvent(ctx context.Context, userID, eventType string, points int64, metadata map[string]any) Outcome {
	fields := []zap.Field{zap.String("user_id", userID), zap.String("type", eventType), zap.Int64("points", points)}

	return e.bestEffort("record_event", fields, func(out *Outcome) error {
		if userID == "" || eventType == "" {
			return ErrInvalidEvent
		}
		if err := e.ensureReady(ctx); err != nil {
			return err
		}
		db := e.DB.WithContext(ctx)

		suppressed, err := e.inCooldown(db, userID, eventType, metadata)
		if err != nil {
			return err
		}
		if suppressed {
			out.Suppressed = true
			e.metrics.Suppressed.WithLabelValues(eventType).Inc()
			e.logger.Debug("event suppressed by cooldown", fields...)
			return nil
		}

		if err := ensureProfile(db, userID); err != nil {
			return err
		}

		event := models.LedgerEvent{
			UserID:    userID,
			Type:      eventType,
			Points:    points,
			Metadata:  datatypes.JSONMap(metadata),
			CreatedAt: e.now(),
		}
		var prof models.GamificationProfile
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&event).Error; err != nil {
				return fmt.Errorf("append ledger event: %w", err)
			}
			if err := creditPoints(tx, userID, points); err != nil {
				return err
			}
			return tx.Where("user_id = ?", userID).First(&prof).Error
		})
		if err != nil {
			return err
		}

		out.Recorded = true
		out.Points = points
		out.Profile = &prof
		e.metrics.EventsRecorded.WithLabelValues(eventType).Inc()
		e.logger.Debug("event recorded", append(fields, zap.Int64("total", prof.Points))...)
		e.noteLevelUp(out, userID, ComputeLevel(prof.Points-points))

		return e.afterCredit(ctx, out, userID, eventType, prof.StreakDays)
	})
}

// afterCredit runs the badge scan and then the perk unlock scan, in that
// order, so badge rewards count toward perk thresholds.
func (e *Engine) afterCredit(ctx context.Context, out *Outcome, userID, eventType string, streakDays int) error {
	awarded, err := e.Badges.AwardForEvent(ctx, userID, eventType, streakDays)
	out.BadgesAwarded = awarded
	if err != nil {
		return fmt.Errorf("badge scan: %w", err)
	}

	if len(awarded) > 0 {
		var prof models.GamificationProfile
		if err := e.DB.WithContext(ctx).Where("user_id = ?", userID).First(&prof).Error; err == nil {
			before := out.Profile.Level
			out.Profile = &prof
			e.noteLevelUp(out, userID, before)
		}
	}

	unlocked, err := e.Perks.UnlockEligible(ctx, userID)
	out.PerksUnlocked = unlocked
	if err != nil {
		return fmt.Errorf("perk scan: %w", err)
	}
	return nil
}

func (e *Engine) noteLevelUp(out *Outcome, userID string, before int) {
	if out.Profile == nil || out.Profile.Level <= before {
		return
	}
	out.LevelUp = true
	e.metrics.LevelUps.Inc()
	e.logger.Info("level up",
		zap.String("user_id", userID),
		zap.Int("from", before),
		zap.Int("to", out.Profile.Level),
		zap.Int64("points", out.Profile.Points),
	)
}

// GetProfile returns the user's profile, or ok=false when none exists yet.
func (e *Engine) GetProfile(ctx context.Context, userID string) (*models.GamificationProfile, bool, error) {
	var prof models.GamificationProfile
	err := e.DB.WithContext(ctx).Where("user_id = ?", userID).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &prof, true, nil
}
