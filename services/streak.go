package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamification-engine/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CalendarDayDiff counts calendar days from -> to in loc. Wall-clock distance
// does not matter: 23:59 and 00:01 the next day are one day apart.
func CalendarDayDiff(from, to time.Time, loc *time.Location) int {
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// NextStreak returns the streak after a login at now, and whether the login
// was already credited for that calendar day. A last login dated after now is
// treated as already credited.
func NextStreak(last *time.Time, streak int, now time.Time, loc *time.Location) (int, bool) {
	if last == nil {
		return 1, false
	}
	switch diff := CalendarDayDiff(*last, now, loc); {
	case diff <= 0:
		return streak, true
	case diff == 1:
		return streak + 1, false
	default:
		return 1, false
	}
}

// RecordDailyLogin credits the first login of a calendar day and maintains the
// streak. Repeated calls on the same day are no-ops.
func (e *Engine) RecordDailyLogin(ctx context.Context, userID string) Outcome {
	fields := []zap.Field{zap.String("user_id", userID), zap.String("type", EventDailyLogin)}

	return e.bestEffort("daily_login", fields, func(out *Outcome) error {
		if userID == "" {
			return ErrInvalidEvent
		}
		if err := e.ensureReady(ctx); err != nil {
			return err
		}
		db := e.DB.WithContext(ctx)
		if err := ensureProfile(db, userID); err != nil {
			return err
		}

		var prof models.GamificationProfile
		if err := db.Where("user_id = ?", userID).First(&prof).Error; err != nil {
			return fmt.Errorf("load profile: %w", err)
		}

		now := e.now()
		streak, credited := NextStreak(prof.LastLoginAt, prof.StreakDays, now, e.loc)
		if credited {
			out.Suppressed = true
			out.Profile = &prof
			e.metrics.Suppressed.WithLabelValues(EventDailyLogin).Inc()
			return nil
		}
		pts := DailyLoginPoints(streak)

		event := models.LedgerEvent{
			UserID:    userID,
			Type:      EventDailyLogin,
			Points:    pts,
			Metadata:  datatypes.JSONMap{"streak": streak},
			CreatedAt: now,
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&event).Error; err != nil {
				return fmt.Errorf("append ledger event: %w", err)
			}
			// total_logins doubles as a version: a concurrent login that got
			// here first has already bumped it.
			res := tx.Model(&models.GamificationProfile{}).
				Where("user_id = ? AND total_logins = ?", userID, prof.TotalLogins).
				Updates(map[string]any{
					"points":        gorm.Expr("points + ?", pts),
					"level":         gorm.Expr("(points + ?) / ? + 1", pts, PointsPerLevel),
					"streak_days":   streak,
					"total_logins":  gorm.Expr("total_logins + 1"),
					"last_login_at": now,
				})
			if res.Error != nil {
				return fmt.Errorf("update profile: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errLoginRaced
			}
			return tx.Where("user_id = ?", userID).First(&prof).Error
		})
		if errors.Is(err, errLoginRaced) {
			out.Suppressed = true
			e.metrics.Suppressed.WithLabelValues(EventDailyLogin).Inc()
			return nil
		}
		if err != nil {
			return err
		}

		out.Recorded = true
		out.Points = pts
		out.Profile = &prof
		e.metrics.EventsRecorded.WithLabelValues(EventDailyLogin).Inc()
		e.noteLevelUp(out, userID, ComputeLevel(prof.Points-pts))

		return e.afterCredit(ctx, out, userID, EventDailyLogin, prof.StreakDays)
	})
}
