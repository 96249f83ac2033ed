package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gamification-engine/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Engine is the entry point used by the rest of the platform. Write paths are
// best-effort and report through Outcome; reads return errors.
type Engine struct {
	DB      *gorm.DB
	Catalog CatalogReader
	Badges  *BadgeService
	Perks   *PerkService

	logger    *zap.Logger
	metrics   *Metrics
	now       func() time.Time
	loc       *time.Location
	feedSize  int
	cooldowns map[string]Cooldown
	ready     atomic.Bool
}

type EngineOption func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone in which calendar days are counted.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithFeedSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.feedSize = n
		}
	}
}

func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithCooldowns(c map[string]Cooldown) EngineOption {
	return func(e *Engine) { e.cooldowns = c }
}

// WithPerkEffect registers an action run after a successful claim of perkKey.
func WithPerkEffect(perkKey string, effect PerkEffect) EngineOption {
	return func(e *Engine) { e.Perks.effects[perkKey] = effect }
}

func NewEngine(db *gorm.DB, catalog CatalogReader, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		DB:        db,
		Catalog:   catalog,
		logger:    logger.Named("gamification"),
		metrics:   NewMetrics(nil),
		now:       time.Now,
		loc:       time.UTC,
		feedSize:  20,
		cooldowns: DefaultCooldowns,
	}
	e.Badges = &BadgeService{DB: db, Catalog: catalog, Rules: DefaultBadgeRules, engine: e}
	e.Perks = &PerkService{DB: db, Catalog: catalog, engine: e, effects: map[string]PerkEffect{}}
	e.Perks.effects["VIP_BADGE_30D"] = BadgeGrantEffect{BadgeKey: "VIP_BADGE", Badges: e.Badges}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome reports what a best-effort write did. Err is set when the write, or
// part of it, was skipped; it is already logged.
type Outcome struct {
	Recorded      bool
	Suppressed    bool
	Points        int64
	LevelUp       bool
	Profile       *models.GamificationProfile
	BadgesAwarded []string
	PerksUnlocked []string
	Err           error
}

func (o Outcome) Failed() bool { return o.Err != nil }

// bestEffort runs fn and turns any failure, panics included, into Outcome.Err.
func (e *Engine) bestEffort(op string, fields []zap.Field, fn func(*Outcome) error) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%s: panic: %v", op, r)
			e.logger.Error("gamification write panicked", append(fields, zap.String("op", op), zap.Any("panic", r))...)
			e.metrics.WriteFailures.WithLabelValues(op).Inc()
		}
	}()

	if err := fn(&out); err != nil {
		out.Err = fmt.Errorf("%s: %w", op, err)
		lvl := e.logger.Warn
		if errors.Is(err, ErrStoreNotReady) {
			lvl = e.logger.Debug
		}
		lvl("gamification write skipped", append(fields, zap.String("op", op), zap.Error(err))...)
		e.metrics.WriteFailures.WithLabelValues(op).Inc()
	}
	return out
}

// ensureReady reports ErrStoreNotReady until the engine tables exist. Once
// they do, the result is cached.
func (e *Engine) ensureReady(ctx context.Context) error {
	if e.ready.Load() {
		return nil
	}
	m := e.DB.WithContext(ctx).Migrator()
	for _, t := range []any{&models.GamificationProfile{}, &models.LedgerEvent{}, &models.UserBadge{}, &models.UserPerk{}} {
		if !m.HasTable(t) {
			return ErrStoreNotReady
		}
	}
	e.ready.Store(true)
	return nil
}

// ensureProfile creates the profile row if missing (idempotent)
func ensureProfile(db *gorm.DB, userID string) error {
	prof := models.GamificationProfile{UserID: userID, Level: 1}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&prof).Error
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

// creditPoints moves points and level together. The update is refused when the
// balance would drop below zero.
func creditPoints(tx *gorm.DB, userID string, delta int64) error {
	res := tx.Model(&models.GamificationProfile{}).
		Where("user_id = ? AND points + ? >= 0", userID, delta).
		Updates(map[string]any{
			"points": gorm.Expr("points + ?", delta),
			"level":  gorm.Expr("(points + ?) / ? + 1", delta, PointsPerLevel),
		})
	if res.Error != nil {
		return fmt.Errorf("credit points: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPointsRejected
	}
	return nil
}
