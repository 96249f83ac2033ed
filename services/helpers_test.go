package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gamification-engine/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// openTestDB opens a file-backed SQLite database limited to one connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gamification.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type testEnv struct {
	db      *gorm.DB
	catalog *CatalogService
	engine  *Engine
	clock   *fakeClock
}

// newTestEnv migrates a fresh database and, if seed is set, loads the default catalog.
func newTestEnv(t *testing.T, seed bool, opts ...EngineOption) *testEnv {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(models.All()...))

	catalog, err := NewCatalogService(db, 64, zap.NewNop())
	require.NoError(t, err)
	if seed {
		require.True(t, catalog.EnsureCatalog(context.Background()))
	}

	clock := &fakeClock{t: t0}
	all := append([]EngineOption{WithClock(clock.Now)}, opts...)
	return &testEnv{
		db:      db,
		catalog: catalog,
		engine:  NewEngine(db, catalog, zaptest.NewLogger(t), all...),
		clock:   clock,
	}
}

func (e *testEnv) profile(t *testing.T, userID string) models.GamificationProfile {
	t.Helper()
	var p models.GamificationProfile
	require.NoError(t, e.db.Where("user_id = ?", userID).First(&p).Error)
	return p
}

func (e *testEnv) ledgerSum(t *testing.T, userID string) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, e.db.Model(&models.LedgerEvent{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").Scan(&sum).Error)
	return sum
}

func (e *testEnv) badgeRewardSum(t *testing.T, userID string) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, e.db.Model(&models.UserBadge{}).
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("user_badges.user_id = ?", userID).
		Select("COALESCE(SUM(badges.points_reward), 0)").Scan(&sum).Error)
	return sum
}

func (e *testEnv) userBadgeCount(t *testing.T, userID, key string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.UserBadge{}).
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("user_badges.user_id = ? AND badges.key = ?", userID, key).
		Count(&n).Error)
	return n
}

func (e *testEnv) perkByKey(t *testing.T, key string) models.Perk {
	t.Helper()
	var p models.Perk
	require.NoError(t, e.db.Where("key = ?", key).First(&p).Error)
	return p
}

// requireConsistent checks points = ledger + badge rewards and level = f(points).
func (e *testEnv) requireConsistent(t *testing.T, userID string) {
	t.Helper()
	p := e.profile(t, userID)
	require.Equal(t, e.ledgerSum(t, userID)+e.badgeRewardSum(t, userID), p.Points)
	require.Equal(t, ComputeLevel(p.Points), p.Level)
}
