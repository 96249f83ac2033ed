package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gamification-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRows(t *testing.T, env *testEnv, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.Model(model).Count(&n).Error)
	return n
}

func TestEnsureCatalogIsIdempotent(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	require.NoError(t, env.db.Model(&models.Badge{}).Where("key = ?", "FIRST_POST").Update("name", "Renamed").Error)

	assert.True(t, env.catalog.EnsureCatalog(ctx))
	assert.True(t, env.catalog.EnsureCatalog(ctx))

	assert.Equal(t, int64(len(models.DefaultBadges)), countRows(t, env, &models.Badge{}))
	assert.Equal(t, int64(len(models.DefaultPerks)), countRows(t, env, &models.Perk{}))

	b, err := env.catalog.Badge(ctx, "FIRST_POST")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", b.Name, "existing rows are never overwritten")
	assert.Equal(t, int64(50), b.PointsReward)
}

func TestEnsureCatalogWithoutTables(t *testing.T) {
	db := openTestDB(t)
	catalog, err := NewCatalogService(db, 16, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.False(t, catalog.EnsureCatalog(context.Background()))
	})
}

func TestCatalogCache(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.catalog.Badge(ctx, "STREAK_7")
	require.NoError(t, err)
	assert.Equal(t, int64(250), b.PointsReward)

	require.NoError(t, env.db.Model(&models.Badge{}).Where("key = ?", "STREAK_7").Update("points_reward", 300).Error)
	b, err = env.catalog.Badge(ctx, "STREAK_7")
	require.NoError(t, err)
	assert.Equal(t, int64(250), b.PointsReward, "served from cache")

	env.catalog.Purge()
	b, err = env.catalog.Badge(ctx, "STREAK_7")
	require.NoError(t, err)
	assert.Equal(t, int64(300), b.PointsReward)

	_, err = env.catalog.Badge(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrCatalogMissing)
}

func TestActivePerksOrderedAndFiltered(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	require.NoError(t, env.db.Model(&models.Perk{}).Where("key = ?", "GOLD").Update("active", false).Error)
	env.catalog.Purge()

	perks, err := env.catalog.ActivePerks(ctx)
	require.NoError(t, err)
	require.Len(t, perks, len(models.DefaultPerks)-1)
	for i, p := range perks {
		assert.NotEqual(t, "GOLD", p.Key)
		if i > 0 {
			assert.LessOrEqual(t, perks[i-1].ThresholdPts, p.ThresholdPts)
		}
	}
	assert.Equal(t, "BRONZE", perks[0].Key)
}

func TestNormalizeCatalogKey(t *testing.T) {
	assert.Equal(t, "FIRST_POST", NormalizeCatalogKey("first-post"))
	assert.Equal(t, "FIRST_POST", NormalizeCatalogKey("FIRST_POST"))
	assert.Equal(t, "STREAK_7", NormalizeCatalogKey("Streak 7"))
}

type fakeUploader struct {
	key, contentType string
	data             []byte
	err              error
}

func (f *fakeUploader) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key, f.data, f.contentType = key, data, contentType
	return "https://cdn.example.com/" + key, nil
}

func TestUploadBadgeIcon(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	_, err := env.catalog.UploadBadgeIcon(ctx, "first-post", "icon.png", []byte("png"), "image/png")
	assert.Error(t, err, "no uploader configured")

	up := &fakeUploader{}
	env.catalog.Icons = up

	b, err := env.catalog.UploadBadgeIcon(ctx, "first-post", "Icon.PNG", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.key, "badges/first-post-"))
	assert.True(t, strings.HasSuffix(up.key, ".png"))
	assert.Equal(t, "image/png", up.contentType)
	assert.Equal(t, "https://cdn.example.com/"+up.key, b.Icon)

	cached, err := env.catalog.Badge(ctx, "FIRST_POST")
	require.NoError(t, err)
	assert.Equal(t, b.Icon, cached.Icon)

	_, err = env.catalog.UploadBadgeIcon(ctx, "unknown", "x.png", []byte("png"), "image/png")
	assert.ErrorIs(t, err, ErrCatalogMissing)

	up.err = errors.New("bucket gone")
	_, err = env.catalog.UploadBadgeIcon(ctx, "STREAK_3", "x.png", []byte("png"), "image/png")
	assert.Error(t, err)
}

func TestListCatalog(t *testing.T) {
	env := newTestEnv(t, true)

	c, err := env.catalog.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Badges, len(models.DefaultBadges))
	assert.Len(t, c.Perks, len(models.DefaultPerks))
	assert.Equal(t, "BRONZE", c.Perks[0].Key)
}

func TestRefreshSchedulerSeedsLateCatalog(t *testing.T) {
	env := newTestEnv(t, false)

	sched, err := env.catalog.StartRefreshScheduler(50 * time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Shutdown() })

	require.Eventually(t, func() bool {
		var n int64
		if err := env.db.Model(&models.Badge{}).Count(&n).Error; err != nil {
			return false
		}
		return n == int64(len(models.DefaultBadges))
	}, 5*time.Second, 25*time.Millisecond)
}
