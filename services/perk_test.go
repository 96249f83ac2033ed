package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gamification-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerkUnlockClaimAndExpiry(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	perk := models.Perk{Key: "PROFILE_BOOST_7D", Name: "Boost", ThresholdPts: 100, Active: true}
	require.NoError(t, env.db.Create(&perk).Error)

	out := env.engine.RecordEvent(ctx, "u1", "BONUS", 99, nil)
	require.NoError(t, out.Err)
	assert.Empty(t, out.PerksUnlocked)

	out = env.engine.RecordEvent(ctx, "u1", "BONUS", 1, nil)
	require.NoError(t, out.Err)
	assert.Equal(t, []string{"PROFILE_BOOST_7D"}, out.PerksUnlocked)

	ov, err := env.engine.GetOverview(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ov.PerksAll, 1)
	assert.True(t, ov.PerksAll[0].Unlocked)
	assert.Nil(t, ov.PerksAll[0].ClaimedAt)
	assert.False(t, ov.PerksAll[0].ActiveNow)

	env.clock.Advance(time.Hour)
	claimedAt := env.clock.Now()
	res, err := env.engine.ClaimPerk(ctx, "u1", perk.ID)
	require.NoError(t, err)
	require.NotNil(t, res.UserPerk.ClaimedAt)
	assert.True(t, res.UserPerk.ClaimedAt.Equal(claimedAt))
	require.NotNil(t, res.ActiveUntil)
	assert.True(t, res.ActiveUntil.Equal(claimedAt.AddDate(0, 0, 7)))

	ov, err = env.engine.GetOverview(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ov.PerksAll[0].ActiveNow)

	env.clock.Advance(7*24*time.Hour - time.Second)
	ov, err = env.engine.GetOverview(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ov.PerksAll[0].ActiveNow)

	env.clock.Advance(time.Second)
	ov, err = env.engine.GetOverview(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ov.PerksAll[0].ActiveNow)
}

func TestPerkUnlocksOnce(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	out := env.engine.RecordEvent(ctx, "u1", "BONUS", 600, nil)
	require.NoError(t, out.Err)
	assert.Equal(t, []string{"BRONZE"}, out.PerksUnlocked)

	out = env.engine.RecordEvent(ctx, "u1", "BONUS", 250, nil)
	require.NoError(t, out.Err)
	assert.Equal(t, []string{"PROFILE_BOOST_7D"}, out.PerksUnlocked)

	out = env.engine.RecordEvent(ctx, "u1", "BONUS", 10, nil)
	require.NoError(t, out.Err)
	assert.Empty(t, out.PerksUnlocked)

	var n int64
	require.NoError(t, env.db.Model(&models.UserPerk{}).Where("user_id = ?", "u1").Count(&n).Error)
	assert.Equal(t, int64(2), n)

	unlocked, err := env.engine.Perks.UnlockEligible(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unlocked)
}

func TestPerkUnlockCountsBadgeReward(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	// 460 + FIRST_POST reward 50 crosses BRONZE at 500
	require.NoError(t, env.engine.RecordEvent(ctx, "u1", "BONUS", 450, nil).Err)
	out := env.engine.RecordEvent(ctx, "u1", EventFeedPost, 10, nil)
	require.NoError(t, out.Err)
	assert.Equal(t, []string{"FIRST_POST"}, out.BadgesAwarded)
	assert.Equal(t, []string{"BRONZE"}, out.PerksUnlocked)
	assert.Equal(t, int64(510), out.Profile.Points)
}

func TestClaimPerkErrors(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	require.NoError(t, env.engine.RecordEvent(ctx, "u1", "BONUS", 500, nil).Err)

	bronze := env.perkByKey(t, "BRONZE")
	gold := env.perkByKey(t, "GOLD")

	_, err := env.engine.ClaimPerk(ctx, "u1", gold.ID)
	assert.ErrorIs(t, err, ErrNotUnlocked)

	_, err = env.engine.ClaimPerk(ctx, "u1", "no-such-perk")
	assert.ErrorIs(t, err, ErrNotUnlocked)

	_, err = env.engine.ClaimPerk(ctx, "u2", bronze.ID)
	assert.ErrorIs(t, err, ErrNotUnlocked)

	res, err := env.engine.ClaimPerk(ctx, "u1", bronze.ID)
	require.NoError(t, err)
	assert.Nil(t, res.ActiveUntil) // permanent
	assert.Equal(t, "BRONZE", res.UserPerk.Perk.Key)

	_, err = env.engine.ClaimPerk(ctx, "u1", bronze.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimPerkConcurrent(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	require.NoError(t, env.engine.RecordEvent(ctx, "u1", "BONUS", 500, nil).Err)
	bronze := env.perkByKey(t, "BRONZE")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		claimed   int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.ClaimPerk(ctx, "u1", bronze.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyClaimed):
				claimed++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, claimed)
}

func TestVIPPerkClaimAwardsBadge(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	require.NoError(t, env.engine.RecordEvent(ctx, "u1", "BONUS", 2500, nil).Err)

	vip := env.perkByKey(t, "VIP_BADGE_30D")
	res, err := env.engine.ClaimPerk(ctx, "u1", vip.ID)
	require.NoError(t, err)
	require.NotNil(t, res.ActiveUntil)
	assert.True(t, res.ActiveUntil.Equal(env.clock.Now().AddDate(0, 0, 30)))

	assert.Equal(t, int64(1), env.userBadgeCount(t, "u1", "VIP_BADGE"))
}

type fakeGranter struct {
	calls       int
	from, until time.Time
	err         error
}

func (g *fakeGranter) GrantMembership(_ context.Context, _ string, from, until time.Time) error {
	g.calls++
	g.from, g.until = from, until
	return g.err
}

func TestMembershipEffect(t *testing.T) {
	granter := &fakeGranter{}
	env := newTestEnv(t, true, WithPerkEffect("MONTH_MEMBERSHIP_1M", MembershipEffect{Granter: granter}))
	ctx := context.Background()
	require.NoError(t, env.engine.RecordEvent(ctx, "u1", "BONUS", 10000, nil).Err)

	_, err := env.engine.ClaimPerk(ctx, "u1", env.perkByKey(t, "MONTH_MEMBERSHIP_1M").ID)
	require.NoError(t, err)

	assert.Equal(t, 1, granter.calls)
	assert.True(t, granter.from.Equal(env.clock.Now()))
	assert.True(t, granter.until.Equal(env.clock.Now().AddDate(0, 0, 30)))
}

type fakeBooker struct {
	calls       int
	userID      string
	from, until time.Time
}

func (b *fakeBooker) BookHomeTile(_ context.Context, userID string, from, until time.Time) error {
	b.calls++
	b.userID, b.from, b.until = userID, from, until
	return nil
}

func TestHomeTileEffect(t *testing.T) {
	booker := &fakeBooker{}
	env := newTestEnv(t, true, WithPerkEffect("MARKETING_HOME_TILE_7D", HomeTileEffect{Booker: booker}))
	ctx := context.Background()
	require.NoError(t, env.engine.RecordEvent(ctx, "u1", "BONUS", 3500, nil).Err)

	_, err := env.engine.ClaimPerk(ctx, "u1", env.perkByKey(t, "MARKETING_HOME_TILE_7D").ID)
	require.NoError(t, err)

	assert.Equal(t, 1, booker.calls)
	assert.Equal(t, "u1", booker.userID)
	assert.True(t, booker.from.Equal(env.clock.Now()))
	assert.True(t, booker.until.Equal(env.clock.Now().AddDate(0, 0, 7)))

	// perks without a duration entry still book a week
	other := &fakeBooker{}
	require.NoError(t, HomeTileEffect{Booker: other}.Apply(ctx, "u2", &models.Perk{Key: "GOLD"}, t0))
	assert.True(t, other.until.Equal(t0.AddDate(0, 0, 7)))
}

func TestFailingEffectDoesNotFailClaim(t *testing.T) {
	granter := &fakeGranter{err: errors.New("membership service down")}
	env := newTestEnv(t, true, WithPerkEffect("BRONZE", MembershipEffect{Granter: granter}))
	ctx := context.Background()
	require.NoError(t, env.engine.RecordEvent(ctx, "u1", "BONUS", 500, nil).Err)

	res, err := env.engine.ClaimPerk(ctx, "u1", env.perkByKey(t, "BRONZE").ID)
	require.NoError(t, err)
	assert.NotNil(t, res.UserPerk.ClaimedAt)
	assert.Equal(t, 1, granter.calls)
}

func TestPerkActive(t *testing.T) {
	claimed := t0

	assert.False(t, PerkActive("AD_FREE_30D", nil, t0))
	assert.True(t, PerkActive("AD_FREE_30D", &claimed, t0.AddDate(0, 0, 29)))
	assert.False(t, PerkActive("AD_FREE_30D", &claimed, t0.AddDate(0, 0, 30)))
	assert.True(t, PerkActive("GOLD", &claimed, t0.AddDate(5, 0, 0)))

	assert.Nil(t, PerkActiveUntil("GOLD", &claimed))
	until := PerkActiveUntil("STORY_SPOTLIGHT_7D", &claimed)
	require.NotNil(t, until)
	assert.True(t, until.Equal(t0.AddDate(0, 0, 7)))
}
