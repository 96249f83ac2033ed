package services

import (
	"context"
	"time"

	"gamification-engine/models"
)

// PerkEffect is run once after a perk is claimed.
type PerkEffect interface {
	Apply(ctx context.Context, userID string, perk *models.Perk, claimedAt time.Time) error
}

type PerkEffectFunc func(ctx context.Context, userID string, perk *models.Perk, claimedAt time.Time) error

func (f PerkEffectFunc) Apply(ctx context.Context, userID string, perk *models.Perk, claimedAt time.Time) error {
	return f(ctx, userID, perk, claimedAt)
}

// BadgeGrantEffect awards a badge when the perk is claimed.
type BadgeGrantEffect struct {
	BadgeKey string
	Badges   *BadgeService
}

func (g BadgeGrantEffect) Apply(ctx context.Context, userID string, _ *models.Perk, _ time.Time) error {
	badge, err := g.Badges.Catalog.Badge(ctx, g.BadgeKey)
	if err != nil {
		return err
	}
	_, err = g.Badges.Award(ctx, userID, badge)
	return err
}

// MembershipGranter is implemented by the membership service.
type MembershipGranter interface {
	GrantMembership(ctx context.Context, userID string, from, until time.Time) error
}

// MembershipEffect hands a claimed membership perk to the membership service.
type MembershipEffect struct {
	Granter MembershipGranter
}

func (m MembershipEffect) Apply(ctx context.Context, userID string, perk *models.Perk, claimedAt time.Time) error {
	until := PerkActiveUntil(perk.Key, &claimedAt)
	if until == nil {
		u := claimedAt.AddDate(0, 1, 0)
		until = &u
	}
	return m.Granter.GrantMembership(ctx, userID, claimedAt, *until)
}

// HomeTileBooker is implemented by the marketing service.
type HomeTileBooker interface {
	BookHomeTile(ctx context.Context, userID string, from, until time.Time) error
}

type HomeTileEffect struct {
	Booker HomeTileBooker
}

func (h HomeTileEffect) Apply(ctx context.Context, userID string, perk *models.Perk, claimedAt time.Time) error {
	until := PerkActiveUntil(perk.Key, &claimedAt)
	if until == nil {
		u := claimedAt.AddDate(0, 0, 7)
		until = &u
	}
	return h.Booker.BookHomeTile(ctx, userID, claimedAt, *until)
}
