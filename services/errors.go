package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotUnlocked is returned by a claim when the user has not unlocked the perk.
	ErrNotUnlocked = errors.New("perk not unlocked")
	// ErrAlreadyClaimed is returned by a claim when the perk was claimed before.
	ErrAlreadyClaimed = errors.New("perk already claimed")

	ErrInvalidEvent   = errors.New("user id and event type are required")
	ErrStoreNotReady  = errors.New("gamification tables not migrated")
	ErrPointsRejected = errors.New("points update rejected: profile missing or balance would go negative")
	ErrCatalogMissing = errors.New("catalog entry not found")

	errLoginRaced = errors.New("daily login already credited by a concurrent request")
)

// OverviewError wraps a read failure of the overview projection.
type OverviewError struct {
	UserID string
	Op     string
	Err    error
}

func (e *OverviewError) Error() string {
	return fmt.Sprintf("gamification overview for %s: %s: %v", e.UserID, e.Op, e.Err)
}

func (e *OverviewError) Unwrap() error { return e.Err }
