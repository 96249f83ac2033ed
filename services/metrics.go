package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	EventsRecorded *prometheus.CounterVec
	Suppressed     *prometheus.CounterVec
	WriteFailures  *prometheus.CounterVec
	BadgesAwarded  *prometheus.CounterVec
	PerksUnlocked  *prometheus.CounterVec
	PerksClaimed   *prometheus.CounterVec
	LevelUps       prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamification",
			Name:      "events_recorded_total",
			Help:      "Ledger events appended, by type.",
		}, []string{"type"}),
		Suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamification",
			Name:      "events_suppressed_total",
			Help:      "Events skipped by a cooldown or same-day login, by type.",
		}, []string{"type"}),
		WriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamification",
			Name:      "write_failures_total",
			Help:      "Best-effort writes that were logged and skipped, by operation.",
		}, []string{"op"}),
		BadgesAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamification",
			Name:      "badges_awarded_total",
			Help:      "Badges awarded, by badge key.",
		}, []string{"badge"}),
		PerksUnlocked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamification",
			Name:      "perks_unlocked_total",
			Help:      "Perks unlocked, by perk key.",
		}, []string{"perk"}),
		PerksClaimed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamification",
			Name:      "perks_claimed_total",
			Help:      "Perks claimed, by perk key.",
		}, []string{"perk"}),
		LevelUps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gamification",
			Name:      "level_ups_total",
			Help:      "Profile level increases.",
		}),
	}
}
