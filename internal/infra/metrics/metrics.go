// Package metrics provides Prometheus metrics for Rise: counters,
// gauges, and histograms for the XP ledger, streak lifecycle, and
// monthly challenges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── XP ledger ──────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted by source.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rise",
	Name:      "xp_awarded_total",
	Help:      "Total XP granted, by source.",
}, []string{"source"})

// XPRejected tracks awards rejected by the anti-abuse limits.
var XPRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rise",
	Name:      "xp_rejected_total",
	Help:      "Total XP awards rejected, by source and reason.",
}, []string{"source", "reason"})

// XPReversed tracks compensating reversal transactions.
var XPReversed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "rise",
	Name:      "xp_reversed_total",
	Help:      "Total reversal transactions appended.",
})

// LevelUps tracks level transitions.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "rise",
	Name:      "level_ups_total",
	Help:      "Total level-up events.",
})

// BatchFlushSize tracks how many events each ledger batch flush carried.
var BatchFlushSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "rise",
	Name:      "batch_flush_size",
	Help:      "Events per batch flush.",
	Buckets:   []float64{1, 2, 5, 10, 20, 35, 50},
})

// ─── Streak ─────────────────────────────────────────────────────────────────

// StreakResets tracks streak resets by reason.
var StreakResets = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rise",
	Name:      "streak_resets_total",
	Help:      "Total streak resets, by reason.",
}, []string{"reason"})

// WarmUpPayments tracks completed warm-up (debt repayment) payments.
var WarmUpPayments = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "rise",
	Name:      "warmup_payments_total",
	Help:      "Total completed warm-up payments.",
})

// StreakCurrent reports the current streak length.
var StreakCurrent = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "rise",
	Name:      "streak_current_days",
	Help:      "Current streak length in days.",
})

// ─── Challenges ─────────────────────────────────────────────────────────────

// MilestonesReached tracks challenge milestone bonuses by threshold.
var MilestonesReached = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rise",
	Name:      "challenge_milestones_total",
	Help:      "Total challenge milestones reached, by threshold.",
}, []string{"milestone"})

// ChallengeCompletion reports the active challenge's completion percentage.
var ChallengeCompletion = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "rise",
	Name:      "challenge_completion_pct",
	Help:      "Active monthly challenge completion percentage.",
})

// RewardsGranted tracks finalized challenge rewards by tier.
var RewardsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rise",
	Name:      "challenge_rewards_total",
	Help:      "Total finalized challenge rewards, by tier.",
}, []string{"tier"})
