package domain

import "time"

// ─── Streak / Debt Types ────────────────────────────────────────────────────

// FreezeCap is the maximum number of missed days a streak can absorb
// before the next missed day forces a reset.
const FreezeCap = 3

// StreakStatus names the states of the journal streak machine.
type StreakStatus string

const (
	StreakActive        StreakStatus = "ACTIVE"
	StreakInactive      StreakStatus = "INACTIVE"
	StreakFrozen        StreakStatus = "FROZEN"
	StreakAtRiskOfReset StreakStatus = "AT_RISK_OF_RESET"
)

// WarmUpPayment repays one missed day through ad watches.
// IsComplete flips once the required ad count for that day is met.
type WarmUpPayment struct {
	MissedDate       string    `json:"missed_date"` // "YYYY-MM-DD"
	AdsWatched       int       `json:"ads_watched"`
	PaymentTimestamp time.Time `json:"payment_timestamp"`
	IsComplete       bool      `json:"is_complete"`
}

// StreakAuditEntry records a forced or automatic reset for the audit trail.
type StreakAuditEntry struct {
	Reason    string    `json:"reason"`
	Streak    int       `json:"streak_at_reset"`
	Timestamp time.Time `json:"timestamp"`
}

// StreakState is the per-user journal streak record. One instance exists;
// it is loaded at start, mutated under a single lock, and persisted after
// every mutation.
//
// Invariants: IsFrozen == (FrozenDays > 0); FrozenDays never exceeds
// FreezeCap; LongestStreak never decreases; WarmUpHistory is append-only.
type StreakState struct {
	CurrentStreak   int                `json:"current_streak"`
	LongestStreak   int                `json:"longest_streak"`
	LastEntryDate   string             `json:"last_entry_date,omitempty"` // "YYYY-MM-DD"
	StreakStartDate string             `json:"streak_start_date,omitempty"`
	FrozenDays      int                `json:"frozen_days"`
	IsFrozen        bool               `json:"is_frozen"`
	WarmUpPayments  []WarmUpPayment    `json:"warm_up_payments"` // outstanding debt, oldest first
	WarmUpHistory   []WarmUpPayment    `json:"warm_up_history"`  // audit trail, never pruned
	ResetHistory    []StreakAuditEntry `json:"reset_history,omitempty"`

	// Lifetime badge counters, incremented the day bonus-entry count first
	// reaches 1 / 5 / 10. Never decremented except by force reset.
	StarCount  int `json:"star_count"`
	FlameCount int `json:"flame_count"`
	CrownCount int `json:"crown_count"`

	// Per-day bookkeeping for badge thresholds.
	BonusEntryDay   string `json:"bonus_entry_day,omitempty"`
	BonusEntryCount int    `json:"bonus_entry_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Status derives the state-machine state from the record.
func (s StreakState) Status() StreakStatus {
	switch {
	case s.FrozenDays >= FreezeCap:
		return StreakAtRiskOfReset
	case s.FrozenDays > 0:
		return StreakFrozen
	case s.CurrentStreak > 0:
		return StreakActive
	default:
		return StreakInactive
	}
}

// OutstandingDebt returns the number of missed days not yet fully repaid.
func (s StreakState) OutstandingDebt() int {
	n := 0
	for _, p := range s.WarmUpPayments {
		if !p.IsComplete {
			n++
		}
	}
	return n
}
