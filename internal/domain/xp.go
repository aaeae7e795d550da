// Package domain defines the shared types for the Rise reward engine:
// XP transactions and levels, the journal streak state machine, and
// monthly challenge progress.
package domain

import "time"

// ─── XP Transaction Types ───────────────────────────────────────────────────

// XPSource categorizes how XP was earned or removed.
type XPSource string

const (
	SourceJournalEntry    XPSource = "journal_entry"
	SourceJournalBonus    XPSource = "journal_bonus_entry"
	SourceHabitCompletion XPSource = "habit_completion"
	SourceHabitBonus      XPSource = "habit_bonus"
	SourceGoalProgress    XPSource = "goal_progress"
	SourceGoalCompletion  XPSource = "goal_completion"
	SourceChallengeReward XPSource = "monthly_challenge"
	SourceMilestoneBonus  XPSource = "challenge_milestone"
	SourceStreakMilestone XPSource = "streak_milestone"
	SourceLevelReward     XPSource = "level_reward"
	SourceReversal        XPSource = "reversal"
)

// XPTransaction is an immutable ledger record. Transactions are never
// mutated or deleted; corrections append a reversal with the amount negated.
type XPTransaction struct {
	ID          string    `json:"id"`
	Amount      int       `json:"amount"` // signed; negative only for reversals
	Source      XPSource  `json:"source"`
	SourceID    string    `json:"source_id,omitempty"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Multiplier  float64   `json:"multiplier,omitempty"`
	ReversalOf  string    `json:"reversal_of,omitempty"`
}

// Day returns the calendar day of the transaction as "YYYY-MM-DD".
func (t XPTransaction) Day() string {
	return t.Date.UTC().Format("2006-01-02")
}

// RejectReason explains why a policy declined to award XP.
// A rejection is a normal outcome, not an error.
type RejectReason string

const (
	RejectNone         RejectReason = ""
	RejectDailyCap     RejectReason = "daily_cap_reached"
	RejectSourceShare  RejectReason = "source_share_exceeded"
	RejectSpamPosition RejectReason = "source_position_exhausted"
)

// AddXPResult is the outcome of a ledger award attempt.
// Success=false with a Reason means the anti-abuse policy declined the
// award; totals are unchanged and no transaction was appended.
type AddXPResult struct {
	Success       bool         `json:"success"`
	XPGained      int          `json:"xp_gained"`
	TotalXP       int64        `json:"total_xp"`
	LeveledUp     bool         `json:"leveled_up"`
	PreviousLevel int          `json:"previous_level"`
	NewLevel      int          `json:"new_level"`
	Reason        RejectReason `json:"reason,omitempty"`
}

// ─── Level Types ────────────────────────────────────────────────────────────

// LevelInfo describes a position on the level curve.
type LevelInfo struct {
	Level       int     `json:"level"`
	Title       string  `json:"title"`
	TotalXP     int64   `json:"total_xp"`
	XPToNext    int64   `json:"xp_to_next"`
	ProgressPct float64 `json:"progress_pct"`
	Milestone   bool    `json:"milestone"` // every 10th level
}
