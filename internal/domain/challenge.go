package domain

import "time"

// ─── Monthly Challenge Types ────────────────────────────────────────────────

// ChallengeCategory groups challenges by the feature they exercise.
type ChallengeCategory string

const (
	CategoryHabits      ChallengeCategory = "habits"
	CategoryJournal     ChallengeCategory = "journal"
	CategoryGoals       ChallengeCategory = "goals"
	CategoryConsistency ChallengeCategory = "consistency"
)

// ChallengeRequirement is one counted goal within a monthly challenge,
// keyed by the XP source that advances it.
type ChallengeRequirement struct {
	Key         XPSource `json:"key"`
	Target      int      `json:"target"`
	Description string   `json:"description"`
}

// MonthlyChallenge is immutable after creation. One active challenge
// exists per calendar month.
type MonthlyChallenge struct {
	ID               string                 `json:"id"`    // "challenge-2026-08"
	Month            string                 `json:"month"` // "2026-08"
	StartDate        time.Time              `json:"start_date"`
	EndDate          time.Time              `json:"end_date"`
	StarLevel        int                    `json:"star_level"` // 1..5
	BaseXPReward     int                    `json:"base_xp_reward"`
	Category         ChallengeCategory      `json:"category"`
	Requirements     []ChallengeRequirement `json:"requirements"`
	BaselineSnapshot map[string]int         `json:"baseline_snapshot,omitempty"`
}

// DailySnapshot captures cumulative progress for one day, plus which
// feature categories contributed (used for multi-feature day bonuses).
type DailySnapshot struct {
	Completion float64  `json:"completion"`
	Categories []string `json:"categories"`
}

// MonthlyChallengeProgress is the mutable counterpart of a challenge.
// Counters only increase, so CompletionPercentage is monotonically
// non-decreasing within a month. Each milestone flag transitions
// false→true at most once per challenge instance.
type MonthlyChallengeProgress struct {
	ChallengeID          string                      `json:"challenge_id"`
	Progress             map[XPSource]int            `json:"progress"`
	CompletionPercentage float64                     `json:"completion_percentage"`
	MilestonesReached    map[int]bool                `json:"milestones_reached"` // 25, 50, 75
	WeeklyProgress       map[string]map[XPSource]int `json:"weekly_progress"`    // "W1".."W5"
	DaysActive           int                         `json:"days_active"`
	ActiveDays           map[string]bool             `json:"active_days"` // set of "YYYY-MM-DD"
	DailySnapshots       map[string]DailySnapshot    `json:"daily_snapshots"`
	CurrentStreak        int                         `json:"current_streak"` // consecutive completed months
	DailyConsistency     float64                     `json:"daily_consistency"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

// NewChallengeProgress returns an initialized progress record for a challenge.
func NewChallengeProgress(challengeID string) *MonthlyChallengeProgress {
	return &MonthlyChallengeProgress{
		ChallengeID:       challengeID,
		Progress:          make(map[XPSource]int),
		MilestonesReached: make(map[int]bool),
		WeeklyProgress:    make(map[string]map[XPSource]int),
		ActiveDays:        make(map[string]bool),
		DailySnapshots:    make(map[string]DailySnapshot),
	}
}

// InitMaps ensures all map fields are non-nil after deserialization.
func (p *MonthlyChallengeProgress) InitMaps() {
	if p.Progress == nil {
		p.Progress = make(map[XPSource]int)
	}
	if p.MilestonesReached == nil {
		p.MilestonesReached = make(map[int]bool)
	}
	if p.WeeklyProgress == nil {
		p.WeeklyProgress = make(map[string]map[XPSource]int)
	}
	if p.ActiveDays == nil {
		p.ActiveDays = make(map[string]bool)
	}
	if p.DailySnapshots == nil {
		p.DailySnapshots = make(map[string]DailySnapshot)
	}
}

// ─── Reward Types ───────────────────────────────────────────────────────────

// RewardTier labels how much of the reward came from bonuses.
type RewardTier string

const (
	TierStandard    RewardTier = "standard"
	TierBonus       RewardTier = "bonus"
	TierExceptional RewardTier = "exceptional"
)

// RewardResult is the computed outcome of a challenge evaluation. It is
// not primary state; a copy goes to the reward history log for analytics.
type RewardResult struct {
	ChallengeID     string     `json:"challenge_id"`
	BaseXPReward    int        `json:"base_xp_reward"`
	CompletionBonus int        `json:"completion_bonus"`
	StreakBonus     int        `json:"streak_bonus"`
	MilestoneBonus  int        `json:"milestone_bonus"`
	TotalXPAwarded  int        `json:"total_xp_awarded"`
	IsBalanced      bool       `json:"is_balanced"`
	BalanceNote     string     `json:"balance_note,omitempty"`
	RewardTier      RewardTier `json:"reward_tier"`
}

// ChallengeHistoryEntry summarizes a finished month, consumed by the
// reward engine's streak and milestone bonus rules.
type ChallengeHistoryEntry struct {
	Month      string            `json:"month"`
	Category   ChallengeCategory `json:"category"`
	Completion float64           `json:"completion"`
	Completed  bool              `json:"completed"` // reached the completion floor
	Perfect    bool              `json:"perfect"`   // 100%
}
