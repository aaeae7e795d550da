package domain

// ─── Event Payloads ─────────────────────────────────────────────────────────
// The reward engine's only externally observable contract besides storage:
// a typed in-process event channel. Consumers (UI layers) subscribe; the
// ledger never knows who listens.

// XPGainedEvent is published for every accepted transaction.
type XPGainedEvent struct {
	Transaction XPTransaction `json:"transaction"`
	TotalXP     int64         `json:"total_xp"`
}

// XPBatchCommittedEvent coalesces rapid same-window awards into one
// aggregated payload.
type XPBatchCommittedEvent struct {
	TotalAmount int              `json:"total_amount"`
	Count       int              `json:"count"`
	PerSource   map[XPSource]int `json:"per_source"`
	LeveledUp   bool             `json:"leveled_up"`
}

// LevelUpEvent fires exactly once per level crossing.
type LevelUpEvent struct {
	PreviousLevel int  `json:"previous_level"`
	NewLevel      int  `json:"new_level"`
	Milestone     bool `json:"milestone"`
}

// MonthlyProgressUpdatedEvent reports a challenge counter change.
type MonthlyProgressUpdatedEvent struct {
	ChallengeID string  `json:"challenge_id"`
	Completion  float64 `json:"completion"`
}

// MonthlyMilestoneReachedEvent fires when a 25/50/75% threshold is first
// crossed. Never re-published for an already-reached milestone.
type MonthlyMilestoneReachedEvent struct {
	ChallengeID string `json:"challenge_id"`
	Milestone   int    `json:"milestone"` // 25, 50 or 75
	XPAwarded   int    `json:"xp_awarded"`
}
