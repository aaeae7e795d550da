package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency. Anti-abuse policy
// rejections are NOT errors; they come back as AddXPResult values.

var (
	// Ledger errors
	ErrZeroAmount         = errors.New("xp amount must be a non-zero integer")
	ErrTransactionMissing = errors.New("xp transaction not found")
	ErrAlreadyReversed    = errors.New("xp transaction already reversed")

	// Streak errors
	ErrNoOutstandingDebt = errors.New("no outstanding missed days to repay")
	ErrEntryWhileFrozen  = errors.New("streak is frozen until missed days are repaid")

	// Challenge errors
	ErrNoActiveChallenge  = errors.New("no active challenge for this month")
	ErrChallengeFinalized = errors.New("challenge already finalized")
)
