package sqlite

import (
	"database/sql"
	"time"

	"github.com/rise-habits/rise/internal/domain"
)

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// AppendTransaction adds an XP ledger row.
func (d *DB) AppendTransaction(tx domain.XPTransaction) error {
	_, err := d.db.Exec(
		`INSERT INTO xp_ledger (id, created_at, day, source, source_id, amount, description, multiplier, reversal_of)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Date.Unix(), tx.Day(), string(tx.Source),
		nullStr(tx.SourceID), tx.Amount, nullStr(tx.Description),
		tx.Multiplier, nullStr(tx.ReversalOf),
	)
	return err
}

// GetTransaction retrieves a single transaction by ID.
func (d *DB) GetTransaction(id string) (*domain.XPTransaction, error) {
	row := d.db.QueryRow(
		`SELECT id, created_at, source, source_id, amount, description, multiplier, reversal_of
		 FROM xp_ledger WHERE id = ?`, id,
	)
	return scanTransaction(row)
}

// HasReversal reports whether a reversal row exists for the given transaction.
func (d *DB) HasReversal(id string) (bool, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM xp_ledger WHERE reversal_of = ?`, id).Scan(&count)
	return count > 0, err
}

// Transactions returns recent ledger rows, newest first.
func (d *DB) Transactions(limit int) ([]domain.XPTransaction, error) {
	rows, err := d.db.Query(
		`SELECT id, created_at, source, source_id, amount, description, multiplier, reversal_of
		 FROM xp_ledger ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.XPTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// SumAll returns the signed sum of every ledger row.
func (d *DB) SumAll() (int64, error) {
	var total sql.NullInt64
	err := d.db.QueryRow(`SELECT SUM(amount) FROM xp_ledger`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// SumForDay returns the signed XP total for one calendar day.
func (d *DB) SumForDay(day string) (int, error) {
	var total sql.NullInt64
	err := d.db.QueryRow(`SELECT SUM(amount) FROM xp_ledger WHERE day = ?`, day).Scan(&total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

// SumForDaySource returns one source's XP total for one calendar day.
func (d *DB) SumForDaySource(day string, source domain.XPSource) (int, error) {
	var total sql.NullInt64
	err := d.db.QueryRow(
		`SELECT SUM(amount) FROM xp_ledger WHERE day = ? AND source = ?`,
		day, string(source),
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

// CountForDaySource returns how many awards a source produced on one day.
// Reversals do not count toward diminishing-returns positions.
func (d *DB) CountForDaySource(day string, source domain.XPSource) (int, error) {
	var count int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM xp_ledger WHERE day = ? AND source = ? AND amount > 0`,
		day, string(source),
	).Scan(&count)
	return count, err
}

// PruneBefore deletes ledger rows older than the cutoff and returns the
// number removed. Bounds storage growth to the retention window.
func (d *DB) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := d.db.Exec(`DELETE FROM xp_ledger WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanTransaction(s scanner) (*domain.XPTransaction, error) {
	var t domain.XPTransaction
	var createdAt int64
	var sourceID, desc, reversalOf sql.NullString
	var multiplier sql.NullFloat64

	// sql.ErrNoRows passes through so callers can map it to a
	// missing-transaction error.
	err := s.Scan(&t.ID, &createdAt, &t.Source, &sourceID, &t.Amount,
		&desc, &multiplier, &reversalOf)
	if err != nil {
		return nil, err
	}

	t.Date = time.Unix(createdAt, 0).UTC()
	if sourceID.Valid {
		t.SourceID = sourceID.String
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if multiplier.Valid {
		t.Multiplier = multiplier.Float64
	}
	if reversalOf.Valid {
		t.ReversalOf = reversalOf.String
	}
	return &t, nil
}

// ─── Reward History ─────────────────────────────────────────────────────────

// InsertRewardHistory logs a computed reward for analytics.
func (d *DB) InsertRewardHistory(month string, starLevel int, r domain.RewardResult) (int64, error) {
	result, err := d.db.Exec(
		`INSERT INTO reward_history (challenge_id, month, star_level, base_reward, completion_bonus,
			streak_bonus, milestone_bonus, total_awarded, is_balanced, tier, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ChallengeID, month, starLevel, r.BaseXPReward, r.CompletionBonus,
		r.StreakBonus, r.MilestoneBonus, r.TotalXPAwarded, r.IsBalanced,
		string(r.RewardTier), nullStr(r.BalanceNote), time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListRewardHistory returns recent reward log rows, newest first.
func (d *DB) ListRewardHistory(limit int) ([]domain.RewardResult, error) {
	rows, err := d.db.Query(
		`SELECT challenge_id, base_reward, completion_bonus, streak_bonus,
			milestone_bonus, total_awarded, is_balanced, tier, note
		 FROM reward_history ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.RewardResult
	for rows.Next() {
		var r domain.RewardResult
		var note sql.NullString
		if err := rows.Scan(&r.ChallengeID, &r.BaseXPReward, &r.CompletionBonus,
			&r.StreakBonus, &r.MilestoneBonus, &r.TotalXPAwarded,
			&r.IsBalanced, &r.RewardTier, &note); err != nil {
			return nil, err
		}
		if note.Valid {
			r.BalanceNote = note.String
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
