// Package streak implements the journal streak state machine: a
// per-user singleton record with freeze/debt grace for missed days,
// warm-up repayments, milestone badges, and an audit trail for resets.
package streak

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rise-habits/rise/internal/domain"
	"github.com/rise-habits/rise/internal/infra/bus"
	"github.com/rise-habits/rise/internal/infra/memo"
	"github.com/rise-habits/rise/internal/infra/metrics"
	"github.com/rise-habits/rise/internal/infra/sqlite"
)

// Config holds the debt-repayment knobs.
type Config struct {
	AdsPerMissedDay int           // ad watches required to repay one missed day
	RepairRetries   int           // verification retries before force-resolving debt
	CacheTTL        time.Duration // read-cache lifetime for the state record
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		AdsPerMissedDay: 1,
		RepairRetries:   1,
		CacheTTL:        30 * time.Second,
	}
}

const (
	stateKey  = "streak_state"
	cacheKey  = "streak"
	dayFormat = "2006-01-02"
)

// Badge thresholds: bonus entries per day needed for star/flame/crown.
const (
	starThreshold  = 1
	flameThreshold = 5
	crownThreshold = 10
)

// Service owns the streak record. Every mutation is a single critical
// section: load latest, mutate, persist. The read cache is invalidated
// on every write.
type Service struct {
	mu    sync.Mutex
	db    *sqlite.DB
	bus   *bus.Bus
	cfg   Config
	cache *memo.Cache[string, domain.StreakState]

	repairFailures int
}

func NewService(db *sqlite.DB, b *bus.Bus, cfg Config) *Service {
	return &Service{
		db:    db,
		bus:   b,
		cfg:   cfg,
		cache: memo.New[string, domain.StreakState](cfg.CacheTTL),
	}
}

// State returns the current streak record, recomputed against now.
// Reads within the cache TTL skip the recomputation.
func (s *Service) State(now time.Time) (domain.StreakState, error) {
	if st, ok := s.cache.Get(cacheKey); ok {
		return st, nil
	}
	return s.Recalculate(now)
}

// Recalculate detects days missed since the last entry, converts them
// into outstanding debt up to the freeze cap, and forces a reset when
// the cap is exceeded without repayment.
func (s *Service) Recalculate(now time.Time) (domain.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return domain.StreakState{}, err
	}
	s.accrueDebtLocked(&st, now)
	if err := s.save(&st); err != nil {
		return domain.StreakState{}, err
	}
	return st, nil
}

// accrueDebtLocked folds missed days into the record. Callers hold mu.
func (s *Service) accrueDebtLocked(st *domain.StreakState, now time.Time) {
	if st.LastEntryDate == "" || st.CurrentStreak == 0 {
		return
	}
	last, err := time.Parse(dayFormat, st.LastEntryDate)
	if err != nil {
		log.Printf("[streak] bad last entry date %q: %v", st.LastEntryDate, err)
		return
	}

	today := now.UTC().Truncate(24 * time.Hour)
	known := make(map[string]bool, len(st.WarmUpPayments)+len(st.WarmUpHistory))
	for _, p := range st.WarmUpPayments {
		known[p.MissedDate] = true
	}
	for _, p := range st.WarmUpHistory {
		known[p.MissedDate] = true
	}

	// Every day strictly between the last entry and today is missed.
	for d := last.AddDate(0, 0, 1); d.Before(today); d = d.AddDate(0, 0, 1) {
		day := d.Format(dayFormat)
		if known[day] {
			continue
		}
		st.WarmUpPayments = append(st.WarmUpPayments, domain.WarmUpPayment{MissedDate: day})
	}

	debt := st.OutstandingDebt()
	if debt > domain.FreezeCap {
		s.resetLocked(st, "freeze_cap_exceeded", now)
		return
	}
	st.FrozenDays = debt
	st.IsFrozen = debt > 0
}

// RecordEntry registers a qualifying journal entry for day. Repeat
// entries on the same day count as bonus entries and drive the badge
// thresholds; a frozen streak with outstanding debt refuses to extend
// until the debt is repaid.
func (s *Service) RecordEntry(day time.Time) (domain.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return domain.StreakState{}, err
	}
	today := day.UTC().Format(dayFormat)

	if st.LastEntryDate == today {
		s.bonusEntryLocked(&st, today)
		if err := s.save(&st); err != nil {
			return domain.StreakState{}, err
		}
		return st, nil
	}

	// LastEntryDate is monotone. A backdated entry covers a day the
	// streak already counts; moving the record backwards would make the
	// next recalculation treat the gap as missed days and reset a live
	// streak.
	if st.LastEntryDate != "" && today < st.LastEntryDate {
		return st, nil
	}

	s.accrueDebtLocked(&st, day)

	if st.IsFrozen && st.OutstandingDebt() > 0 {
		if err := s.save(&st); err != nil {
			return domain.StreakState{}, err
		}
		return st, domain.ErrEntryWhileFrozen
	}

	st.CurrentStreak++
	if st.CurrentStreak == 1 {
		st.StreakStartDate = today
	}
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}
	st.LastEntryDate = today
	st.BonusEntryDay = today
	st.BonusEntryCount = 0

	if err := s.save(&st); err != nil {
		return domain.StreakState{}, err
	}
	metrics.StreakCurrent.Set(float64(st.CurrentStreak))
	return st, nil
}

// bonusEntryLocked counts a same-day repeat entry and bumps the badge
// counters the first time each threshold is reached that day.
func (s *Service) bonusEntryLocked(st *domain.StreakState, today string) {
	if st.BonusEntryDay != today {
		st.BonusEntryDay = today
		st.BonusEntryCount = 0
	}
	st.BonusEntryCount++

	switch st.BonusEntryCount {
	case starThreshold:
		st.StarCount++
	case flameThreshold:
		st.FlameCount++
	case crownThreshold:
		st.CrownCount++
	}
}

// ApplySingleWarmUpPayment records one ad watch against the oldest
// unpaid missed date. When the final outstanding date is fully paid
// the streak unfreezes immediately, without waiting for a new entry.
func (s *Service) ApplySingleWarmUpPayment(now time.Time) (domain.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return domain.StreakState{}, err
	}

	idx := -1
	for i := range st.WarmUpPayments {
		if !st.WarmUpPayments[i].IsComplete {
			idx = i
			break
		}
	}
	if idx < 0 {
		return st, domain.ErrNoOutstandingDebt
	}

	p := &st.WarmUpPayments[idx]
	p.AdsWatched++
	if p.AdsWatched >= s.cfg.AdsPerMissedDay {
		p.IsComplete = true
		p.PaymentTimestamp = now.UTC()
		st.WarmUpHistory = append(st.WarmUpHistory, *p)
		metrics.WarmUpPayments.Inc()
	}

	if st.OutstandingDebt() == 0 {
		st.WarmUpPayments = nil
		st.FrozenDays = 0
		st.IsFrozen = false
	} else {
		st.FrozenDays = st.OutstandingDebt()
	}

	if err := s.save(&st); err != nil {
		return domain.StreakState{}, err
	}
	return st, nil
}

// ExecuteForceResetDebt clears all debt state unconditionally and logs
// an audit entry. Badge counters and the streak itself are untouched;
// this is the manual escape hatch when repayment verification fails.
func (s *Service) ExecuteForceResetDebt(reason string, now time.Time) (domain.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return domain.StreakState{}, err
	}

	st.WarmUpPayments = nil
	st.FrozenDays = 0
	st.IsFrozen = false
	st.ResetHistory = append(st.ResetHistory, domain.StreakAuditEntry{
		Reason:    reason,
		Streak:    st.CurrentStreak,
		Timestamp: now.UTC(),
	})
	metrics.StreakResets.WithLabelValues(reason).Inc()

	if err := s.save(&st); err != nil {
		return domain.StreakState{}, err
	}
	log.Printf("[streak] debt force-reset: %s", reason)
	return st, nil
}

// RepairDebt verifies debt-state invariants and repairs drift.
// Progressive-retry policy: after cfg.RepairRetries failed repair
// attempts the debt is force-resolved rather than leaving the user
// stuck behind a frozen streak.
func (s *Service) RepairDebt(now time.Time) (domain.StreakState, error) {
	s.mu.Lock()
	st, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return domain.StreakState{}, err
	}

	if consistent(&st) {
		s.repairFailures = 0
		s.mu.Unlock()
		return st, nil
	}

	// Repair: rebuild the derived fields from the payment list.
	st.FrozenDays = st.OutstandingDebt()
	if st.FrozenDays > domain.FreezeCap {
		st.FrozenDays = domain.FreezeCap
	}
	st.IsFrozen = st.FrozenDays > 0
	if !st.IsFrozen {
		st.WarmUpPayments = nil
	}

	if consistent(&st) {
		s.repairFailures = 0
		err := s.save(&st)
		s.mu.Unlock()
		if err != nil {
			return domain.StreakState{}, err
		}
		log.Printf("[streak] debt state repaired")
		return st, nil
	}

	s.repairFailures++
	failures := s.repairFailures
	if failures > s.cfg.RepairRetries {
		s.repairFailures = 0
	}
	s.mu.Unlock()

	if failures > s.cfg.RepairRetries {
		return s.ExecuteForceResetDebt("auto_resolve_after_repair_failure", now)
	}
	return st, fmt.Errorf("debt state inconsistent, retry %d of %d", failures, s.cfg.RepairRetries)
}

func consistent(st *domain.StreakState) bool {
	if st.IsFrozen != (st.FrozenDays > 0) {
		return false
	}
	if st.FrozenDays > domain.FreezeCap {
		return false
	}
	return st.FrozenDays == st.OutstandingDebt()
}

// resetLocked zeroes the streak, preserving the longest-streak record
// and appending an audit entry. Callers hold mu.
func (s *Service) resetLocked(st *domain.StreakState, reason string, now time.Time) {
	entry := domain.StreakAuditEntry{
		Reason:    reason,
		Streak:    st.CurrentStreak,
		Timestamp: now.UTC(),
	}
	st.ResetHistory = append(st.ResetHistory, entry)
	st.CurrentStreak = 0
	st.StreakStartDate = ""
	st.FrozenDays = 0
	st.IsFrozen = false
	st.WarmUpPayments = nil

	metrics.StreakResets.WithLabelValues(reason).Inc()
	metrics.StreakCurrent.Set(0)
	s.bus.Publish(bus.TopicStreakReset, entry)
	log.Printf("[streak] reset: %s", reason)
}

// ─── Persistence ────────────────────────────────────────────────────────────

func (s *Service) load() (domain.StreakState, error) {
	var st domain.StreakState
	raw, err := s.db.GetState(stateKey)
	if err != nil {
		return st, fmt.Errorf("load streak state: %w", err)
	}
	if raw == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return st, fmt.Errorf("decode streak state: %w", err)
	}
	return st, nil
}

func (s *Service) save(st *domain.StreakState) error {
	st.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode streak state: %w", err)
	}
	if err := s.db.SetState(stateKey, string(raw)); err != nil {
		return fmt.Errorf("save streak state: %w", err)
	}
	s.cache.Set(cacheKey, *st)
	return nil
}
