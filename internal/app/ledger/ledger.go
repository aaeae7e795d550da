// Package ledger implements the XP ledger: an append-only transaction
// log with anti-abuse limits, a cached running total, the level curve,
// and batched event emission for downstream consumers.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rise-habits/rise/internal/domain"
	"github.com/rise-habits/rise/internal/infra/bus"
	"github.com/rise-habits/rise/internal/infra/metrics"
	"github.com/rise-habits/rise/internal/infra/sqlite"
)

// Config holds the anti-abuse limits and batching knobs.
type Config struct {
	DailyXPCap            int           // max XP per calendar day
	MaxSourceShare        float64       // max share of the daily cap one source may fill
	JournalBaseXP         int           // full value for early journal entries
	JournalFullPositions  int           // positions paid at full value
	JournalBonusXP        int           // reduced value for the bonus range
	JournalBonusPositions int           // positions paid at bonus value
	BatchWindow           time.Duration // coalescing window for batch-committed events
	BatchMaxSize          int           // flush early past this many events
	RetentionMonths       int           // ledger rows older than this are pruned
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		DailyXPCap:            500,
		MaxSourceShare:        0.8,
		JournalBaseXP:         20,
		JournalFullPositions:  3,
		JournalBonusXP:        8,
		JournalBonusPositions: 10,
		BatchWindow:           250 * time.Millisecond,
		BatchMaxSize:          50,
		RetentionMonths:       24,
	}
}

// AddXPOptions qualifies an award.
type AddXPOptions struct {
	Source      domain.XPSource
	SourceID    string
	Description string
	SkipLimits  bool      // system-generated rewards bypass the anti-abuse policy
	Now         time.Time // zero means time.Now
}

const totalKey = "xp_total"

// Service serializes all ledger mutations through one mutex. The
// level-up exactly-once guarantee depends on that serialization: the
// crossing is detected inside the critical section, so two racing
// awards can never both observe the same previous level.
type Service struct {
	mu    sync.Mutex
	db    *sqlite.DB
	bus   *bus.Bus
	cfg   Config
	total int64

	batchMu    sync.Mutex
	batch      []domain.XPTransaction
	batchLevel bool
	batchTimer *time.Timer
}

// NewService opens the ledger over db. The cached running total is
// loaded from the state store, falling back to a full ledger sum on
// first run.
func NewService(db *sqlite.DB, b *bus.Bus, cfg Config) (*Service, error) {
	s := &Service{db: db, bus: b, cfg: cfg}

	v, err := db.GetState(totalKey)
	if err != nil {
		return nil, fmt.Errorf("load xp total: %w", err)
	}
	if v == "" {
		s.total, err = db.SumAll()
		if err != nil {
			return nil, fmt.Errorf("sum ledger: %w", err)
		}
		if err := db.SetState(totalKey, strconv.FormatInt(s.total, 10)); err != nil {
			return nil, fmt.Errorf("save xp total: %w", err)
		}
	} else {
		s.total, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse xp total %q: %w", v, err)
		}
	}
	return s, nil
}

// AddXP validates amount against the anti-abuse policy, appends a
// transaction, and updates the running total and level. A policy
// rejection returns Success=false with unchanged totals and a nil
// error; rejection is a normal outcome, not a failure.
func (s *Service) AddXP(amount int, opts AddXPOptions) (domain.AddXPResult, error) {
	if amount == 0 {
		return domain.AddXPResult{}, domain.ErrZeroAmount
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	day := now.UTC().Format("2006-01-02")

	s.mu.Lock()
	res, events, err := s.addLocked(amount, opts, now, day)
	s.mu.Unlock()
	if err != nil {
		return domain.AddXPResult{}, err
	}

	// Events fire outside the lock: milestone handlers feed bonus XP
	// back into this service and must not deadlock.
	for _, fire := range events {
		fire()
	}
	return res, nil
}

func (s *Service) addLocked(amount int, opts AddXPOptions, now time.Time, day string) (domain.AddXPResult, []func(), error) {
	source := opts.Source
	prevInfo := LevelInfoForXP(s.total)

	// Reversals and system rewards bypass the policy.
	if amount > 0 && !opts.SkipLimits {
		if source == domain.SourceJournalEntry {
			adjusted, reject, err := s.journalPosition(day, amount)
			if err != nil {
				return domain.AddXPResult{}, nil, err
			}
			if reject != domain.RejectNone {
				return s.rejected(source, reject, prevInfo), nil, nil
			}
			if adjusted != amount {
				amount = adjusted
				source = domain.SourceJournalBonus
			}
		}

		todaySum, err := s.db.SumForDay(day)
		if err != nil {
			return domain.AddXPResult{}, nil, fmt.Errorf("sum day: %w", err)
		}
		if todaySum+amount > s.cfg.DailyXPCap {
			return s.rejected(source, domain.RejectDailyCap, prevInfo), nil, nil
		}

		srcSum, err := s.db.SumForDaySource(day, source)
		if err != nil {
			return domain.AddXPResult{}, nil, fmt.Errorf("sum day source: %w", err)
		}
		shareCap := int(s.cfg.MaxSourceShare * float64(s.cfg.DailyXPCap))
		if srcSum+amount > shareCap {
			return s.rejected(source, domain.RejectSourceShare, prevInfo), nil, nil
		}
	}

	tx := domain.XPTransaction{
		ID:          uuid.NewString(),
		Amount:      amount,
		Source:      source,
		SourceID:    opts.SourceID,
		Date:        now,
		Description: opts.Description,
	}
	if err := s.db.AppendTransaction(tx); err != nil {
		return domain.AddXPResult{}, nil, fmt.Errorf("append transaction: %w", err)
	}

	s.total += int64(amount)
	if err := s.db.SetState(totalKey, strconv.FormatInt(s.total, 10)); err != nil {
		return domain.AddXPResult{}, nil, fmt.Errorf("save xp total: %w", err)
	}

	newLevel := LevelForXP(s.total)
	leveledUp := newLevel > prevInfo.Level

	res := domain.AddXPResult{
		Success:       true,
		XPGained:      amount,
		TotalXP:       s.total,
		LeveledUp:     leveledUp,
		PreviousLevel: prevInfo.Level,
		NewLevel:      newLevel,
	}

	if amount > 0 {
		metrics.XPAwarded.WithLabelValues(string(source)).Add(float64(amount))
	}

	total := s.total
	events := []func(){
		func() {
			s.bus.PublishXPGained(domain.XPGainedEvent{Transaction: tx, TotalXP: total})
			s.enqueue(tx, leveledUp)
		},
	}
	if leveledUp {
		metrics.LevelUps.Inc()
		prev := prevInfo.Level
		events = append(events, func() {
			s.bus.PublishLevelUp(domain.LevelUpEvent{
				PreviousLevel: prev,
				NewLevel:      newLevel,
				Milestone:     newLevel%10 == 0,
			})
		})
	}
	return res, events, nil
}

// journalPosition returns the value of the next journal entry today:
// full value for the first positions, a reduced bonus value for the
// next range, and a spam rejection past that.
func (s *Service) journalPosition(day string, base int) (int, domain.RejectReason, error) {
	full, err := s.db.CountForDaySource(day, domain.SourceJournalEntry)
	if err != nil {
		return 0, domain.RejectNone, fmt.Errorf("count journal entries: %w", err)
	}
	bonus, err := s.db.CountForDaySource(day, domain.SourceJournalBonus)
	if err != nil {
		return 0, domain.RejectNone, fmt.Errorf("count bonus entries: %w", err)
	}

	pos := full + bonus + 1
	switch {
	case pos <= s.cfg.JournalFullPositions:
		return base, domain.RejectNone, nil
	case pos <= s.cfg.JournalFullPositions+s.cfg.JournalBonusPositions:
		return s.cfg.JournalBonusXP, domain.RejectNone, nil
	default:
		return 0, domain.RejectSpamPosition, nil
	}
}

func (s *Service) rejected(source domain.XPSource, reason domain.RejectReason, info domain.LevelInfo) domain.AddXPResult {
	metrics.XPRejected.WithLabelValues(string(source), string(reason)).Inc()
	return domain.AddXPResult{
		TotalXP:       s.total,
		PreviousLevel: info.Level,
		NewLevel:      info.Level,
		Reason:        reason,
	}
}

// Reverse appends a compensating negative transaction for txID.
// A transaction can be reversed at most once, and reversals themselves
// cannot be reversed.
func (s *Service) Reverse(txID, reason string) (domain.AddXPResult, error) {
	s.mu.Lock()
	res, rev, err := s.reverseLocked(txID, reason)
	s.mu.Unlock()
	if err != nil {
		return domain.AddXPResult{}, err
	}
	s.bus.PublishXPGained(domain.XPGainedEvent{Transaction: rev, TotalXP: res.TotalXP})
	return res, nil
}

func (s *Service) reverseLocked(txID, reason string) (domain.AddXPResult, domain.XPTransaction, error) {
	var none domain.XPTransaction

	tx, err := s.db.GetTransaction(txID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AddXPResult{}, none, domain.ErrTransactionMissing
	}
	if err != nil {
		return domain.AddXPResult{}, none, fmt.Errorf("load transaction: %w", err)
	}
	if tx.ReversalOf != "" || tx.Amount < 0 {
		return domain.AddXPResult{}, none, domain.ErrAlreadyReversed
	}
	reversed, err := s.db.HasReversal(txID)
	if err != nil {
		return domain.AddXPResult{}, none, fmt.Errorf("check reversal: %w", err)
	}
	if reversed {
		return domain.AddXPResult{}, none, domain.ErrAlreadyReversed
	}

	prev := LevelForXP(s.total)
	rev := domain.XPTransaction{
		ID:          uuid.NewString(),
		Amount:      -tx.Amount,
		Source:      domain.SourceReversal,
		SourceID:    tx.SourceID,
		Date:        time.Now().UTC(),
		Description: reason,
		ReversalOf:  txID,
	}
	if err := s.db.AppendTransaction(rev); err != nil {
		return domain.AddXPResult{}, none, fmt.Errorf("append reversal: %w", err)
	}

	s.total -= int64(tx.Amount)
	if err := s.db.SetState(totalKey, strconv.FormatInt(s.total, 10)); err != nil {
		return domain.AddXPResult{}, none, fmt.Errorf("save xp total: %w", err)
	}
	metrics.XPReversed.Inc()

	return domain.AddXPResult{
		Success:       true,
		XPGained:      rev.Amount,
		TotalXP:       s.total,
		PreviousLevel: prev,
		NewLevel:      LevelForXP(s.total),
	}, rev, nil
}

// TotalXP returns the cached lifetime total.
func (s *Service) TotalXP() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Level returns the full level record for the current total.
func (s *Service) Level() domain.LevelInfo {
	return LevelInfoForXP(s.TotalXP())
}

// TodayXP returns the signed XP total for now's calendar day.
func (s *Service) TodayXP(now time.Time) (int, error) {
	return s.db.SumForDay(now.UTC().Format("2006-01-02"))
}

// History returns recent transactions, newest first.
func (s *Service) History(limit int) ([]domain.XPTransaction, error) {
	return s.db.Transactions(limit)
}

// Prune removes ledger rows older than the retention window. The
// lifetime total is unaffected: it lives in the state store, not in
// the retained rows.
func (s *Service) Prune(now time.Time) (int64, error) {
	cutoff := now.AddDate(0, -s.cfg.RetentionMonths, 0)
	n, err := s.db.PruneBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	if n > 0 {
		log.Printf("[ledger] pruned %d transactions older than %s", n, cutoff.Format("2006-01-02"))
	}
	return n, nil
}

// Close flushes any pending batch so no coalesced event is dropped on
// teardown.
func (s *Service) Close() {
	s.batchMu.Lock()
	if s.batchTimer != nil {
		s.batchTimer.Stop()
		s.batchTimer = nil
	}
	ev, ok := s.drainLocked()
	s.batchMu.Unlock()
	if ok {
		s.publishBatch(ev)
	}
}

// ─── Batching ───────────────────────────────────────────────────────────────

func (s *Service) enqueue(tx domain.XPTransaction, leveledUp bool) {
	s.batchMu.Lock()
	s.batch = append(s.batch, tx)
	s.batchLevel = s.batchLevel || leveledUp
	if len(s.batch) >= s.cfg.BatchMaxSize {
		if s.batchTimer != nil {
			s.batchTimer.Stop()
			s.batchTimer = nil
		}
		ev, _ := s.drainLocked()
		s.batchMu.Unlock()
		s.publishBatch(ev)
		return
	}
	if s.batchTimer == nil {
		s.batchTimer = time.AfterFunc(s.cfg.BatchWindow, s.flushBatch)
	}
	s.batchMu.Unlock()
}

func (s *Service) flushBatch() {
	s.batchMu.Lock()
	s.batchTimer = nil
	ev, ok := s.drainLocked()
	s.batchMu.Unlock()
	if ok {
		s.publishBatch(ev)
	}
}

// drainLocked coalesces the buffered transactions into one
// batch-committed event. Callers hold batchMu; publishing happens
// after the lock is released since handlers may award XP themselves.
func (s *Service) drainLocked() (domain.XPBatchCommittedEvent, bool) {
	if len(s.batch) == 0 {
		return domain.XPBatchCommittedEvent{}, false
	}
	ev := domain.XPBatchCommittedEvent{
		Count:     len(s.batch),
		PerSource: make(map[domain.XPSource]int),
		LeveledUp: s.batchLevel,
	}
	for _, tx := range s.batch {
		ev.TotalAmount += tx.Amount
		ev.PerSource[tx.Source] += tx.Amount
	}
	s.batch = nil
	s.batchLevel = false
	return ev, true
}

func (s *Service) publishBatch(ev domain.XPBatchCommittedEvent) {
	metrics.BatchFlushSize.Observe(float64(ev.Count))
	s.bus.PublishXPBatchCommitted(ev)
}
