package challenge

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/rise-habits/rise/internal/app/ledger"
	"github.com/rise-habits/rise/internal/domain"
	"github.com/rise-habits/rise/internal/infra/bus"
	"github.com/rise-habits/rise/internal/infra/memo"
	"github.com/rise-habits/rise/internal/infra/metrics"
	"github.com/rise-habits/rise/internal/infra/sqlite"
)

// Awarder feeds bonus XP back into the ledger. Satisfied by
// *ledger.Service.
type Awarder interface {
	AddXP(amount int, opts ledger.AddXPOptions) (domain.AddXPResult, error)
	TotalXP() int64
}

// TrackerConfig holds the batching and bonus knobs.
type TrackerConfig struct {
	BatchWindow        time.Duration // persistence coalescing window
	BatchMaxSize       int           // persist early past this many updates
	MilestoneBaseBonus int           // base XP for the 25% milestone
	RewardCacheTTL     time.Duration
}

// DefaultTrackerConfig returns the production settings.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		BatchWindow:        250 * time.Millisecond,
		BatchMaxSize:       50,
		MilestoneBaseBonus: 50,
		RewardCacheTTL:     time.Minute,
	}
}

// milestones are checked in ascending order on every update.
var milestones = [...]int{25, 50, 75}

const (
	activeKey    = "challenge_active"
	progressKey  = "challenge_progress"
	historyKey   = "challenge_history"
	finalizedKey = "challenge_last_finalized"
)

// Tracker maintains the active monthly challenge and its progress
// record. All mutations run under one mutex; milestone flags flip
// false-to-true inside the critical section, which is what makes
// replayed or racing updates award each milestone bonus exactly once.
// Bonus awards and event publishes run after the lock is released,
// since the ledger's event handlers call back into this tracker.
type Tracker struct {
	mu      sync.Mutex
	db      *sqlite.DB
	bus     *bus.Bus
	awarder Awarder
	cfg     TrackerConfig

	active   *domain.MonthlyChallenge
	progress *domain.MonthlyChallengeProgress

	dirty int
	timer *time.Timer

	rewardCache *memo.Cache[string, domain.RewardResult]
}

// NewTracker loads any persisted challenge state.
func NewTracker(db *sqlite.DB, b *bus.Bus, awarder Awarder, cfg TrackerConfig) (*Tracker, error) {
	t := &Tracker{
		db:          db,
		bus:         b,
		awarder:     awarder,
		cfg:         cfg,
		rewardCache: memo.New[string, domain.RewardResult](cfg.RewardCacheTTL),
	}

	raw, err := db.GetState(activeKey)
	if err != nil {
		return nil, fmt.Errorf("load active challenge: %w", err)
	}
	if raw != "" {
		var ch domain.MonthlyChallenge
		if err := json.Unmarshal([]byte(raw), &ch); err != nil {
			return nil, fmt.Errorf("decode active challenge: %w", err)
		}
		t.active = &ch
	}

	raw, err = db.GetState(progressKey)
	if err != nil {
		return nil, fmt.Errorf("load challenge progress: %w", err)
	}
	if raw != "" {
		var p domain.MonthlyChallengeProgress
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode challenge progress: %w", err)
		}
		p.InitMaps()
		t.progress = &p
	}
	if t.active != nil && t.progress == nil {
		t.progress = domain.NewChallengeProgress(t.active.ID)
	}
	return t, nil
}

// EnsureActive rolls the challenge over to now's month, finalizing the
// previous month's challenge first if one is still open.
func (t *Tracker) EnsureActive(now time.Time) (domain.MonthlyChallenge, error) {
	t.mu.Lock()
	post, err := t.ensureActiveLocked(now)
	ch := t.active
	t.mu.Unlock()
	if err != nil {
		return domain.MonthlyChallenge{}, err
	}
	for _, fn := range post {
		fn()
	}
	return *ch, nil
}

func (t *Tracker) ensureActiveLocked(now time.Time) ([]func(), error) {
	month := now.UTC().Format("2006-01")
	if t.active != nil && t.active.Month == month {
		return nil, nil
	}

	last, err := t.db.GetState(finalizedKey)
	if err != nil {
		return nil, fmt.Errorf("load finalized marker: %w", err)
	}
	if last == month {
		// This month was already settled; no challenge until the next one.
		return nil, domain.ErrNoActiveChallenge
	}

	var post []func()
	if t.active != nil {
		// Previous month still open: settle it before rolling over.
		_, p, err := t.finalizeLocked(now)
		if err != nil {
			return nil, fmt.Errorf("finalize %s: %w", t.active.Month, err)
		}
		post = p
	}

	history, err := t.loadHistory()
	if err != nil {
		return nil, err
	}
	ch, err := GenerateMonthly(month, consecutiveCompleted(history))
	if err != nil {
		return nil, err
	}
	ch.BaselineSnapshot = map[string]int{"total_xp": int(t.awarder.TotalXP())}

	prog := domain.NewChallengeProgress(ch.ID)
	prog.CurrentStreak = consecutiveCompleted(history)

	t.active = &ch
	t.progress = prog
	if err := t.persistLocked(); err != nil {
		return nil, err
	}
	log.Printf("[challenge] generated %s: %d-star %s", ch.ID, ch.StarLevel, ch.Category)
	return post, nil
}

// UpdateProgress folds one XP event into the active challenge.
// Fire-and-forget: errors are logged, never returned, so a tracking
// failure can never block the award that triggered it. Sources not
// tracked by the active challenge are a no-op.
func (t *Tracker) UpdateProgress(source domain.XPSource, amount int, sourceID string, now time.Time) {
	if amount <= 0 {
		return
	}
	t.mu.Lock()
	post, err := t.updateLocked(source, now)
	t.mu.Unlock()
	if err != nil {
		log.Printf("[challenge] progress update failed: %v", err)
		return
	}
	for _, fn := range post {
		fn()
	}
}

func (t *Tracker) updateLocked(source domain.XPSource, now time.Time) ([]func(), error) {
	post, err := t.ensureActiveLocked(now)
	if err != nil {
		return nil, err
	}

	tracked := false
	for _, req := range t.active.Requirements {
		if req.Key == source {
			tracked = true
			break
		}
	}
	if !tracked {
		return post, nil
	}

	p := t.progress
	p.Progress[source]++

	// Completion: each requirement contributes up to its target.
	done, total := 0, 0
	for _, req := range t.active.Requirements {
		n := p.Progress[req.Key]
		if n > req.Target {
			n = req.Target
		}
		done += n
		total += req.Target
	}
	if total > 0 {
		p.CompletionPercentage = float64(done) / float64(total) * 100
	}

	day := now.UTC().Format("2006-01-02")
	p.ActiveDays[day] = true
	p.DaysActive = len(p.ActiveDays)
	p.DailyConsistency = float64(p.DaysActive) / float64(now.UTC().Day())

	week := "W" + strconv.Itoa((now.UTC().Day()-1)/7+1)
	if p.WeeklyProgress[week] == nil {
		p.WeeklyProgress[week] = make(map[domain.XPSource]int)
	}
	p.WeeklyProgress[week][source]++

	snap := p.DailySnapshots[day]
	snap.Completion = p.CompletionPercentage
	cat := sourceCategory(source)
	found := false
	for _, c := range snap.Categories {
		if c == cat {
			found = true
			break
		}
	}
	if !found {
		snap.Categories = append(snap.Categories, cat)
	}
	p.DailySnapshots[day] = snap
	p.UpdatedAt = now.UTC()

	id := t.active.ID
	completion := p.CompletionPercentage
	post = append(post, func() {
		metrics.ChallengeCompletion.Set(completion)
		t.bus.PublishProgressUpdated(domain.MonthlyProgressUpdatedEvent{
			ChallengeID: id,
			Completion:  completion,
		})
	})

	// Milestones, ascending. The flag flips here, under the lock, so a
	// replayed update can never award the same bonus twice.
	for _, m := range milestones {
		if p.MilestonesReached[m] || completion < float64(m) {
			continue
		}
		p.MilestonesReached[m] = true
		bonus := t.milestoneBonus(m, p)
		milestone := m
		post = append(post, func() {
			t.awardMilestone(id, milestone, bonus, now)
		})
	}

	t.rewardCache.Invalidate(id)
	t.dirty++
	if err := t.maybePersistLocked(); err != nil {
		return nil, err
	}
	return post, nil
}

// milestoneBonus scales the base bonus by the threshold and by how
// consistently active the month has been.
func (t *Tracker) milestoneBonus(m int, p *domain.MonthlyChallengeProgress) int {
	base := t.cfg.MilestoneBaseBonus * m / milestones[0]
	mult := 1.0 + 0.5*p.DailyConsistency
	return int(float64(base) * mult)
}

func (t *Tracker) awardMilestone(challengeID string, m, bonus int, now time.Time) {
	_, err := t.awarder.AddXP(bonus, ledger.AddXPOptions{
		Source:      domain.SourceMilestoneBonus,
		SourceID:    fmt.Sprintf("%s-m%d", challengeID, m),
		Description: fmt.Sprintf("Challenge %d%% milestone", m),
		SkipLimits:  true,
		Now:         now,
	})
	if err != nil {
		log.Printf("[challenge] milestone %d%% award failed: %v", m, err)
		return
	}
	metrics.MilestonesReached.WithLabelValues(strconv.Itoa(m)).Inc()
	t.bus.PublishMilestoneReached(domain.MonthlyMilestoneReachedEvent{
		ChallengeID: challengeID,
		Milestone:   m,
		XPAwarded:   bonus,
	})
}

// Active returns the current challenge and its progress.
func (t *Tracker) Active(now time.Time) (domain.MonthlyChallenge, domain.MonthlyChallengeProgress, error) {
	t.mu.Lock()
	post, err := t.ensureActiveLocked(now)
	if err != nil {
		t.mu.Unlock()
		return domain.MonthlyChallenge{}, domain.MonthlyChallengeProgress{}, err
	}
	ch, p := *t.active, *t.progress
	t.mu.Unlock()
	for _, fn := range post {
		fn()
	}
	return ch, p, nil
}

// PreviewReward computes the reward the active challenge would pay if
// finalized now. Results are memoized until progress next changes.
func (t *Tracker) PreviewReward(now time.Time) (domain.RewardResult, error) {
	ch, p, err := t.Active(now)
	if err != nil {
		return domain.RewardResult{}, err
	}
	if r, ok := t.rewardCache.Get(ch.ID); ok {
		return r, nil
	}
	history, err := t.loadHistory()
	if err != nil {
		return domain.RewardResult{}, err
	}
	r := CalculateReward(ch, p, history)
	t.rewardCache.Set(ch.ID, r)
	return r, nil
}

// Finalize settles the active challenge: computes the reward, appends
// the month to history, logs the reward for analytics, awards the XP,
// and clears the active slot. A month can be finalized once.
func (t *Tracker) Finalize(now time.Time) (domain.RewardResult, error) {
	t.mu.Lock()
	r, post, err := t.finalizeLocked(now)
	t.mu.Unlock()
	if err != nil {
		return domain.RewardResult{}, err
	}
	for _, fn := range post {
		fn()
	}
	return r, nil
}

func (t *Tracker) finalizeLocked(now time.Time) (domain.RewardResult, []func(), error) {
	last, err := t.db.GetState(finalizedKey)
	if err != nil {
		return domain.RewardResult{}, nil, fmt.Errorf("load finalized marker: %w", err)
	}
	if t.active == nil {
		if last == now.UTC().Format("2006-01") {
			return domain.RewardResult{}, nil, domain.ErrChallengeFinalized
		}
		return domain.RewardResult{}, nil, domain.ErrNoActiveChallenge
	}
	if last == t.active.Month {
		return domain.RewardResult{}, nil, domain.ErrChallengeFinalized
	}

	ch, p := *t.active, *t.progress
	history, err := t.loadHistory()
	if err != nil {
		return domain.RewardResult{}, nil, err
	}

	r := CalculateReward(ch, p, history)

	history = append(history, domain.ChallengeHistoryEntry{
		Month:      ch.Month,
		Category:   ch.Category,
		Completion: p.CompletionPercentage,
		Completed:  p.CompletionPercentage >= completionFloor,
		Perfect:    p.CompletionPercentage >= 100,
	})
	if err := t.saveHistory(history); err != nil {
		return domain.RewardResult{}, nil, err
	}
	if _, err := t.db.InsertRewardHistory(ch.Month, ch.StarLevel, r); err != nil {
		return domain.RewardResult{}, nil, fmt.Errorf("log reward: %w", err)
	}
	if err := t.db.SetState(finalizedKey, ch.Month); err != nil {
		return domain.RewardResult{}, nil, fmt.Errorf("save finalized marker: %w", err)
	}

	t.active = nil
	t.progress = nil
	if err := t.persistLocked(); err != nil {
		return domain.RewardResult{}, nil, err
	}
	t.rewardCache.Invalidate(ch.ID)

	post := []func(){func() {
		metrics.RewardsGranted.WithLabelValues(string(r.RewardTier)).Inc()
		if _, err := t.awarder.AddXP(r.TotalXPAwarded, ledger.AddXPOptions{
			Source:      domain.SourceChallengeReward,
			SourceID:    ch.ID,
			Description: fmt.Sprintf("Monthly challenge %s reward", ch.Month),
			SkipLimits:  true,
			Now:         now,
		}); err != nil {
			log.Printf("[challenge] reward award failed: %v", err)
		}
	}}
	log.Printf("[challenge] finalized %s: %.0f%% complete, %d XP", ch.ID, p.CompletionPercentage, r.TotalXPAwarded)
	return r, post, nil
}

// History returns the finished-month summaries, oldest first.
func (t *Tracker) History() ([]domain.ChallengeHistoryEntry, error) {
	return t.loadHistory()
}

// Close flushes any pending persistence.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.dirty > 0 {
		if err := t.persistLocked(); err != nil {
			log.Printf("[challenge] final persist failed: %v", err)
		}
	}
}

// ─── Persistence ────────────────────────────────────────────────────────────

// maybePersistLocked coalesces rapid updates into one write: persist
// immediately past the batch cap, otherwise arm the window timer.
func (t *Tracker) maybePersistLocked() error {
	if t.dirty >= t.cfg.BatchMaxSize {
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		return t.persistLocked()
	}
	if t.timer == nil {
		t.timer = time.AfterFunc(t.cfg.BatchWindow, t.flush)
	}
	return nil
}

func (t *Tracker) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = nil
	if t.dirty == 0 {
		return
	}
	if err := t.persistLocked(); err != nil {
		log.Printf("[challenge] persist failed: %v", err)
	}
}

func (t *Tracker) persistLocked() error {
	if t.active == nil {
		if err := t.db.SetState(activeKey, ""); err != nil {
			return fmt.Errorf("clear active challenge: %w", err)
		}
		if err := t.db.SetState(progressKey, ""); err != nil {
			return fmt.Errorf("clear challenge progress: %w", err)
		}
		t.dirty = 0
		return nil
	}

	raw, err := json.Marshal(t.active)
	if err != nil {
		return fmt.Errorf("encode active challenge: %w", err)
	}
	if err := t.db.SetState(activeKey, string(raw)); err != nil {
		return fmt.Errorf("save active challenge: %w", err)
	}

	raw, err = json.Marshal(t.progress)
	if err != nil {
		return fmt.Errorf("encode challenge progress: %w", err)
	}
	if err := t.db.SetState(progressKey, string(raw)); err != nil {
		return fmt.Errorf("save challenge progress: %w", err)
	}
	t.dirty = 0
	return nil
}

func (t *Tracker) loadHistory() ([]domain.ChallengeHistoryEntry, error) {
	raw, err := t.db.GetState(historyKey)
	if err != nil {
		return nil, fmt.Errorf("load challenge history: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var h []domain.ChallengeHistoryEntry
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("decode challenge history: %w", err)
	}
	return h, nil
}

func (t *Tracker) saveHistory(h []domain.ChallengeHistoryEntry) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode challenge history: %w", err)
	}
	if err := t.db.SetState(historyKey, string(raw)); err != nil {
		return fmt.Errorf("save challenge history: %w", err)
	}
	return nil
}

// consecutiveCompleted counts the run of completed months at the tail
// of history; it seeds both the next star level and the streak bonus.
func consecutiveCompleted(history []domain.ChallengeHistoryEntry) int {
	n := 0
	for i := len(history) - 1; i >= 0 && history[i].Completed; i-- {
		n++
	}
	return n
}
