package adapter_test

import (
	"testing"
	"time"

	"github.com/rise-habits/rise/internal/app/adapter"
	"github.com/rise-habits/rise/internal/app/challenge"
	"github.com/rise-habits/rise/internal/app/ledger"
	"github.com/rise-habits/rise/internal/domain"
	"github.com/rise-habits/rise/internal/infra/bus"
	"github.com/rise-habits/rise/internal/infra/sqlite"
)

type nopAwarder struct{}

func (nopAwarder) AddXP(amount int, opts ledger.AddXPOptions) (domain.AddXPResult, error) {
	return domain.AddXPResult{Success: true, XPGained: amount}, nil
}
func (nopAwarder) TotalXP() int64 { return 0 }

func setup(t *testing.T) (*bus.Bus, *challenge.Tracker, *adapter.Adapter) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	b := bus.New()
	tr, err := challenge.NewTracker(db, b, nopAwarder{}, challenge.DefaultTrackerConfig())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	t.Cleanup(tr.Close)

	cfg := adapter.DefaultConfig()
	cfg.DebounceWindow = 20 * time.Millisecond
	a := adapter.New(b, tr, cfg)
	t.Cleanup(a.Close)
	return b, tr, a
}

func gained(src domain.XPSource, amount int, at time.Time) domain.XPGainedEvent {
	return domain.XPGainedEvent{
		Transaction: domain.XPTransaction{
			ID:     "tx",
			Amount: amount,
			Source: src,
			Date:   at,
		},
	}
}

func TestForwardsAfterDebounce(t *testing.T) {
	b, tr, _ := setup(t)
	at := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	b.PublishXPGained(gained(domain.SourceGoalProgress, 15, at))
	b.PublishXPGained(gained(domain.SourceGoalProgress, 15, at))

	// Inside the window nothing has been forwarded yet.
	_, p, err := tr.Active(at)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if p.Progress[domain.SourceGoalProgress] != 0 {
		t.Errorf("expected no forwarding inside the window, got %d", p.Progress[domain.SourceGoalProgress])
	}

	time.Sleep(80 * time.Millisecond)

	_, p, _ = tr.Active(at)
	if p.Progress[domain.SourceGoalProgress] != 2 {
		t.Errorf("expected both events forwarded, got %d", p.Progress[domain.SourceGoalProgress])
	}
}

func TestSystemSourcesIgnored(t *testing.T) {
	b, tr, a := setup(t)
	at := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	b.PublishXPGained(gained(domain.SourceChallengeReward, 500, at))
	b.PublishXPGained(gained(domain.SourceMilestoneBonus, 50, at))
	b.PublishXPGained(gained(domain.SourceReversal, -20, at))
	a.Close()

	_, p, _ := tr.Active(at)
	if len(p.Progress) != 0 {
		t.Errorf("system sources must not advance challenges: %+v", p.Progress)
	}
}

func TestCloseFlushesBuffer(t *testing.T) {
	b, tr, a := setup(t)
	at := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	b.PublishXPGained(gained(domain.SourceGoalProgress, 15, at))
	a.Close()

	_, p, _ := tr.Active(at)
	if p.Progress[domain.SourceGoalProgress] != 1 {
		t.Errorf("teardown must flush pending events, got %d", p.Progress[domain.SourceGoalProgress])
	}
}
