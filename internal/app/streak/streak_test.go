package streak_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rise-habits/rise/internal/app/streak"
	"github.com/rise-habits/rise/internal/domain"
	"github.com/rise-habits/rise/internal/infra/bus"
	"github.com/rise-habits/rise/internal/infra/sqlite"
)

func testService(t *testing.T) (*streak.Service, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return streak.NewService(db, bus.New(), streak.DefaultConfig()), db
}

// day returns noon UTC on the given August 2026 date.
func day(d int) time.Time {
	return time.Date(2026, 8, d, 12, 0, 0, 0, time.UTC)
}

func TestConsecutiveEntries(t *testing.T) {
	svc, _ := testService(t)

	for d := 1; d <= 5; d++ {
		st, err := svc.RecordEntry(day(d))
		if err != nil {
			t.Fatalf("day %d: %v", d, err)
		}
		if st.CurrentStreak != d {
			t.Errorf("day %d: expected streak %d, got %d", d, d, st.CurrentStreak)
		}
	}

	st, _ := svc.State(day(5))
	if st.Status() != domain.StreakActive {
		t.Errorf("expected ACTIVE, got %s", st.Status())
	}
	if st.LongestStreak != 5 || st.StreakStartDate != "2026-08-01" {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestBackdatedEntryKeepsStreak(t *testing.T) {
	svc, _ := testService(t)

	for d := 6; d <= 10; d++ {
		_, _ = svc.RecordEntry(day(d))
	}

	// An entry dated inside the covered range must not move the record
	// backwards or extend the streak.
	st, err := svc.RecordEntry(day(2))
	if err != nil {
		t.Fatalf("backdated entry: %v", err)
	}
	if st.CurrentStreak != 5 || st.LastEntryDate != "2026-08-10" {
		t.Errorf("expected streak 5 with last entry 2026-08-10, got %+v", st)
	}

	// The next recomputation must not count the covered days as missed.
	st, err = svc.Recalculate(day(10))
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if st.CurrentStreak != 5 || len(st.ResetHistory) != 0 {
		t.Errorf("live streak lost after backdated entry: %+v", st)
	}
}

func TestMissedDaysFreeze(t *testing.T) {
	svc, _ := testService(t)

	_, _ = svc.RecordEntry(day(1))
	_, _ = svc.RecordEntry(day(2))

	// Two missed days (3rd and 4th) accrue as debt; streak held.
	st, err := svc.Recalculate(day(5))
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if st.Status() != domain.StreakFrozen {
		t.Errorf("expected FROZEN, got %s", st.Status())
	}
	if st.FrozenDays != 2 || st.CurrentStreak != 2 {
		t.Errorf("expected 2 frozen days with streak held at 2, got %+v", st)
	}

	// Third missed day reaches the cap.
	st, _ = svc.Recalculate(day(6))
	if st.Status() != domain.StreakAtRiskOfReset {
		t.Errorf("expected AT_RISK_OF_RESET, got %s", st.Status())
	}
}

func TestFreezeCapForcesReset(t *testing.T) {
	svc, _ := testService(t)

	for d := 1; d <= 7; d++ {
		_, _ = svc.RecordEntry(day(d))
	}

	// Four missed days exceed the cap of three.
	st, err := svc.Recalculate(day(12))
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if st.CurrentStreak != 0 {
		t.Errorf("expected reset to 0, got %d", st.CurrentStreak)
	}
	if st.LongestStreak != 7 {
		t.Errorf("longest streak must survive a reset, got %d", st.LongestStreak)
	}
	if st.Status() != domain.StreakInactive {
		t.Errorf("expected INACTIVE after reset, got %s", st.Status())
	}
	if len(st.ResetHistory) != 1 || st.ResetHistory[0].Reason != "freeze_cap_exceeded" {
		t.Errorf("expected one audit entry, got %+v", st.ResetHistory)
	}
	if st.ResetHistory[0].Streak != 7 {
		t.Errorf("audit entry should record the streak at reset, got %d", st.ResetHistory[0].Streak)
	}
}

func TestEntryWhileFrozenRefused(t *testing.T) {
	svc, _ := testService(t)

	_, _ = svc.RecordEntry(day(1))
	_, _ = svc.Recalculate(day(4)) // 2 missed days

	_, err := svc.RecordEntry(day(4))
	if !errors.Is(err, domain.ErrEntryWhileFrozen) {
		t.Errorf("expected ErrEntryWhileFrozen, got %v", err)
	}
}

func TestWarmUpRepaymentUnfreezes(t *testing.T) {
	svc, _ := testService(t)

	_, _ = svc.RecordEntry(day(1))
	_, _ = svc.RecordEntry(day(2))
	_, _ = svc.Recalculate(day(5)) // missed 3rd and 4th

	st, err := svc.ApplySingleWarmUpPayment(day(5))
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if st.FrozenDays != 1 || !st.IsFrozen {
		t.Errorf("one missed day should remain, got %+v", st)
	}
	if len(st.WarmUpHistory) != 1 || st.WarmUpHistory[0].MissedDate != "2026-08-03" {
		t.Errorf("oldest date repays first, got %+v", st.WarmUpHistory)
	}

	st, err = svc.ApplySingleWarmUpPayment(day(5))
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if st.IsFrozen || st.FrozenDays != 0 {
		t.Errorf("full repayment should unfreeze immediately, got %+v", st)
	}

	// The streak now continues from its prior value, not from zero.
	st, err = svc.RecordEntry(day(5))
	if err != nil {
		t.Fatalf("entry after repayment: %v", err)
	}
	if st.CurrentStreak != 3 {
		t.Errorf("expected streak to continue at 3, got %d", st.CurrentStreak)
	}
}

func TestWarmUpWithoutDebt(t *testing.T) {
	svc, _ := testService(t)
	_, _ = svc.RecordEntry(day(1))

	_, err := svc.ApplySingleWarmUpPayment(day(1))
	if !errors.Is(err, domain.ErrNoOutstandingDebt) {
		t.Errorf("expected ErrNoOutstandingDebt, got %v", err)
	}
}

func TestBonusEntryBadges(t *testing.T) {
	svc, _ := testService(t)

	_, _ = svc.RecordEntry(day(1))

	var st domain.StreakState
	for i := 0; i < 10; i++ {
		st, _ = svc.RecordEntry(day(1)) // same-day repeats
	}

	if st.StarCount != 1 {
		t.Errorf("expected star at first bonus entry, got %d", st.StarCount)
	}
	if st.FlameCount != 1 {
		t.Errorf("expected flame at fifth bonus entry, got %d", st.FlameCount)
	}
	if st.CrownCount != 1 {
		t.Errorf("expected crown at tenth bonus entry, got %d", st.CrownCount)
	}
	if st.CurrentStreak != 1 {
		t.Errorf("bonus entries must not extend the streak, got %d", st.CurrentStreak)
	}

	// A new day resets the per-day bonus count; lifetime badges keep.
	_, _ = svc.RecordEntry(day(2))
	st, _ = svc.RecordEntry(day(2))
	if st.StarCount != 2 || st.FlameCount != 1 {
		t.Errorf("expected second star only, got stars=%d flames=%d", st.StarCount, st.FlameCount)
	}
}

func TestForceResetDebt(t *testing.T) {
	svc, _ := testService(t)

	_, _ = svc.RecordEntry(day(1))
	_, _ = svc.Recalculate(day(4))

	st, err := svc.ExecuteForceResetDebt("support_request", day(4))
	if err != nil {
		t.Fatalf("force reset: %v", err)
	}
	if st.IsFrozen || st.FrozenDays != 0 || len(st.WarmUpPayments) != 0 {
		t.Errorf("expected debt cleared, got %+v", st)
	}
	if st.CurrentStreak != 1 {
		t.Errorf("force reset clears debt, not the streak: %+v", st)
	}
	if len(st.ResetHistory) != 1 || st.ResetHistory[0].Reason != "support_request" {
		t.Errorf("expected audit entry, got %+v", st.ResetHistory)
	}
}

func TestRepairDebtFixesDrift(t *testing.T) {
	svc, db := testService(t)

	_, _ = svc.RecordEntry(day(1))

	// Corrupt the derived fields behind the service's back.
	var st domain.StreakState
	raw, _ := db.GetState("streak_state")
	_ = json.Unmarshal([]byte(raw), &st)
	st.IsFrozen = true
	st.FrozenDays = 9
	out, _ := json.Marshal(st)
	_ = db.SetState("streak_state", string(out))

	repaired, err := svc.RepairDebt(day(2))
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if repaired.IsFrozen || repaired.FrozenDays != 0 {
		t.Errorf("expected derived fields rebuilt, got %+v", repaired)
	}
}
