package challenge

import (
	"testing"

	"github.com/rise-habits/rise/internal/domain"
)

func threeStarChallenge() domain.MonthlyChallenge {
	return domain.MonthlyChallenge{
		ID:           "challenge-2026-08",
		Month:        "2026-08",
		StarLevel:    3,
		BaseXPReward: BaseRewardForStar(3),
		Category:     domain.CategoryGoals,
	}
}

func progressAt(pct float64) domain.MonthlyChallengeProgress {
	p := domain.NewChallengeProgress("challenge-2026-08")
	p.CompletionPercentage = pct
	return *p
}

func TestBaseRewardTable(t *testing.T) {
	want := map[int]int{1: 500, 2: 750, 3: 1125, 4: 1688, 5: 2532}
	for star, base := range want {
		if got := BaseRewardForStar(star); got != base {
			t.Errorf("star %d: expected %d, got %d", star, base, got)
		}
	}
	if BaseRewardForStar(0) != 500 || BaseRewardForStar(9) != 2532 {
		t.Error("out-of-range star levels should clamp")
	}
}

func TestCompletionBonus(t *testing.T) {
	ch := threeStarChallenge()

	// Below the 70% floor there is no bonus.
	r := CalculateReward(ch, progressAt(69), nil)
	if r.CompletionBonus != 0 {
		t.Errorf("expected 0 below floor, got %d", r.CompletionBonus)
	}

	// 85% sits halfway between floor and full: half of 20% of 1125.
	r = CalculateReward(ch, progressAt(85), nil)
	if r.CompletionBonus != 112 {
		t.Errorf("expected 112 at 85%%, got %d", r.CompletionBonus)
	}

	// Full completion pays exactly 20% of base.
	r = CalculateReward(ch, progressAt(100), nil)
	if r.CompletionBonus != 225 {
		t.Errorf("expected 225 at 100%%, got %d", r.CompletionBonus)
	}
}

func TestStreakBonus(t *testing.T) {
	ch := threeStarChallenge()

	p := progressAt(75)
	p.CurrentStreak = 1
	if r := CalculateReward(ch, p, nil); r.StreakBonus != 0 {
		t.Errorf("a single month is not a run, got %d", r.StreakBonus)
	}

	p.CurrentStreak = 4
	if r := CalculateReward(ch, p, nil); r.StreakBonus != 400 {
		t.Errorf("expected 400 for a 4-month run, got %d", r.StreakBonus)
	}

	p.CurrentStreak = 20
	if r := CalculateReward(ch, p, nil); r.StreakBonus != 1200 {
		t.Errorf("expected the 1200 cap, got %d", r.StreakBonus)
	}
}

func TestMilestoneBonuses(t *testing.T) {
	ch := threeStarChallenge()

	// First-ever completion.
	r := CalculateReward(ch, progressAt(80), nil)
	if r.MilestoneBonus != 150 {
		t.Errorf("expected first-completion bonus 150, got %d", r.MilestoneBonus)
	}

	// With a completed month on record it is no longer the first.
	history := []domain.ChallengeHistoryEntry{
		{Month: "2026-06", Category: domain.CategoryHabits, Completion: 90, Completed: true},
	}
	r = CalculateReward(ch, progressAt(80), history)
	if r.MilestoneBonus != 0 {
		t.Errorf("expected no milestone bonus, got %d", r.MilestoneBonus)
	}

	// Two prior perfect months in the category plus a perfect quarter.
	history = []domain.ChallengeHistoryEntry{
		{Month: "2026-06", Category: domain.CategoryGoals, Completion: 100, Completed: true, Perfect: true},
		{Month: "2026-07", Category: domain.CategoryGoals, Completion: 100, Completed: true, Perfect: true},
	}
	r = CalculateReward(ch, progressAt(100), history)
	if r.MilestoneBonus != 800 {
		t.Errorf("expected mastery 300 + quarter 500, got %d", r.MilestoneBonus)
	}
}

// The contrived worst case: every bonus at once clamps to 1.5x base.
func TestBalanceCapClamps(t *testing.T) {
	ch := threeStarChallenge()

	p := progressAt(100)
	p.CurrentStreak = 12
	history := []domain.ChallengeHistoryEntry{
		{Month: "2026-06", Category: domain.CategoryGoals, Completion: 100, Completed: true, Perfect: true},
		{Month: "2026-07", Category: domain.CategoryGoals, Completion: 100, Completed: true, Perfect: true},
	}

	r := CalculateReward(ch, p, history)
	if r.TotalXPAwarded != 1687 {
		t.Errorf("expected clamp to 1125*1.5 = 1687, got %d", r.TotalXPAwarded)
	}
	if r.IsBalanced {
		t.Error("a clamped result should be flagged as unbalanced")
	}
	if r.BalanceNote == "" {
		t.Error("expected an advisory balance note")
	}
	if r.RewardTier != domain.TierExceptional {
		t.Errorf("expected exceptional tier, got %s", r.RewardTier)
	}
}

func TestRewardTiers(t *testing.T) {
	ch := threeStarChallenge()

	if r := CalculateReward(ch, progressAt(60), nil); r.RewardTier != domain.TierStandard {
		t.Errorf("base-only should be standard, got %s", r.RewardTier)
	}
	if r := CalculateReward(ch, progressAt(100), nil); r.RewardTier != domain.TierBonus {
		t.Errorf("completion bonus alone should be bonus tier, got %s", r.RewardTier)
	}
}

func TestGenerateMonthlyDeterministic(t *testing.T) {
	a, err := GenerateMonthly("2026-08", 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := GenerateMonthly("2026-08", 0)

	if a.ID != "challenge-2026-08" || a.ID != b.ID || a.Category != b.Category {
		t.Errorf("generation must be deterministic: %+v vs %+v", a, b)
	}
	if a.StarLevel != 1 || a.BaseXPReward != 500 {
		t.Errorf("fresh history means 1 star: %+v", a)
	}
	if len(a.Requirements) == 0 {
		t.Error("expected requirements")
	}

	c, _ := GenerateMonthly("2026-08", 7)
	if c.StarLevel != 5 || c.BaseXPReward != 2532 {
		t.Errorf("long runs clamp at 5 stars: %+v", c)
	}

	if _, err := GenerateMonthly("not-a-month", 0); err == nil {
		t.Error("expected parse error")
	}
}
