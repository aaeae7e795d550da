package challenge

import (
	"fmt"

	"github.com/rise-habits/rise/internal/domain"
)

// Reward policy constants.
const (
	completionFloor    = 70.0 // no completion bonus below this percentage
	completionBonusPct = 0.20 // share of base paid at 100%
	streakBonusPerMo   = 100
	streakBonusCap     = 1200
	streakBonusMinRun  = 2

	bonusFirstCompletion = 150
	bonusCategoryMastery = 300 // 3 perfect months in one category
	bonusPerfectQuarter  = 500 // 3 consecutive perfect months

	totalCapFactor = 1.5 // hard inflation bound on base + bonuses

	// Advisory balance range: a month of rewards beyond this looks
	// anomalous and gets flagged, never blocked.
	expectedMonthlyMax = 4200
)

// baseRewards maps star level to base XP. Deliberately non-linear so
// harder challenges pay disproportionately more.
var baseRewards = map[int]int{
	1: 500,
	2: 750,
	3: 1125,
	4: 1688,
	5: 2532,
}

// BaseRewardForStar returns the base XP for a star level, clamping
// out-of-range levels into 1..5.
func BaseRewardForStar(star int) int {
	if star < 1 {
		star = 1
	}
	if star > 5 {
		star = 5
	}
	return baseRewards[star]
}

// CalculateReward evaluates a challenge against its progress and month
// history. Pure: no I/O, no side effects. A panic anywhere in the
// calculation yields a deterministic base-only fallback instead of
// propagating, so reward evaluation can never crash the awarding flow.
func CalculateReward(ch domain.MonthlyChallenge, prog domain.MonthlyChallengeProgress, history []domain.ChallengeHistoryEntry) (result domain.RewardResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.RewardResult{
				ChallengeID:    ch.ID,
				BaseXPReward:   ch.BaseXPReward,
				TotalXPAwarded: ch.BaseXPReward,
				IsBalanced:     false,
				BalanceNote:    fmt.Sprintf("calculation failed (%v), base reward only", r),
				RewardTier:     domain.TierStandard,
			}
		}
	}()

	base := ch.BaseXPReward
	completion := prog.CompletionPercentage

	completionBonus := 0
	if completion >= completionFloor {
		span := (completion - completionFloor) / (100 - completionFloor)
		if span > 1 {
			span = 1
		}
		completionBonus = int(completionBonusPct * float64(base) * span)
	}

	streakBonus := 0
	if prog.CurrentStreak >= streakBonusMinRun {
		streakBonus = prog.CurrentStreak * streakBonusPerMo
		if streakBonus > streakBonusCap {
			streakBonus = streakBonusCap
		}
	}

	milestoneBonus := milestoneBonuses(ch, completion, history)

	uncapped := base + completionBonus + streakBonus + milestoneBonus
	limit := int(totalCapFactor * float64(base))
	total := uncapped

	balanced := true
	note := ""
	if total > limit {
		total = limit
		balanced = false
		note = fmt.Sprintf("bonuses exceeded %.1fx base, clamped from %d to %d", totalCapFactor, uncapped, total)
	} else if total > expectedMonthlyMax {
		balanced = false
		note = fmt.Sprintf("total %d above expected monthly range", total)
	}

	return domain.RewardResult{
		ChallengeID:     ch.ID,
		BaseXPReward:    base,
		CompletionBonus: completionBonus,
		StreakBonus:     streakBonus,
		MilestoneBonus:  milestoneBonus,
		TotalXPAwarded:  total,
		IsBalanced:      balanced,
		BalanceNote:     note,
		RewardTier:      tierFor(base, total),
	}
}

// milestoneBonuses pays the fixed one-off bonuses: first-ever
// completion, category mastery (3 perfect months in the challenge's
// category), and perfect quarter (3 consecutive perfect months ending
// with this one). Additive and mutually non-exclusive.
func milestoneBonuses(ch domain.MonthlyChallenge, completion float64, history []domain.ChallengeHistoryEntry) int {
	completed := completion >= completionFloor
	perfect := completion >= 100

	bonus := 0

	if completed {
		first := true
		for _, h := range history {
			if h.Completed {
				first = false
				break
			}
		}
		if first {
			bonus += bonusFirstCompletion
		}
	}

	if perfect {
		perfectInCategory := 1
		for _, h := range history {
			if h.Category == ch.Category && h.Perfect {
				perfectInCategory++
			}
		}
		if perfectInCategory >= 3 {
			bonus += bonusCategoryMastery
		}

		run := 1
		for i := len(history) - 1; i >= 0 && history[i].Perfect; i-- {
			run++
		}
		if run >= 3 {
			bonus += bonusPerfectQuarter
		}
	}

	return bonus
}

func tierFor(base, total int) domain.RewardTier {
	if base <= 0 {
		return domain.TierStandard
	}
	share := float64(total-base) / float64(base)
	switch {
	case share >= 0.35:
		return domain.TierExceptional
	case share >= 0.10:
		return domain.TierBonus
	default:
		return domain.TierStandard
	}
}
